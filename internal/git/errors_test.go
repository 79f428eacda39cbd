package git

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "dirty_working_tree", ErrorCode(ErrDirtyWorkingTree))
	assert.Equal(t, "non_fast_forward", ErrorCode(fmt.Errorf("push: %w", ErrNonFastForward)))
	assert.Equal(t, "internal", ErrorCode(errors.New("boom")))

	seen := make(map[string]bool)
	for _, ec := range errorCodes {
		assert.False(t, seen[ec.code], "duplicate code %s", ec.code)
		seen[ec.code] = true
		assert.Equal(t, ec.code, ErrorCode(ec.err))
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{KeepOurs, KeepTheirs, Manual} {
		got, ok := ParseStrategy(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseStrategy("both")
	assert.False(t, ok)
}

package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndRecent(t *testing.T) {
	// given
	root := t.TempDir()
	j, err := Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	assert.Equal(t, filepath.Join(root, Dir, FileName), j.Path())

	ctx := context.Background()
	base := time.Now()

	// when
	first, err := j.Record(ctx, Entry{Op: "commitAll", Outcome: OutcomeOK, Commit: "abc", At: base})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Op: "pull", Outcome: OutcomeConflict, Detail: "2 conflicts", At: base.Add(time.Second)})
	require.NoError(t, err)

	// then
	assert.NotEmpty(t, first.ID)
	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pull", entries[0].Op)
	assert.Equal(t, OutcomeConflict, entries[0].Outcome)
	assert.Equal(t, "commitAll", entries[1].Op)
	assert.Equal(t, "abc", entries[1].Commit)
}

func TestJournalRecentHonorsLimit(t *testing.T) {
	j, err := OpenPath(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := j.Record(ctx, Entry{Op: "sync", Outcome: OutcomeOK})
		require.NoError(t, err)
	}

	entries, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournalReopenKeepsEntries(t *testing.T) {
	root := t.TempDir()
	j, err := Open(root)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), Entry{Op: "push", Outcome: OutcomeError, Detail: "offline"})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.NoError(t, j.Close())

	j, err = Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "offline", entries[0].Detail)
}

func TestOpenPathRejectsEmptyPath(t *testing.T) {
	_, err := OpenPath("")
	assert.Error(t, err)
}

func TestOpenHandlesURICharactersInVaultPath(t *testing.T) {
	// given a vault whose directory name looks like a query string
	root := filepath.Join(t.TempDir(), "notes?mode=memory#100%")
	require.NoError(t, os.MkdirAll(root, 0o755))

	// when
	j, err := Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	_, err = j.Record(context.Background(), Entry{Op: "sync", Outcome: OutcomeOK})
	require.NoError(t, err)

	// then the database lives inside the vault, not beside it
	_, err = os.Stat(filepath.Join(root, Dir, FileName))
	assert.NoError(t, err)
}

func TestDataSourceName(t *testing.T) {
	dsn, err := dataSourceName("/vaults/a b/c?d#e%f/activity.db")
	require.NoError(t, err)

	assert.Equal(t, "file:///vaults/a%20b/c%3Fd%23e%25f/activity.db"+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dsn)
}

package commands

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/journal"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("activity", func() Command { return &ActivityCommand{} })
}

type activityArgs struct {
	Limit int `json:"limit"`
}

// ActivityCommand returns recent journal entries, newest first. Without a journal
// the list is empty.
type ActivityCommand struct{}

var _ Command = (*ActivityCommand)(nil)

func (c *ActivityCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a activityArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	j := s.Journal()
	if j == nil {
		return []journal.Entry{}, nil
	}
	return j.Recent(ctx, a.Limit)
}

func (c *ActivityCommand) Help() string {
	return "activity {limit}: recent vault operations from the activity journal"
}

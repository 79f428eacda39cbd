package commands

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("restore", func() Command { return &RestoreCommand{} })
	RegisterCommand("undoLastAutomation", func() Command { return &UndoCommand{} })
}

// RestoreCommand records the tree of an earlier commit as a new commit.
type RestoreCommand struct{}

var _ Command = (*RestoreCommand)(nil)

func (c *RestoreCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a commitArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("commitId", a.CommitID); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	hash, err := repo.RestoreToCommit(a.CommitID)
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

func (c *RestoreCommand) Help() string {
	return "restore {commitId}: make the vault match a commit, recorded as a new commit"
}

// UndoCommand reverts HEAD if the automation wrote it.
type UndoCommand struct{}

var _ Command = (*UndoCommand)(nil)

func (c *UndoCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	hash, err := repo.UndoLastAutomationCommit()
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

func (c *UndoCommand) Help() string {
	return "undoLastAutomation: revert the last commit when it was an automation commit"
}

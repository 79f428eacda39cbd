package commands

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("init", func() Command { return &InitCommand{} })
	RegisterCommand("isRepo", func() Command { return &IsRepoCommand{} })
}

// InitCommand creates the vault repository, or opens the existing one.
type InitCommand struct{}

var _ Command = (*InitCommand)(nil)

func (c *InitCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := git.Init(s.Path)
	if err != nil {
		return nil, err
	}
	s.SetRepo(repo)
	return nil, nil
}

func (c *InitCommand) Help() string {
	return "init: create the vault repository (idempotent) and ensure .gitignore"
}

// IsRepoCommand reports whether the vault already is a repository.
type IsRepoCommand struct{}

var _ Command = (*IsRepoCommand)(nil)

func (c *IsRepoCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	return git.IsRepository(s.Path), nil
}

func (c *IsRepoCommand) Help() string {
	return "isRepo: report whether the vault is a git repository"
}

package commands

// remote.go - Remote sync commands

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("configureRemote", func() Command { return &ConfigureRemoteCommand{} })
	RegisterCommand("fetch", func() Command { return &FetchCommand{} })
	RegisterCommand("push", func() Command { return &PushCommand{} })
	RegisterCommand("pull", func() Command { return &PullCommand{} })
	RegisterCommand("sync", func() Command { return &SyncCommand{} })
	RegisterCommand("syncStatus", func() Command { return &SyncStatusCommand{} })
}

type remoteArgs struct {
	URL string `json:"url"`
}

// ConfigureRemoteCommand points origin at a URL.
type ConfigureRemoteCommand struct{}

var _ Command = (*ConfigureRemoteCommand)(nil)

func (c *ConfigureRemoteCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a remoteArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("url", a.URL); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return nil, repo.ConfigureRemote(a.URL)
}

func (c *ConfigureRemoteCommand) Help() string {
	return "configureRemote {url}: set the origin remote, replacing any previous one"
}

// withRemote runs fn with the vault's repository and remote token under the
// session lock.
func withRemote[T any](ctx context.Context, s *state.Session, fn func(repo *git.Repository, token string) (T, error)) (T, error) {
	var zero T

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return zero, err
	}
	token, err := remoteToken(ctx, s, repo)
	if err != nil {
		return zero, err
	}
	return fn(repo, token)
}

// FetchCommand updates the remote-tracking branches.
type FetchCommand struct{}

var _ Command = (*FetchCommand)(nil)

func (c *FetchCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	return withRemote(ctx, s, func(repo *git.Repository, token string) (any, error) {
		return nil, repo.Fetch(ctx, token)
	})
}

func (c *FetchCommand) Help() string {
	return "fetch: download origin's branches without touching the working tree"
}

// PushCommand sends the current branch to origin.
type PushCommand struct{}

var _ Command = (*PushCommand)(nil)

func (c *PushCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	return withRemote(ctx, s, func(repo *git.Repository, token string) (any, error) {
		return nil, repo.Push(ctx, token)
	})
}

func (c *PushCommand) Help() string {
	return "push: push the current branch to origin"
}

// PullCommand fetches and integrates origin's branch.
type PullCommand struct{}

var _ Command = (*PullCommand)(nil)

func (c *PullCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	return withRemote(ctx, s, func(repo *git.Repository, token string) (any, error) {
		res, err := repo.Pull(ctx, token)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

func (c *PullCommand) Help() string {
	return "pull: fetch and fast-forward or merge origin; reports conflicts"
}

// SyncCommand pulls then pushes.
type SyncCommand struct{}

var _ Command = (*SyncCommand)(nil)

func (c *SyncCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	return withRemote(ctx, s, func(repo *git.Repository, token string) (any, error) {
		res, err := repo.Sync(ctx, token)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

func (c *SyncCommand) Help() string {
	return "sync: pull, then push when no conflicts remain"
}

// SyncStatusCommand reports ahead/behind counts against origin.
type SyncStatusCommand struct{}

var _ Command = (*SyncStatusCommand)(nil)

func (c *SyncStatusCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return repo.SyncStatus()
}

func (c *SyncStatusCommand) Help() string {
	return "syncStatus: commits ahead of and behind origin"
}

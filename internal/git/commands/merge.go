package commands

// merge.go - Conflict resolution commands for an open merge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("conflicts", func() Command { return &ConflictsCommand{} })
	RegisterCommand("resolveConflict", func() Command { return &ResolveConflictCommand{} })
	RegisterCommand("completeMerge", func() Command { return &CompleteMergeCommand{} })
	RegisterCommand("abortMerge", func() Command { return &AbortMergeCommand{} })
}

// ConflictsCommand lists the conflicts of the open merge, if any.
type ConflictsCommand struct{}

var _ Command = (*ConflictsCommand)(nil)

func (c *ConflictsCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	res := git.ConflictResolution{Conflicts: []git.ConflictEntry{}}
	if repo.IsMerging() {
		if res.Conflicts, err = repo.Conflicts(); err != nil {
			return nil, err
		}
		res.HasConflicts = len(res.Conflicts) > 0
	}
	if res.SyncStatus, err = repo.SyncStatus(); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *ConflictsCommand) Help() string {
	return "conflicts: list conflicted paths of the open merge with all three sides"
}

type resolveArgs struct {
	FilePath   string  `json:"filePath"`
	Resolution string  `json:"resolution"`
	Content    *string `json:"content"`
}

// ResolveConflictCommand settles one conflicted path.
type ResolveConflictCommand struct{}

var _ Command = (*ResolveConflictCommand)(nil)

func (c *ResolveConflictCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a resolveArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("filePath", a.FilePath); err != nil {
		return nil, err
	}
	strategy, ok := git.ParseStrategy(a.Resolution)
	if !ok {
		return nil, fmt.Errorf("%w: resolution must be ours, theirs or manual, got %q", ErrInvalidArguments, a.Resolution)
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return nil, repo.ResolveConflict(a.FilePath, strategy, a.Content)
}

func (c *ResolveConflictCommand) Help() string {
	return "resolveConflict {filePath, resolution: ours|theirs|manual, content}: resolve and stage one path"
}

// CompleteMergeCommand commits the resolved merge, pushes it and reports status.
type CompleteMergeCommand struct{}

var _ Command = (*CompleteMergeCommand)(nil)

func (c *CompleteMergeCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	return withRemote(ctx, s, func(repo *git.Repository, token string) (any, error) {
		st, err := repo.CompleteMergeAndPush(ctx, token)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

func (c *CompleteMergeCommand) Help() string {
	return "completeMerge: commit the resolved merge, push it and return the sync status"
}

// AbortMergeCommand abandons the open merge.
type AbortMergeCommand struct{}

var _ Command = (*AbortMergeCommand)(nil)

func (c *AbortMergeCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	repo.AbortMerge()
	return nil, nil
}

func (c *AbortMergeCommand) Help() string {
	return "abortMerge: restore HEAD for every path the merge touched and leave the merge"
}

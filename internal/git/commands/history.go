package commands

// history.go - Read-only history commands

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("history", func() Command { return &HistoryCommand{} })
	RegisterCommand("fileAt", func() Command { return &FileAtCommand{} })
	RegisterCommand("fileDiff", func() Command { return &FileDiffCommand{} })
	RegisterCommand("commitChanges", func() Command { return &CommitChangesCommand{} })
}

type historyArgs struct {
	Limit          int    `json:"limit"`
	AutomationOnly bool   `json:"automationOnly"`
	PathFilter     string `json:"pathFilter"`
	WithStats      bool   `json:"withStats"`
}

// HistoryCommand lists commits newest first.
type HistoryCommand struct{}

var _ Command = (*HistoryCommand)(nil)

func (c *HistoryCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a historyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return repo.ListCommits(git.HistoryOptions{
		Limit:          a.Limit,
		AutomationOnly: a.AutomationOnly,
		Path:           a.PathFilter,
		WithStats:      a.WithStats,
	})
}

func (c *HistoryCommand) Help() string {
	return "history {limit, automationOnly, pathFilter, withStats}: list commits reachable from HEAD"
}

type fileArgs struct {
	CommitID string `json:"commitId"`
	FilePath string `json:"filePath"`
}

func (a fileArgs) validate() error {
	if err := requireArg("commitId", a.CommitID); err != nil {
		return err
	}
	return requireArg("filePath", a.FilePath)
}

// FileAtCommand returns a file's text as of a commit.
type FileAtCommand struct{}

var _ Command = (*FileAtCommand)(nil)

func (c *FileAtCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return repo.FileContentAtCommit(a.CommitID, a.FilePath)
}

func (c *FileAtCommand) Help() string {
	return "fileAt {commitId, filePath}: file content at a commit"
}

// FileDiffCommand renders a unified diff of one file against the commit's first parent.
type FileDiffCommand struct{}

var _ Command = (*FileDiffCommand)(nil)

func (c *FileDiffCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return repo.FileDiff(a.CommitID, a.FilePath)
}

func (c *FileDiffCommand) Help() string {
	return "fileDiff {commitId, filePath}: unified diff of a file against the first parent"
}

type commitArgs struct {
	CommitID string `json:"commitId"`
}

// CommitChangesCommand lists the files a commit changed.
type CommitChangesCommand struct{}

var _ Command = (*CommitChangesCommand)(nil)

func (c *CommitChangesCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
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
	return repo.CommitChanges(a.CommitID)
}

func (c *CommitChangesCommand) Help() string {
	return "commitChanges {commitId}: per-file status and line counts of a commit"
}

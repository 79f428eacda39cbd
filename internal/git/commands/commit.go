package commands

// commit.go - Commit commands (auto, single file, all changes)

import (
	"context"
	"encoding/json"

	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("autoCommit", func() Command { return &AutoCommitCommand{} })
	RegisterCommand("commitFile", func() Command { return &CommitFileCommand{} })
	RegisterCommand("commitAll", func() Command { return &CommitAllCommand{} })
	RegisterCommand("hasUncommittedChanges", func() Command { return &HasChangesCommand{} })
}

type autoCommitArgs struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// AutoCommitCommand commits the given files as the automation identity.
type AutoCommitCommand struct{}

var _ Command = (*AutoCommitCommand)(nil)

func (c *AutoCommitCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a autoCommitArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("message", a.Message); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	hash, err := repo.AutoCommit(a.Message, a.Files)
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

func (c *AutoCommitCommand) Help() string {
	return `autoCommit {message, files}: stage exactly files and commit them as "Mosaic: <message> (<time>)"`
}

type commitFileArgs struct {
	FilePath string `json:"filePath"`
	Message  string `json:"message"`
}

// CommitFileCommand commits one path as the user.
type CommitFileCommand struct{}

var _ Command = (*CommitFileCommand)(nil)

func (c *CommitFileCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a commitFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("filePath", a.FilePath); err != nil {
		return nil, err
	}
	if err := requireArg("message", a.Message); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	hash, err := repo.CommitFile(a.Message, a.FilePath)
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

func (c *CommitFileCommand) Help() string {
	return "commitFile {filePath, message}: commit a single file as the user"
}

type commitAllArgs struct {
	Message string `json:"message"`
}

// CommitAllCommand commits every change in the vault as the user.
type CommitAllCommand struct{}

var _ Command = (*CommitAllCommand)(nil)

func (c *CommitAllCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a commitAllArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("message", a.Message); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	hash, err := repo.CommitAll(a.Message)
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

func (c *CommitAllCommand) Help() string {
	return "commitAll {message}: stage all added, modified and deleted files and commit as the user"
}

// HasChangesCommand reports uncommitted changes, untracked files included.
type HasChangesCommand struct{}

var _ Command = (*HasChangesCommand)(nil)

func (c *HasChangesCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	s.Lock()
	defer s.Unlock()

	repo, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	return repo.HasUncommittedChanges()
}

func (c *HasChangesCommand) Help() string {
	return "hasUncommittedChanges: report whether the working tree differs from HEAD"
}

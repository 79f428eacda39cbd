package commands

// github.go - GitHub account and repository commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/github"
	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("githubUser", func() Command { return &GitHubUserCommand{} })
	RegisterCommand("githubRepos", func() Command { return &GitHubReposCommand{} })
	RegisterCommand("githubCreateRepo", func() Command { return &GitHubCreateRepoCommand{} })
}

// gitHubOptions points the commands at GitHub; tests aim it at a fake server.
var gitHubOptions github.Options

func gitHubClient(ctx context.Context, s *state.Session) (*github.Client, error) {
	if s.Credentials == nil {
		return nil, git.ErrCredentialMissing
	}
	token, err := s.Credentials.Credential(ctx, github.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", github.Provider, err, git.ErrCredentialMissing)
	}
	return github.NewClient(token, gitHubOptions)
}

// rejected marks a token GitHub refused as a rejected credential.
func rejected(err error) error {
	if errors.Is(err, github.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", err, git.ErrCredentialRejected)
	}
	return err
}

// GitHubUserCommand reports the account behind the stored GitHub token.
type GitHubUserCommand struct{}

var _ Command = (*GitHubUserCommand)(nil)

func (c *GitHubUserCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	client, err := gitHubClient(ctx, s)
	if err != nil {
		return nil, err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, rejected(err)
	}
	return user, nil
}

func (c *GitHubUserCommand) Help() string {
	return "githubUser: the GitHub account the stored token belongs to"
}

// GitHubReposCommand lists repositories a vault could sync to.
type GitHubReposCommand struct{}

var _ Command = (*GitHubReposCommand)(nil)

func (c *GitHubReposCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	client, err := gitHubClient(ctx, s)
	if err != nil {
		return nil, err
	}
	repos, err := client.ListRepositories(ctx)
	if err != nil {
		return nil, rejected(err)
	}
	if repos == nil {
		repos = []github.Repository{}
	}
	return repos, nil
}

func (c *GitHubReposCommand) Help() string {
	return "githubRepos: the user's GitHub repositories, most recently updated first"
}

type createRepoArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// UseAsRemote points the vault's origin at the new repository.
	UseAsRemote bool `json:"useAsRemote"`
}

// GitHubCreateRepoCommand creates a private repository and optionally makes it the
// vault's origin.
type GitHubCreateRepoCommand struct{}

var _ Command = (*GitHubCreateRepoCommand)(nil)

func (c *GitHubCreateRepoCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a createRepoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := requireArg("name", a.Name); err != nil {
		return nil, err
	}

	client, err := gitHubClient(ctx, s)
	if err != nil {
		return nil, err
	}
	repo, err := client.CreateRepository(ctx, a.Name, a.Description)
	if err != nil {
		return nil, rejected(err)
	}
	if !a.UseAsRemote {
		return repo, nil
	}

	s.Lock()
	defer s.Unlock()

	vault, err := s.GetRepo()
	if err != nil {
		return nil, err
	}
	if err := vault.ConfigureRemote(repo.CloneURL); err != nil {
		return nil, err
	}
	return repo, nil
}

func (c *GitHubCreateRepoCommand) Help() string {
	return "githubCreateRepo {name, description, useAsRemote}: create a private GitHub repository, optionally as origin"
}

package git

// remote.go - Remote configuration, fetch and push against "origin"

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// RemoteName is the only remote a vault syncs with.
const RemoteName = "origin"

// tokenUser is the username paired with an access token for HTTPS auth.
const tokenUser = "x-access-token"

// ConfigureRemote points origin at url, replacing any previous definition.
func (r *Repository) ConfigureRemote(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("remote url is empty")
	}

	if err := r.repo.DeleteRemote(RemoteName); err != nil && !errors.Is(err, gogit.ErrRemoteNotFound) {
		return fmt.Errorf("failed to remove existing remote: %w", err)
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name:  RemoteName,
		URLs:  []string{url},
		Fetch: []config.RefSpec{fetchRefSpec},
	})
	if err != nil {
		return fmt.Errorf("failed to configure remote: %w", err)
	}
	r.log.WithField("url", url).Info("configured remote")
	return nil
}

// RemoteURL returns origin's URL, or "" when no remote is configured.
func (r *Repository) RemoteURL() string {
	rem, err := r.repo.Remote(RemoteName)
	if err != nil {
		return ""
	}
	if urls := rem.Config().URLs; len(urls) > 0 {
		return urls[0]
	}
	return ""
}

var fetchRefSpec = config.RefSpec("+refs/heads/*:refs/remotes/" + RemoteName + "/*")

// Fetch updates the remote-tracking branches. It never touches the working tree.
func (r *Repository) Fetch(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.fetch(ctx, token)
}

func (r *Repository) fetch(ctx context.Context, token string) error {
	url, err := r.originURL()
	if err != nil {
		return err
	}

	err = r.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: RemoteName,
		RefSpecs:   []config.RefSpec{fetchRefSpec},
		Auth:       authFor(url, token),
		Force:      true,
	})
	switch {
	case err == nil:
		r.log.Debug("fetched origin")
		return nil
	case errors.Is(err, gogit.NoErrAlreadyUpToDate), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	}
	return classifyRemoteError("fetch", err)
}

// Push sends the current branch to the same branch on origin. A remote that has
// diverged fails with ErrNonFastForward.
func (r *Repository) Push(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.push(ctx, token)
}

func (r *Repository) push(ctx context.Context, token string) error {
	url, err := r.originURL()
	if err != nil {
		return err
	}
	head, err := r.headHash()
	if err != nil {
		return err
	}
	if head.IsZero() {
		// Nothing to send from an unborn branch.
		return nil
	}
	branch, err := r.currentBranch()
	if err != nil {
		return err
	}

	spec := config.RefSpec(fmt.Sprintf("%s:%s", branch, branch))
	err = r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: RemoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       authFor(url, token),
	})
	switch {
	case err == nil:
	case errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	default:
		return classifyRemoteError("push", err)
	}

	// Keep the tracking ref in step so SyncStatus reflects the push without a fetch.
	tracking := plumbing.NewHashReference(trackingRef(branch), head)
	if err := r.repo.Storer.SetReference(tracking); err != nil {
		r.log.WithError(err).Warn("failed to update tracking ref after push")
	}
	r.log.WithField("branch", branch.Short()).Info("pushed to origin")
	return nil
}

func (r *Repository) originURL() (string, error) {
	rem, err := r.repo.Remote(RemoteName)
	if err != nil {
		return "", fmt.Errorf("remote %q is not configured: %w", RemoteName, ErrNetworkFailure)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %q has no url: %w", RemoteName, ErrNetworkFailure)
	}
	return urls[0], nil
}

func trackingRef(branch plumbing.ReferenceName) plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(RemoteName, branch.Short())
}

// NeedsToken reports whether a remote URL authenticates with an access token.
func NeedsToken(url string) bool {
	return strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://")
}

// authFor returns token auth for HTTP(S) remotes. Local and SSH remotes get none.
func authFor(url, token string) transport.AuthMethod {
	if token == "" || !NeedsToken(url) {
		return nil
	}
	return &http.BasicAuth{Username: tokenUser, Password: token}
}

func classifyRemoteError(op string, err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return fmt.Errorf("%s: %v: %w", op, err, ErrCredentialRejected)
	case errors.Is(err, gogit.ErrNonFastForwardUpdate),
		strings.Contains(err.Error(), "non-fast-forward"):
		return fmt.Errorf("%s: %v: %w", op, err, ErrNonFastForward)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrNetworkFailure, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrNetworkFailure)
}

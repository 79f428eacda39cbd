// Package github signs users in with GitHub's device flow and manages the private
// repositories vaults sync to.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v66/github"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Provider is the credential provider name GitHub tokens are stored under.
const Provider = "github"

// Scopes requested at sign-in: repository access and the user's e-mail.
var Scopes = []string{"repo", "user:email"}

// ErrUnauthorized is returned when GitHub rejects the token.
var ErrUnauthorized = errors.New("github rejected the token")

// Options point the client at GitHub. Zero values mean github.com.
type Options struct {
	// ClientID identifies the OAuth app used for device sign-in.
	ClientID string
	// APIURL is the REST API base, for GitHub Enterprise or tests.
	APIURL string
	// AuthURL is the base serving /login/device/code and /login/oauth/access_token.
	AuthURL string
	// HTTPClient is used for every request.
	HTTPClient *http.Client
}

// User is the signed-in account.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
}

// Repository is a GitHub repository a vault can use as origin.
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Owner       string `json:"owner"`
	Private     bool   `json:"private"`
	HTMLURL     string `json:"htmlUrl"`
	CloneURL    string `json:"cloneUrl"`
	Description string `json:"description,omitempty"`
}

// DeviceCode is what the user needs to approve a sign-in on another device.
type DeviceCode struct {
	UserCode        string `json:"userCode"`
	VerificationURI string `json:"verificationUri"`

	auth *oauth2.DeviceAuthResponse
}

// Client talks to one GitHub instance.
type Client struct {
	api   *gh.Client
	oauth *oauth2.Config
	http  *http.Client
}

// NewClient returns a client acting with token. An empty token is enough for the
// device flow.
func NewClient(token string, opts Options) (*Client, error) {
	api := gh.NewClient(opts.HTTPClient)
	if token != "" {
		api = api.WithAuthToken(token)
	}
	if opts.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid api url %q: %w", opts.APIURL, err)
		}
		api.BaseURL = base
	}

	authURL := strings.TrimSuffix(opts.AuthURL, "/")
	if authURL == "" {
		authURL = "https://github.com"
	}
	return &Client{
		api: api,
		oauth: &oauth2.Config{
			ClientID: opts.ClientID,
			Scopes:   Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:       authURL + "/login/oauth/authorize",
				TokenURL:      authURL + "/login/oauth/access_token",
				DeviceAuthURL: authURL + "/login/device/code",
			},
		},
		http: opts.HTTPClient,
	}, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	if c.http == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// StartDeviceFlow asks GitHub for a user code to show the user.
func (c *Client) StartDeviceFlow(ctx context.Context) (*DeviceCode, error) {
	if c.oauth.ClientID == "" {
		return nil, errors.New("github client id is not configured")
	}
	da, err := c.oauth.DeviceAuth(c.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to request device code: %w", err)
	}
	logger.WithField("uri", da.VerificationURI).Debug("github device code issued")
	return &DeviceCode{UserCode: da.UserCode, VerificationURI: da.VerificationURI, auth: da}, nil
}

// WaitForToken polls until the user approves or denies the sign-in, the code
// expires, or ctx ends.
func (c *Client) WaitForToken(ctx context.Context, code *DeviceCode) (string, error) {
	tok, err := c.oauth.DeviceAccessToken(c.oauthContext(ctx), code.auth)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "access_denied" {
			return "", fmt.Errorf("sign-in was denied: %w", ErrUnauthorized)
		}
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return tok.AccessToken, nil
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	u, _, err := c.api.Users.Get(ctx, "")
	if err != nil {
		return User{}, wrapAPIError("get user", err)
	}
	return User{
		Login:     u.GetLogin(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
	}, nil
}

// VerifyToken reports whether GitHub still accepts the token.
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	_, err := c.CurrentUser(ctx)
	if errors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	return err == nil, err
}

// ListRepositories returns the user's repositories, most recently updated first.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var repos []Repository
	for {
		page, resp, err := c.api.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, wrapAPIError("list repositories", err)
		}
		for _, r := range page {
			repos = append(repos, fromAPI(r))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// CreateRepository creates an empty private repository owned by the user. Vaults
// push their own history, so GitHub does not initialize it.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (Repository, error) {
	if name == "" {
		return Repository{}, errors.New("repository name is required")
	}
	req := &gh.Repository{
		Name:     gh.String(name),
		Private:  gh.Bool(true),
		AutoInit: gh.Bool(false),
	}
	if description != "" {
		req.Description = gh.String(description)
	}
	r, _, err := c.api.Repositories.Create(ctx, "", req)
	if err != nil {
		return Repository{}, wrapAPIError("create repository", err)
	}
	logger.WithField("repo", r.GetFullName()).Info("created github repository")
	return fromAPI(r), nil
}

func fromAPI(r *gh.Repository) Repository {
	return Repository{
		ID:          r.GetID(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Owner:       r.GetOwner().GetLogin(),
		Private:     r.GetPrivate(),
		HTMLURL:     r.GetHTMLURL(),
		CloneURL:    r.GetCloneURL(),
		Description: r.GetDescription(),
	}
}

func wrapAPIError(op string, err error) error {
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

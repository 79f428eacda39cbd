package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kurobon/vaultsync/internal/config"
	"github.com/kurobon/vaultsync/internal/credentials"
	"github.com/kurobon/vaultsync/internal/github"
)

func buildGitHubCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "github",
		Short: "GitHub account helpers",
	}
	cmd.AddCommand(buildGitHubLoginCommand())
	return cmd
}

func buildGitHubLoginCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the GitHub device flow and store the token in credentials.token_dir",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			apiURL, _ := command.Flags().GetString("api-url")
			authURL, _ := command.Flags().GetString("auth-url")
			return gitHubLogin(command, config.Global, github.Options{
				ClientID: config.Global.Credentials.GitHubClientID,
				APIURL:   apiURL,
				AuthURL:  authURL,
			})
		},
	}
	cmd.Flags().String("api-url", "", "GitHub API base URL (GitHub Enterprise)")
	cmd.Flags().String("auth-url", "", "GitHub web base URL serving the device flow (GitHub Enterprise)")
	return cmd
}

func gitHubLogin(command *cobra.Command, cfg *config.Config, opts github.Options) error {
	if cfg.Credentials.TokenDir == "" {
		return errors.New("credentials.token_dir must be set to store the token")
	}
	if opts.ClientID == "" {
		return errors.New("credentials.github_client_id is not configured")
	}
	ctx := command.Context()
	out := command.OutOrStdout()

	client, err := github.NewClient("", opts)
	if err != nil {
		return err
	}
	code, err := client.StartDeviceFlow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Open %s and enter the code %s\n", code.VerificationURI, code.UserCode)

	token, err := client.WaitForToken(ctx, code)
	if err != nil {
		return err
	}
	authed, err := github.NewClient(token, opts)
	if err != nil {
		return err
	}
	user, err := authed.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if err := (credentials.FileSource{Dir: cfg.Credentials.TokenDir}).Store(github.Provider, token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s\n", user.Login)
	return nil
}

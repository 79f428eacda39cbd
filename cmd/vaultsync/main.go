package main

import (
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kurobon/vaultsync/internal/config"
	"github.com/kurobon/vaultsync/internal/logging"
)

func buildRootCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "vaultsync",
		Short: "Version history and sync daemon for note vaults",
		Long: `vaultsync keeps a folder of notes under git. It records user and automation
commits, restores earlier versions, and syncs the vault with a single remote,
stopping on conflicts until they are resolved.

Usage modes:
  vaultsync serve                            Run the HTTP control surface
  vaultsync exec history --vault ~/Notes     Run one command against a vault
  vaultsync commands                         List the supported commands
  vaultsync github login                     Sign in to GitHub and store the token`,
		SilenceUsage: true,
		PersistentPreRunE: func(command *cobra.Command, _ []string) error {
			return configure(command)
		},
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().String("log-level", "", "Log level (overrides the config file)")

	cmd.AddCommand(buildServeCommand(), buildExecCommand(), buildCommandsCommand(), buildGitHubCommand())
	return cmd
}

// configure loads the configuration into config.Global and sets up logging.
func configure(command *cobra.Command) error {
	path, _ := command.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := command.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}
	config.Global = cfg
	return nil
}

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		logger.Fatalf("Error executing 'vaultsync': %s", err)
	}
}

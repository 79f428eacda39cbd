package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kurobon/vaultsync/internal/config"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/server"
)

func buildExecCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Run one command against a vault and print the JSON result",
		Example: `  vaultsync exec init --vault ~/Notes
  vaultsync exec commitAll --vault ~/Notes --args '{"message": "Weekly review"}'
  vaultsync exec resolveConflict --vault ~/Notes --args '{"filePath": "todo.md", "resolution": "theirs"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			vault, _ := command.Flags().GetString("vault")
			rawArgs, _ := command.Flags().GetString("args")
			return execCommand(command, vault, args[0], rawArgs)
		},
	}
	cmd.Flags().String("vault", ".", "Vault directory")
	cmd.Flags().String("args", "", "Command arguments as a JSON object")
	return cmd
}

func execCommand(command *cobra.Command, vault, name, rawArgs string) error {
	app, err := injectApp(config.Global)
	if err != nil {
		return err
	}
	defer app.Sessions.Close()

	session, err := app.Sessions.OpenSession(vault)
	if err != nil {
		return err
	}

	var args json.RawMessage
	if strings.TrimSpace(rawArgs) != "" {
		args = json.RawMessage(rawArgs)
	}
	result, err := app.Dispatcher.Dispatch(command.Context(), session, name, args)
	if err != nil {
		return fmt.Errorf("%s [%s]: %w", name, server.ErrorCode(err), err)
	}
	return printJSON(command.OutOrStdout(), result)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildCommandsCommand() *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	return &cobra.Command{
		Use:   "commands",
		Short: "List the supported commands",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			for _, name := range commands.GetSupportedCommands() {
				help, err := commands.GetCommandHelp(name)
				if err != nil {
					return err
				}
				fmt.Fprintln(command.OutOrStdout(), help)
			}
			return nil
		},
	}
}

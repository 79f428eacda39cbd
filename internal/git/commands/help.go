package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kurobon/vaultsync/internal/state"
)

func init() {
	RegisterCommand("help", func() Command { return &HelpCommand{} })
}

type helpArgs struct {
	Command string `json:"command"`
}

// HelpCommand describes one command, or lists all of them.
type HelpCommand struct{}

var _ Command = (*HelpCommand)(nil)

func (c *HelpCommand) Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error) {
	var a helpArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Command != "" {
		return GetCommandHelp(a.Command)
	}

	var sb strings.Builder
	sb.WriteString("vault commands:\n")
	for _, name := range GetSupportedCommands() {
		help, _ := GetCommandHelp(name)
		sb.WriteString(fmt.Sprintf("   %s\n", help))
	}
	return sb.String(), nil
}

func (c *HelpCommand) Help() string {
	return "help {command}: describe a command, or list all commands"
}

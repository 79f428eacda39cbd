package commands

// registry.go - Command registry and dispatcher for the vault control surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/journal"
	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/state"
)

// ErrUnknownCommand is returned by Dispatch for names nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

// ErrInvalidArguments wraps argument decoding and validation failures.
var ErrInvalidArguments = errors.New("invalid arguments")

// Command defines the interface for all vault commands. args is the raw JSON object
// sent by the client; a nil or "null" value means no arguments.
type Command interface {
	Execute(ctx context.Context, s *state.Session, args json.RawMessage) (any, error)
	Help() string
}

// CommandFactory allows creating new instances of commands
type CommandFactory func() Command

var registry = make(map[string]CommandFactory)

// RegisterCommand registers a command factory
func RegisterCommand(name string, factory CommandFactory) {
	registry[name] = factory
}

// GetSupportedCommands returns all registered commands in sorted order.
func GetSupportedCommands() []string {
	cmds := make([]string, 0, len(registry))
	for k := range registry {
		cmds = append(cmds, k)
	}
	sort.Strings(cmds)
	return cmds
}

// GetCommandHelp returns the help string for a command
func GetCommandHelp(name string) (string, error) {
	factory, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownCommand)
	}
	return factory().Help(), nil
}

// networkCommands talk to the remote and run under the sync timeout.
var networkCommands = map[string]bool{
	"fetch":         true,
	"pull":          true,
	"push":          true,
	"sync":          true,
	"completeMerge": true,

	"githubUser":       true,
	"githubRepos":      true,
	"githubCreateRepo": true,
}

// journaledCommands change the vault or its remote and are written to the activity
// journal.
var journaledCommands = map[string]bool{
	"init":               true,
	"autoCommit":         true,
	"commitFile":         true,
	"commitAll":          true,
	"undoLastAutomation": true,
	"restore":            true,
	"configureRemote":    true,
	"fetch":              true,
	"pull":               true,
	"push":               true,
	"sync":               true,
	"resolveConflict":    true,
	"completeMerge":      true,
	"abortMerge":         true,
	"githubCreateRepo":   true,
}

// Dispatcher runs registered commands and records their outcome.
type Dispatcher struct {
	Metrics *metrics.Collector
	// SyncTimeout bounds network commands. Zero means no extra deadline.
	SyncTimeout time.Duration
	// OnResult, when set, is called after every command.
	OnResult func(s *state.Session, name string, result any, err error)
}

// Dispatch runs a command with a zero Dispatcher.
func Dispatch(ctx context.Context, s *state.Session, name string, args json.RawMessage) (any, error) {
	return (&Dispatcher{}).Dispatch(ctx, s, name, args)
}

// Dispatch looks up name and executes it against the session's vault.
func (d *Dispatcher) Dispatch(ctx context.Context, s *state.Session, name string, args json.RawMessage) (any, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("'%s' is not a recognized command: %w", name, ErrUnknownCommand)
	}

	if d.SyncTimeout > 0 && networkCommands[name] {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.SyncTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := factory().Execute(ctx, s, args)
	elapsed := time.Since(start)

	outcome, detail := classify(result, err)
	d.Metrics.ObserveOperation(name, outcome, elapsed)
	if res, ok := result.(git.ConflictResolution); ok && res.HasConflicts {
		d.Metrics.AddConflicts(len(res.Conflicts))
	}

	log := logger.WithFields(logger.Fields{"vault": s.Path, "op": name, "outcome": outcome, "elapsed": elapsed})
	if err != nil {
		log.WithError(err).Warn("command failed")
	} else {
		log.Debug("command finished")
	}

	if journaledCommands[name] {
		entry := journal.Entry{Op: name, Outcome: journal.Outcome(outcome), Detail: detail}
		if id, ok := result.(string); ok {
			entry.Commit = id
		}
		s.Lock()
		s.Record(context.WithoutCancel(ctx), entry)
		s.Unlock()
	}

	if d.OnResult != nil {
		d.OnResult(s, name, result, err)
	}
	return result, err
}

func classify(result any, err error) (outcome, detail string) {
	if err != nil {
		return metrics.OutcomeError, err.Error()
	}
	if res, ok := result.(git.ConflictResolution); ok && res.HasConflicts {
		return metrics.OutcomeConflict, fmt.Sprintf("%d conflicted paths", len(res.Conflicts))
	}
	return metrics.OutcomeOK, ""
}

// decodeArgs unmarshals args into v. Empty arguments leave v untouched.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func requireArg(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArguments, name)
	}
	return nil
}

// remoteToken returns the credential for the vault's remote. Remotes reached
// without HTTP(S) need no token.
func remoteToken(ctx context.Context, s *state.Session, repo *git.Repository) (string, error) {
	if !git.NeedsToken(repo.RemoteURL()) {
		return "", nil
	}
	if s.Credentials == nil {
		return "", git.ErrCredentialMissing
	}
	token, err := s.Credentials.Credential(ctx, s.Provider())
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", s.Provider(), err, git.ErrCredentialMissing)
	}
	return token, nil
}

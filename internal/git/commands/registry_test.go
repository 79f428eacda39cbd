package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/vaultsync/internal/credentials"
	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/journal"
	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/state"
)

func newSession(t *testing.T, opts state.Options) *state.Session {
	t.Helper()
	sm := state.NewSessionManager(opts)
	t.Cleanup(func() { _ = sm.Close() })
	s, err := sm.OpenSession(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeNote(s *state.Session, name, content string) error {
	return os.WriteFile(filepath.Join(s.Path, name), []byte(content), 0o644)
}

func run(t *testing.T, d *Dispatcher, s *state.Session, name, args string) (any, error) {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return d.Dispatch(context.Background(), s, name, raw)
}

func TestRegistry_ControlSurface(t *testing.T) {
	want := []string{
		"abortMerge", "activity", "autoCommit", "commitAll", "commitChanges", "commitFile",
		"completeMerge", "configureRemote", "conflicts", "fetch", "fileAt", "fileDiff",
		"githubCreateRepo", "githubRepos", "githubUser", "hasUncommittedChanges", "help", "history", "init", "isRepo", "pull", "push",
		"resolveConflict", "restore", "sync", "syncStatus", "undoLastAutomation",
	}
	assert.Equal(t, want, GetSupportedCommands())

	for _, name := range want {
		help, err := GetCommandHelp(name)
		require.NoError(t, err)
		assert.NotEmpty(t, help, name)
	}
	_, err := GetCommandHelp("rebase")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	s := newSession(t, state.Options{})
	_, err := Dispatch(context.Background(), s, "rebase", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_InvalidArguments(t *testing.T) {
	s := newSession(t, state.Options{})
	d := &Dispatcher{}

	tests := []struct {
		name, command, args string
	}{
		{"malformed json", "autoCommit", `{"message": 5}`},
		{"missing message", "commitAll", `{}`},
		{"missing file path", "commitFile", `{"message": "m"}`},
		{"missing commit id", "restore", `{}`},
		{"bad resolution", "resolveConflict", `{"filePath": "a.md", "resolution": "both"}`},
		{"missing url", "configureRemote", `{"url": ""}`},
		{"missing repository name", "githubCreateRepo", `{"description": "notes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, d, s, tt.command, tt.args)
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
}

func TestDispatch_RequiresRepository(t *testing.T) {
	s := newSession(t, state.Options{})

	isRepo, err := Dispatch(context.Background(), s, "isRepo", nil)
	require.NoError(t, err)
	assert.Equal(t, false, isRepo)

	_, err = Dispatch(context.Background(), s, "history", nil)
	assert.ErrorIs(t, err, git.ErrNotARepository)
}

func TestDispatcher_RecordsActivityAndMetrics(t *testing.T) {
	// Given a journaled session and a dispatcher with metrics
	s := newSession(t, state.Options{JournalEnabled: true})
	collector := metrics.NewCollector(nil)
	var seen []string
	d := &Dispatcher{
		Metrics: collector,
		OnResult: func(_ *state.Session, name string, _ any, _ error) {
			seen = append(seen, name)
		},
	}

	// When
	_, err := run(t, d, s, "init", "")
	require.NoError(t, err)
	require.NoError(t, writeNote(s, "a.md", "alpha\n"))
	id, err := run(t, d, s, "commitAll", `{"message": "first"}`)
	require.NoError(t, err)
	_, err = run(t, d, s, "commitAll", `{"message": "again"}`)
	require.ErrorIs(t, err, git.ErrNoChanges)

	// Then the journal lists mutating commands newest first
	out, err := run(t, d, s, "activity", `{"limit": 10}`)
	require.NoError(t, err)
	entries, ok := out.([]journal.Entry)
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, "commitAll", entries[0].Op)
	assert.Equal(t, journal.OutcomeError, entries[0].Outcome)
	assert.Contains(t, entries[0].Detail, "nothing to commit")
	assert.Equal(t, id, entries[1].Commit)
	assert.Equal(t, journal.OutcomeOK, entries[1].Outcome)
	assert.Equal(t, "init", entries[2].Op)

	assert.Equal(t, []string{"init", "commitAll", "commitAll", "activity"}, seen)

	count, err := testutil.GatherAndCount(collector.Registry(), "vaultsync_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestActivity_WithoutJournal(t *testing.T) {
	s := newSession(t, state.Options{})

	out, err := Dispatch(context.Background(), s, "activity", nil)

	require.NoError(t, err)
	assert.Equal(t, []journal.Entry{}, out)
}

func TestRemoteToken(t *testing.T) {
	ctx := context.Background()

	t.Run("local remote needs none", func(t *testing.T) {
		s := newSession(t, state.Options{})
		repo, err := git.Init(s.Path)
		require.NoError(t, err)
		require.NoError(t, repo.ConfigureRemote(t.TempDir()))

		token, err := remoteToken(ctx, s, repo)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("https without credential", func(t *testing.T) {
		s := newSession(t, state.Options{})
		repo, err := git.Init(s.Path)
		require.NoError(t, err)
		require.NoError(t, repo.ConfigureRemote("https://example.com/vault.git"))

		_, err = remoteToken(ctx, s, repo)
		assert.ErrorIs(t, err, git.ErrCredentialMissing)
	})

	t.Run("https with credential", func(t *testing.T) {
		s := newSession(t, state.Options{
			Credentials: credentials.NewStaticSource(map[string]string{"github": "s3cret"}),
		})
		repo, err := git.Init(s.Path)
		require.NoError(t, err)
		require.NoError(t, repo.ConfigureRemote("https://example.com/vault.git"))

		token, err := remoteToken(ctx, s, repo)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", token)
	})
}

func TestHelpCommand(t *testing.T) {
	s := newSession(t, state.Options{})

	out, err := Dispatch(context.Background(), s, "help", json.RawMessage(`{"command": "sync"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "sync")

	_, err = Dispatch(context.Background(), s, "help", json.RawMessage(`{"command": "rebase"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

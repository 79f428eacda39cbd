package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/state"
)

func TestStart_EmptyScheduleIsDisabled(t *testing.T) {
	s := New("", state.NewSessionManager(state.Options{}), nil)

	require.NoError(t, s.Start(context.Background()))

	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRun())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New("every tuesday", state.NewSessionManager(state.Options{}), nil)

	err := s.Start(context.Background())

	assert.Error(t, err)
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New("*/15 * * * *", state.NewSessionManager(state.Options{}), nil)

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.NotNil(t, s.NextRun())

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestRunOnce_SyncsVaultsWithRemote(t *testing.T) {
	// Given one vault with a remote and unpushed work, and one plain directory
	remote := t.TempDir()
	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)

	sm := state.NewSessionManager(state.Options{})
	t.Cleanup(func() { _ = sm.Close() })

	synced, err := sm.OpenSession(t.TempDir())
	require.NoError(t, err)
	repo, err := git.Init(synced.Path)
	require.NoError(t, err)
	require.NoError(t, repo.ConfigureRemote(remote))
	require.NoError(t, os.WriteFile(filepath.Join(synced.Path, "a.md"), []byte("alpha\n"), 0o644))
	_, err = repo.CommitAll("first")
	require.NoError(t, err)

	_, err = sm.OpenSession(t.TempDir())
	require.NoError(t, err)

	collector := metrics.NewCollector(nil)
	s := New("@hourly", sm, &commands.Dispatcher{Metrics: collector})

	// When
	s.RunOnce(context.Background())

	// Then the vault was pushed and the plain directory was skipped
	st, err := repo.SyncStatus()
	require.NoError(t, err)
	assert.Equal(t, git.SyncStatus{UpToDate: true}, st)
}

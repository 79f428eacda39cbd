package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/state"
)

// vault drives one vault through the command surface, the way a client would.
type vault struct {
	t       *testing.T
	session *state.Session
}

func newManager(t *testing.T) *state.SessionManager {
	t.Helper()
	sm := state.NewSessionManager(state.Options{JournalEnabled: true})
	t.Cleanup(func() { _ = sm.Close() })
	return sm
}

func openVault(t *testing.T, sm *state.SessionManager) *vault {
	t.Helper()
	s, err := sm.OpenSession(t.TempDir())
	require.NoError(t, err)
	v := &vault{t: t, session: s}
	v.mustExec("init", nil)
	return v
}

// bareRemote creates an empty bare repository to sync through.
func bareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		Bare: true,
		InitOptions: gogit.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(git.DefaultBranch),
		},
	})
	require.NoError(t, err)
	return dir
}

func (v *vault) exec(name string, args any) (any, error) {
	v.t.Helper()
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		require.NoError(v.t, err)
		raw = data
	}
	return commands.Dispatch(context.Background(), v.session, name, raw)
}

func (v *vault) mustExec(name string, args any) any {
	v.t.Helper()
	out, err := v.exec(name, args)
	require.NoError(v.t, err, name)
	return out
}

func (v *vault) write(name, content string) {
	v.t.Helper()
	p := filepath.Join(v.session.Path, filepath.FromSlash(name))
	require.NoError(v.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(v.t, os.WriteFile(p, []byte(content), 0o644))
}

func (v *vault) read(name string) string {
	v.t.Helper()
	data, err := os.ReadFile(filepath.Join(v.session.Path, filepath.FromSlash(name)))
	require.NoError(v.t, err)
	return string(data)
}

func (v *vault) history() []git.CommitInfo {
	v.t.Helper()
	out := v.mustExec("history", map[string]any{"limit": 100})
	commits, ok := out.([]git.CommitInfo)
	require.True(v.t, ok)
	return commits
}

func (v *vault) resolution(out any) git.ConflictResolution {
	v.t.Helper()
	res, ok := out.(git.ConflictResolution)
	require.True(v.t, ok)
	return res
}

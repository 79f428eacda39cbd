package git

import (
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

// newVault creates an initialized vault in a temp dir.
func newVault(t *testing.T) *Repository {
	t.Helper()
	r, err := Init(t.TempDir())
	require.NoError(t, err)
	return r
}

// newRemote creates a bare repository usable as origin.
func newRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		Bare: true,
		InitOptions: gogit.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch),
		},
	})
	require.NoError(t, err)
	return dir
}

// newReplica opens a fresh vault wired to remote.
func newReplica(t *testing.T, remote string) *Repository {
	t.Helper()
	r := newVault(t)
	require.NoError(t, r.ConfigureRemote(remote))
	return r
}

func writeFile(t *testing.T, r *Repository, name, content string) {
	t.Helper()
	p := filepath.Join(r.Root(), filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, r *Repository, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Root(), filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func fileExists(r *Repository, name string) bool {
	_, err := os.Stat(filepath.Join(r.Root(), filepath.FromSlash(name)))
	return err == nil
}

// commitFiles writes files and commits everything as the user.
func commitFiles(t *testing.T, r *Repository, message string, files map[string]string) plumbing.Hash {
	t.Helper()
	for name, content := range files {
		writeFile(t, r, name, content)
	}
	h, err := r.CommitAll(message)
	require.NoError(t, err)
	return h
}

func headOf(t *testing.T, r *Repository) plumbing.Hash {
	t.Helper()
	h, err := r.headHash()
	require.NoError(t, err)
	return h
}

func treeHashOf(t *testing.T, r *Repository, h plumbing.Hash) plumbing.Hash {
	t.Helper()
	c, err := r.Git().CommitObject(h)
	require.NoError(t, err)
	return c.TreeHash
}

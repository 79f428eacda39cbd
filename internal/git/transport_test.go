package git

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownHashes(t *testing.T) {
	sto := memory.NewStorage()
	obj := sto.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte("stored\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	stored, err := sto.SetEncodedObject(obj)
	require.NoError(t, err)
	missing := plumbing.NewHash("1111111111111111111111111111111111111111")

	got := knownHashes(sto, []plumbing.Hash{missing, stored})

	assert.Equal(t, []plumbing.Hash{stored}, got)
}

func TestFetch_WithUnpushedLocalCommits(t *testing.T) {
	// Given a replica whose commits the remote has never seen
	ctx := context.Background()
	a, b := sharedHistory(t)
	remoteHead := commitFiles(t, a, "remote", map[string]string{"a.md": "from a\n"})
	require.NoError(t, a.Push(ctx, ""))
	commitFiles(t, b, "local 1", map[string]string{"b.md": "b1\n"})
	commitFiles(t, b, "local 2", map[string]string{"b.md": "b2\n"})

	// When
	err := b.Fetch(ctx, "")

	// Then the remote branch arrives and the divergence is counted
	require.NoError(t, err)
	tracking, ok, err := b.trackingHash(plumbing.NewBranchReferenceName(DefaultBranch))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, remoteHead, tracking)

	st, err := b.SyncStatus()
	require.NoError(t, err)
	assert.Equal(t, SyncStatus{Ahead: 2, Behind: 1}, st)
}

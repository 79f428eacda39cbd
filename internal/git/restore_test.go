package git

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreToCommit_RecordsTargetTreeOnTop(t *testing.T) {
	// Given two commits and an ignored file
	r := newVault(t)
	c1 := commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})
	c2 := commitFiles(t, r, "second", map[string]string{"a.md": "two\n", "notes/b.md": "beta\n"})
	writeFile(t, r, ".moss/activity.db", "journal")

	// When
	h, err := r.RestoreToCommit(c1.String()[:8])
	require.NoError(t, err)

	// Then the vault matches the first commit, history grew by one
	assert.Equal(t, "one\n", readFile(t, r, "a.md"))
	assert.False(t, fileExists(r, "notes/b.md"))
	assert.False(t, fileExists(r, "notes"))
	assert.Equal(t, "journal", readFile(t, r, ".moss/activity.db"))

	c, err := r.Git().CommitObject(h)
	require.NoError(t, err)
	require.Len(t, c.ParentHashes, 1)
	assert.Equal(t, c2, c.ParentHashes[0])
	assert.Equal(t, treeHashOf(t, r, c1), c.TreeHash)
	assert.Equal(t, fmt.Sprintf("Restored vault to: first (%s)", c1.String()[:8]), c.Message)
	assert.Equal(t, userName, c.Author.Name)

	dirty, err := r.HasUncommittedChanges()
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestRestoreToCommit_KeepsIgnoredFilesWhenTargetHasNoGitignore(t *testing.T) {
	// Given a root commit made before .gitignore was tracked, and a journal on disk
	r := newVault(t)
	writeFile(t, r, "note.md", "first draft\n")
	root, err := r.AutoCommit("Auto-save", []string{"note.md"})
	require.NoError(t, err)
	commitFiles(t, r, "tidy up", map[string]string{"note.md": "second draft\n"})
	writeFile(t, r, ".moss/activity.db", "journal")

	// When
	h, err := r.RestoreToCommit(root.String())
	require.NoError(t, err)

	// Then the note is restored and the ignore rules and the journal survive
	assert.Equal(t, "first draft\n", readFile(t, r, "note.md"))
	assert.Equal(t, "journal", readFile(t, r, ".moss/activity.db"))
	assert.Equal(t, ".moss/\n.DS_Store\n", readFile(t, r, ".gitignore"))
	assert.Equal(t, treeHashOf(t, r, root), treeHashOf(t, r, h))

	status, err := r.Git().Worktree()
	require.NoError(t, err)
	st, err := status.Status()
	require.NoError(t, err)
	assert.True(t, st.IsUntracked(".gitignore"))
	assert.False(t, st.IsUntracked(".moss/activity.db"))
}

func TestRestoreToCommit_RefusesDirtyTree(t *testing.T) {
	r := newVault(t)
	c1 := commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})
	commitFiles(t, r, "second", map[string]string{"a.md": "two\n"})
	writeFile(t, r, "a.md", "unsaved\n")
	head := headOf(t, r)

	_, err := r.RestoreToCommit(c1.String())

	assert.ErrorIs(t, err, ErrDirtyWorkingTree)
	assert.Equal(t, head, headOf(t, r))
	assert.Equal(t, "unsaved\n", readFile(t, r, "a.md"))
}

func TestRestoreToCommit_UnknownCommit(t *testing.T) {
	r := newVault(t)
	commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})

	_, err := r.RestoreToCommit("0123456789abcdef0123456789abcdef01234567")

	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestUndoLastAutomationCommit_RevertsToParentTree(t *testing.T) {
	// Given a user commit followed by an automation commit
	r := newVault(t)
	base := commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})
	writeFile(t, r, "a.md", "auto\n")
	writeFile(t, r, "new.md", "created\n")
	auto, err := r.AutoCommit("Auto-save", []string{"a.md", "new.md"})
	require.NoError(t, err)

	// When
	h, err := r.UndoLastAutomationCommit()
	require.NoError(t, err)

	// Then
	assert.Equal(t, "one\n", readFile(t, r, "a.md"))
	assert.False(t, fileExists(r, "new.md"))

	c, err := r.Git().CommitObject(h)
	require.NoError(t, err)
	require.Len(t, c.ParentHashes, 1)
	assert.Equal(t, auto, c.ParentHashes[0])
	assert.Equal(t, treeHashOf(t, r, base), c.TreeHash)
	autoCommit, err := r.Git().CommitObject(auto)
	require.NoError(t, err)
	assert.Equal(t, "Revert: "+autoCommit.Message, c.Message)
	assert.Equal(t, automationName, c.Author.Name)
}

func TestUndoLastAutomationCommit_OnlyOnce(t *testing.T) {
	// Given an undone automation commit
	r := newVault(t)
	commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})
	writeFile(t, r, "a.md", "auto\n")
	_, err := r.AutoCommit("Auto-save", []string{"a.md"})
	require.NoError(t, err)
	_, err = r.UndoLastAutomationCommit()
	require.NoError(t, err)

	// When undo runs again, the revert commit is not itself an automation commit
	_, err = r.UndoLastAutomationCommit()

	// Then
	assert.ErrorIs(t, err, ErrNotAutomationCommit)
}

func TestUndoLastAutomationCommit_Guards(t *testing.T) {
	t.Run("user commit", func(t *testing.T) {
		r := newVault(t)
		head := commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})

		_, err := r.UndoLastAutomationCommit()

		assert.ErrorIs(t, err, ErrNotAutomationCommit)
		assert.Equal(t, head, headOf(t, r))
	})

	t.Run("unborn branch", func(t *testing.T) {
		r := newVault(t)
		_, err := r.UndoLastAutomationCommit()
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("dirty touched path", func(t *testing.T) {
		r := newVault(t)
		commitFiles(t, r, "first", map[string]string{"a.md": "one\n"})
		writeFile(t, r, "a.md", "auto\n")
		auto, err := r.AutoCommit("Auto-save", []string{"a.md"})
		require.NoError(t, err)
		writeFile(t, r, "a.md", "typing\n")

		_, err = r.UndoLastAutomationCommit()

		assert.ErrorIs(t, err, ErrDirtyWorkingTree)
		assert.Equal(t, auto, headOf(t, r))
		assert.Equal(t, "typing\n", readFile(t, r, "a.md"))
	})

	t.Run("root automation commit", func(t *testing.T) {
		r := newVault(t)
		writeFile(t, r, "a.md", "auto\n")
		_, err := r.AutoCommit("Auto-save", []string{"a.md"})
		require.NoError(t, err)

		h, err := r.UndoLastAutomationCommit()

		require.NoError(t, err)
		assert.False(t, fileExists(r, "a.md"))
		c, err := r.Git().CommitObject(h)
		require.NoError(t, err)
		tree, err := c.Tree()
		require.NoError(t, err)
		assert.Empty(t, tree.Entries)
	})
}

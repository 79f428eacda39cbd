package git

// history.go - History & Diff Reporter
//
// Read-only walks over the commit graph: commit summaries, file content at a
// revision, per-commit file changes and unified diffs.

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/pmezard/go-difflib/difflib"
)

// ListCommits walks from HEAD in commit-time order and returns at most opts.Limit
// matching commits. A repository without commits yields an empty list.
func (r *Repository) ListCommits(opts HistoryOptions) ([]CommitInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	filter := normalizePath(opts.Path)

	commits := []CommitInfo{}
	head, err := r.headHash()
	if err != nil || head.IsZero() {
		return commits, nil
	}

	iter, err := r.repo.Log(&gogit.LogOptions{From: head, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= limit {
			return storer.ErrStop
		}

		isAutomation := IsAutomationMessage(c.Message)
		if opts.AutomationOnly && !isAutomation {
			return nil
		}

		if filter != "" {
			touched, err := touchesPath(c, filter)
			if err != nil {
				return err
			}
			if !touched {
				return nil
			}
		}

		info := CommitInfo{
			ID:           c.Hash.String(),
			Message:      c.Message,
			Author:       c.Author.Name,
			Timestamp:    c.Committer.When.Unix(),
			IsAutomation: isAutomation,
		}
		if opts.WithStats {
			stats, err := commitStats(c)
			if err != nil {
				r.log.WithError(err).WithField("commit", c.Hash.String()[:7]).Debug("stats unavailable")
			} else {
				info.Stats = stats
			}
		}

		commits = append(commits, info)
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	return commits, nil
}

// touchesPath compares the tree entry for p between c and its first parent.
func touchesPath(c *object.Commit, p string) (bool, error) {
	tree, err := c.Tree()
	if err != nil {
		return false, err
	}
	entry, _ := tree.FindEntry(p)

	var parentEntry *object.TreeEntry
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return false, err
		}
		parentTree, err := parent.Tree()
		if err != nil {
			return false, err
		}
		parentEntry, _ = parentTree.FindEntry(p)
	}

	switch {
	case entry == nil && parentEntry == nil:
		return false, nil
	case entry == nil || parentEntry == nil:
		return true, nil
	}
	return entry.Hash != parentEntry.Hash || entry.Mode != parentEntry.Mode, nil
}

// firstParentTree returns the tree of c's first parent, or an empty tree for a root
// commit.
func firstParentTree(c *object.Commit) (*object.Tree, error) {
	if c.NumParents() == 0 {
		return &object.Tree{}, nil
	}
	parent, err := c.Parent(0)
	if err != nil {
		return nil, err
	}
	return parent.Tree()
}

func commitDiff(c *object.Commit) (object.Changes, error) {
	parentTree, err := firstParentTree(c)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	return object.DiffTreeWithOptions(context.Background(), parentTree, tree, object.DefaultDiffTreeOptions)
}

func commitStats(c *object.Commit) (*CommitStats, error) {
	changes, err := commitDiff(c)
	if err != nil {
		return nil, err
	}
	patch, err := changes.Patch()
	if err != nil {
		return nil, err
	}

	stats := &CommitStats{FilesChanged: len(changes), FilePaths: make([]string, 0, len(changes))}
	for _, ch := range changes {
		stats.FilePaths = append(stats.FilePaths, changePath(ch))
	}
	for _, fs := range patch.Stats() {
		stats.Insertions += fs.Addition
		stats.Deletions += fs.Deletion
	}
	return stats, nil
}

func changePath(ch *object.Change) string {
	if ch.To.Name != "" {
		return ch.To.Name
	}
	return ch.From.Name
}

func changeStatus(ch *object.Change) ChangeStatus {
	action, err := ch.Action()
	if err != nil {
		return ChangeUnknown
	}
	switch action {
	case merkletrie.Insert:
		return ChangeAdded
	case merkletrie.Delete:
		return ChangeDeleted
	case merkletrie.Modify:
		if ch.From.Name != ch.To.Name {
			return ChangeRenamed
		}
		return ChangeModified
	}
	return ChangeUnknown
}

// CommitChanges lists per-file status and line counts of a commit against its first
// parent. An added file whose content already existed in the parent is reported as
// copied.
func (r *Repository) CommitChanges(id string) ([]FileChange, error) {
	c, err := r.ResolveCommit(id)
	if err != nil {
		return nil, err
	}
	changes, err := commitDiff(c)
	if err != nil {
		return nil, err
	}
	parentTree, err := firstParentTree(c)
	if err != nil {
		return nil, err
	}
	existing, err := blobHashes(parentTree)
	if err != nil {
		return nil, err
	}

	result := make([]FileChange, 0, len(changes))
	for _, ch := range changes {
		fc := FileChange{Path: changePath(ch), Status: changeStatus(ch)}
		if fc.Status == ChangeAdded && existing[ch.To.TreeEntry.Hash] {
			fc.Status = ChangeCopied
		}
		if patch, err := ch.Patch(); err == nil {
			for _, st := range patch.Stats() {
				fc.Additions += st.Addition
				fc.Deletions += st.Deletion
			}
		}
		result = append(result, fc)
	}
	return result, nil
}

// blobHashes collects the non-empty file contents of tree by hash.
func blobHashes(tree *object.Tree) (map[plumbing.Hash]bool, error) {
	hashes := make(map[plumbing.Hash]bool)
	empty := plumbing.ComputeHash(plumbing.BlobObject, nil)
	err := tree.Files().ForEach(func(f *object.File) error {
		if f.Hash != empty {
			hashes[f.Hash] = true
		}
		return nil
	})
	return hashes, err
}

// FileContentAtCommit returns the text of a file at a commit. p is always
// slash-separated, whatever the host OS uses.
func (r *Repository) FileContentAtCommit(id, p string) (string, error) {
	c, err := r.ResolveCommit(id)
	if err != nil {
		return "", err
	}
	tree, err := c.Tree()
	if err != nil {
		return "", err
	}
	return treeFileContent(tree, normalizePath(p))
}

func treeFileContent(tree *object.Tree, p string) (string, error) {
	entry, err := tree.FindEntry(p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrObjectNotFound)
	}
	if entry.Mode == filemode.Dir || entry.Mode == filemode.Submodule {
		return "", fmt.Errorf("%s: %w", p, ErrNotAFile)
	}
	f, err := tree.TreeEntryFile(entry)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrObjectNotFound)
	}
	return f.Contents()
}

// FileDiff renders a unified diff of one file between a commit and its first parent.
// An empty string means the file did not change.
func (r *Repository) FileDiff(id, p string) (string, error) {
	c, err := r.ResolveCommit(id)
	if err != nil {
		return "", err
	}
	p = normalizePath(p)

	tree, err := c.Tree()
	if err != nil {
		return "", err
	}
	parentTree, err := firstParentTree(c)
	if err != nil {
		return "", err
	}

	after, errAfter := treeFileContent(tree, p)
	before, errBefore := treeFileContent(parentTree, p)
	if errAfter != nil && errBefore != nil {
		return "", errAfter
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + p,
		ToFile:   "b/" + p,
		Context:  3,
	})
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(s)
}

func normalizePath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

package git

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// checkoutTree moves the working directory from tree from to tree to and replaces the
// index with to. Only paths that differ between the two trees are written, so ignored
// and untouched files survive. go-git's hard reset deletes every file missing from the
// index, ignored ones included, which is why it is not used here.
//
// A root .gitignore that to does not track stays on disk, untracked, so the files it
// ignores (the journal among them) stay ignored.
func (r *Repository) checkoutTree(w *gogit.Worktree, from, to *object.Tree) error {
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return fmt.Errorf("failed to diff trees: %w", err)
	}

	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return err
		}
		if action == merkletrie.Delete {
			if ch.From.Name == ignoreFile {
				continue
			}
			if err := removeWorktreeFile(w.Filesystem, ch.From.Name); err != nil {
				return err
			}
			continue
		}
		if err := checkoutFile(w.Filesystem, to, ch.To.Name); err != nil {
			return err
		}
	}

	return r.resetIndex(w, to)
}

// checkoutFile writes the blob at name in tree into the working directory.
func checkoutFile(fs billy.Filesystem, tree *object.Tree, name string) error {
	f, err := tree.File(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, ErrObjectNotFound)
	}
	rd, err := f.Reader()
	if err != nil {
		return err
	}
	defer rd.Close()

	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	return writeWorktreeFile(fs, name, data, fileMode(f.Mode))
}

func fileMode(m filemode.FileMode) os.FileMode {
	if mode, err := m.ToOSFileMode(); err == nil && mode.IsRegular() {
		return mode
	}
	return 0o644
}

// protectIgnored makes Clean and Status on w skip the baseline ignores and the root
// .gitignore itself, whatever the tracked .gitignore says.
func protectIgnored(w *gogit.Worktree) {
	w.Excludes = append(w.Excludes, gitignore.ParsePattern(ignoreFile, nil))
	for _, entry := range defaultIgnores {
		w.Excludes = append(w.Excludes, gitignore.ParsePattern(entry, nil))
	}
}

// resetIndex replaces the index with the entries of tree, carrying over the on-disk
// size and mtime where the file exists.
func (r *Repository) resetIndex(w *gogit.Worktree, tree *object.Tree) error {
	idx := &index.Index{Version: 2}
	err := tree.Files().ForEach(func(f *object.File) error {
		e := &index.Entry{
			Name: f.Name,
			Hash: f.Hash,
			Mode: f.Mode,
		}
		if fi, err := w.Filesystem.Lstat(f.Name); err == nil {
			e.Size = uint32(fi.Size())
			e.ModifiedAt = fi.ModTime()
		}
		idx.Entries = append(idx.Entries, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return r.repo.Storer.SetIndex(idx)
}

// headTree returns the tree of HEAD, or an empty tree for an unborn branch.
func (r *Repository) headTree() (*object.Tree, error) {
	head, err := r.headHash()
	if err != nil {
		return nil, err
	}
	if head.IsZero() {
		return &object.Tree{}, nil
	}
	c, err := r.repo.CommitObject(head)
	if err != nil {
		return nil, err
	}
	return c.Tree()
}

// ensureUntouched fails with ErrDirtyWorkingTree when a path that differs between the
// two trees has uncommitted edits, unless the file on disk already matches to.
func (r *Repository) ensureUntouched(w *gogit.Worktree, from, to *object.Tree) error {
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return err
	}
	want := make(map[string]plumbing.Hash, len(changes))
	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.From.Name != "" && ch.From.Name != ch.To.Name {
			paths = append(paths, ch.From.Name)
			want[ch.From.Name] = plumbing.ZeroHash
		}
		if ch.To.Name != "" {
			paths = append(paths, ch.To.Name)
			want[ch.To.Name] = ch.To.TreeEntry.Hash
		}
	}
	return r.ensurePathsUntouched(w, paths, want)
}

// ensurePathsUntouched checks paths against the worktree status. A dirty path is
// accepted only when want holds its target blob and the file already has that
// content, or when the target is ZeroHash and the file is gone.
func (r *Repository) ensurePathsUntouched(w *gogit.Worktree, paths []string, want map[string]plumbing.Hash) error {
	if len(paths) == 0 {
		return nil
	}
	status, err := w.Status()
	if err != nil {
		return err
	}
	for _, p := range paths {
		st, ok := status[p]
		if !ok || (st.Staging == gogit.Unmodified && st.Worktree == gogit.Unmodified) {
			continue
		}
		if target, ok := want[p]; ok && diskMatches(w, p, target) {
			continue
		}
		return fmt.Errorf("%s: %w", p, ErrDirtyWorkingTree)
	}
	return nil
}

func diskMatches(w *gogit.Worktree, p string, target plumbing.Hash) bool {
	f, err := w.Filesystem.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return target.IsZero()
	}
	if err != nil || target.IsZero() {
		if f != nil {
			f.Close()
		}
		return false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return false
	}
	return plumbing.ComputeHash(plumbing.BlobObject, data) == target
}

package git

// commit.go - Commit Engine
//
// Stages paths (or every change) and records a commit with the identity matching
// who asked for it: the automation identity for auto-commits, the user otherwise.

import (
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// AutoCommit stages exactly files and commits them as the automation identity.
// Callers are expected to log a failure and carry on.
func (r *Repository) AutoCommit(message string, files []string) (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := r.relPath(f)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		paths = append(paths, rel)
	}

	return r.stageAndCommit(paths, false, automationMessage(message, time.Now()), AutomationSignature())
}

// CommitFile stages a single path and commits it verbatim as the user.
func (r *Repository) CommitFile(message, file string) (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel, err := r.relPath(file)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return r.stageAndCommit([]string{rel}, false, message, UserSignature())
}

// CommitAll stages every added, modified and deleted path and commits as the user.
func (r *Repository) CommitAll(message string) (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stageAndCommit(nil, true, message, UserSignature())
}

func (r *Repository) stageAndCommit(paths []string, all bool, message string, sig *object.Signature) (plumbing.Hash, error) {
	if r.IsMerging() {
		return plumbing.ZeroHash, ErrAlreadyMerging
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if all {
		if err := w.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to stage changes: %w", err)
		}
	} else {
		for _, p := range paths {
			if _, err := w.Add(p); err != nil {
				return plumbing.ZeroHash, fmt.Errorf("failed to stage %s: %w", p, err)
			}
		}
	}

	return r.commitIndex(w, message, sig, nil, false)
}

// commitIndex records the current index. When parents is nil the parent is HEAD,
// or none for the first commit.
func (r *Repository) commitIndex(w *gogit.Worktree, message string, sig *object.Signature, parents []plumbing.Hash, allowEmpty bool) (plumbing.Hash, error) {
	hash, err := w.Commit(message, &gogit.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           parents,
		AllowEmptyCommits: allowEmpty,
	})
	if errors.Is(err, gogit.ErrEmptyCommit) {
		return plumbing.ZeroHash, ErrNoChanges
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to commit: %w", err)
	}

	r.log.WithField("commit", hash.String()[:7]).Debug("created commit")
	return hash, nil
}

package git

// sync.go - Pull, sync and ahead/behind status against origin

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SyncStatus counts commits on each side of the local branch and its tracking
// branch. Without a tracking branch every local commit counts as ahead.
func (r *Repository) SyncStatus() (SyncStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.syncStatus()
}

func (r *Repository) syncStatus() (SyncStatus, error) {
	branch, err := r.currentBranch()
	if err != nil {
		return SyncStatus{}, err
	}
	head, err := r.headHash()
	if err != nil {
		return SyncStatus{}, err
	}

	remote, ok, err := r.trackingHash(branch)
	if err != nil {
		return SyncStatus{}, err
	}
	if !ok {
		if head.IsZero() {
			return SyncStatus{}, nil
		}
		local, err := r.reachable(head)
		if err != nil {
			return SyncStatus{}, err
		}
		return SyncStatus{Ahead: len(local)}, nil
	}

	local, err := r.reachable(head)
	if err != nil {
		return SyncStatus{}, err
	}
	upstream, err := r.reachable(remote)
	if err != nil {
		return SyncStatus{}, err
	}

	st := SyncStatus{
		Ahead:  countMissing(local, upstream),
		Behind: countMissing(upstream, local),
	}
	st.UpToDate = st.Ahead == 0 && st.Behind == 0
	return st, nil
}

func countMissing(from, in map[plumbing.Hash]struct{}) int {
	n := 0
	for h := range from {
		if _, ok := in[h]; !ok {
			n++
		}
	}
	return n
}

// reachable returns every commit reachable from h, h included. A zero hash yields an
// empty set.
func (r *Repository) reachable(h plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	seen := make(map[plumbing.Hash]struct{})
	if h.IsZero() {
		return seen, nil
	}
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", h, ErrObjectNotFound)
	}
	iter := object.NewCommitPreorderIter(c, nil, nil)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		seen[c.Hash] = struct{}{}
		return nil
	})
	return seen, err
}

func (r *Repository) trackingHash(branch plumbing.ReferenceName) (plumbing.Hash, bool, error) {
	ref, err := r.repo.Reference(trackingRef(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return ref.Hash(), true, nil
}

// Pull fetches origin and integrates its branch: nothing to do, a fast-forward, a
// clean merge commit, or a stop in the Merging state with the conflicts listed.
func (r *Repository) Pull(ctx context.Context, token string) (ConflictResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pull(ctx, token)
}

func (r *Repository) pull(ctx context.Context, token string) (ConflictResolution, error) {
	if r.IsMerging() {
		return ConflictResolution{}, ErrAlreadyMerging
	}
	if err := r.fetch(ctx, token); err != nil {
		return ConflictResolution{}, err
	}

	branch, err := r.currentBranch()
	if err != nil {
		return ConflictResolution{}, err
	}
	remote, ok, err := r.trackingHash(branch)
	if err != nil {
		return ConflictResolution{}, err
	}
	if !ok {
		return r.cleanResolution()
	}
	head, err := r.headHash()
	if err != nil {
		return ConflictResolution{}, err
	}

	log := r.log.WithField("branch", branch.Short())
	switch {
	case head == remote:
		return r.cleanResolution()
	case head.IsZero():
		log.Info("fast-forwarding unborn branch")
		return r.fastForward(branch, head, remote)
	}

	remoteIsOlder, err := r.isAncestor(remote, head)
	if err != nil {
		return ConflictResolution{}, err
	}
	if remoteIsOlder {
		return r.cleanResolution()
	}
	localIsOlder, err := r.isAncestor(head, remote)
	if err != nil {
		return ConflictResolution{}, err
	}
	if localIsOlder {
		log.Info("fast-forwarding")
		return r.fastForward(branch, head, remote)
	}

	log.Info("merging diverged branches")
	return r.merge(branch, head, remote)
}

func (r *Repository) cleanResolution() (ConflictResolution, error) {
	st, err := r.syncStatus()
	if err != nil {
		return ConflictResolution{}, err
	}
	return ConflictResolution{Conflicts: []ConflictEntry{}, SyncStatus: st}, nil
}

func (r *Repository) fastForward(branch plumbing.ReferenceName, head, remote plumbing.Hash) (ConflictResolution, error) {
	from, err := r.headTree()
	if err != nil {
		return ConflictResolution{}, err
	}
	target, err := r.repo.CommitObject(remote)
	if err != nil {
		return ConflictResolution{}, fmt.Errorf("commit %s: %w", remote, ErrObjectNotFound)
	}
	to, err := target.Tree()
	if err != nil {
		return ConflictResolution{}, err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return ConflictResolution{}, err
	}
	if err := r.ensureUntouched(w, from, to); err != nil {
		return ConflictResolution{}, err
	}
	if err := r.checkoutTree(w, from, to); err != nil {
		return ConflictResolution{}, err
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branch, remote)); err != nil {
		return ConflictResolution{}, fmt.Errorf("failed to move %s: %w", branch.Short(), err)
	}
	return r.cleanResolution()
}

func (r *Repository) merge(branch plumbing.ReferenceName, head, remote plumbing.Hash) (ConflictResolution, error) {
	ours, err := r.repo.CommitObject(head)
	if err != nil {
		return ConflictResolution{}, err
	}
	theirs, err := r.repo.CommitObject(remote)
	if err != nil {
		return ConflictResolution{}, fmt.Errorf("commit %s: %w", remote, ErrObjectNotFound)
	}

	baseTree := &object.Tree{}
	bases, err := ours.MergeBase(theirs)
	if err != nil {
		return ConflictResolution{}, err
	}
	if len(bases) > 0 {
		if baseTree, err = bases[0].Tree(); err != nil {
			return ConflictResolution{}, err
		}
	}
	oursTree, err := ours.Tree()
	if err != nil {
		return ConflictResolution{}, err
	}
	theirsTree, err := theirs.Tree()
	if err != nil {
		return ConflictResolution{}, err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return ConflictResolution{}, err
	}

	label := RemoteName + "/" + branch.Short()
	conflicted, err := r.mergeTrees(w, baseTree, oursTree, theirsTree, label)
	if err != nil {
		return ConflictResolution{}, fmt.Errorf("merge failed: %w", err)
	}
	msg := r.mergeMessage()

	if len(conflicted) > 0 {
		if err := r.writeMergeState(head, remote, msg); err != nil {
			if rerr := r.restoreMergedPaths(); rerr != nil {
				r.log.WithError(rerr).Warn("could not undo merge after failing to record it")
			}
			r.clearMergeState()
			return ConflictResolution{}, err
		}
		conflicts, err := r.Conflicts()
		if err != nil {
			return ConflictResolution{}, err
		}
		st, err := r.syncStatus()
		if err != nil {
			return ConflictResolution{}, err
		}
		r.log.WithField("paths", conflicted).Warn("merge stopped on conflicts")
		return ConflictResolution{HasConflicts: true, Conflicts: conflicts, SyncStatus: st}, nil
	}

	if _, err := r.commitIndex(w, msg, UserSignature(), []plumbing.Hash{head, remote}, true); err != nil {
		if rerr := r.restoreMergedPaths(); rerr != nil {
			r.log.WithError(rerr).Warn("could not undo merge after failing to commit it")
		}
		return ConflictResolution{}, err
	}
	return r.cleanResolution()
}

func (r *Repository) mergeMessage() string {
	name := DefaultBranch
	if branch, err := r.currentBranch(); err == nil {
		name = branch.Short()
	}
	return fmt.Sprintf("Merge remote-tracking branch '%s/%s'", RemoteName, name)
}

// Sync pulls, and pushes when the pull left no conflicts. Conflicts are returned
// without pushing; the caller resolves them and calls CompleteMerge.
func (r *Repository) Sync(ctx context.Context, token string) (ConflictResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.pull(ctx, token)
	if err != nil || res.HasConflicts {
		return res, err
	}
	if err := r.push(ctx, token); err != nil {
		return res, err
	}
	st, err := r.syncStatus()
	if err != nil {
		return res, err
	}
	res.SyncStatus = st
	return res, nil
}

// CompleteMergeAndPush commits a resolved merge, pushes it and reports the new status.
func (r *Repository) CompleteMergeAndPush(ctx context.Context, token string) (SyncStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.completeMerge(); err != nil {
		return SyncStatus{}, err
	}
	if err := r.push(ctx, token); err != nil {
		return SyncStatus{}, err
	}
	return r.syncStatus()
}

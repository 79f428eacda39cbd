package git

// restore.go - Restore/Undo Engine
//
// Both operations append a commit. History is never rewritten.

import (
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// RestoreToCommit makes the vault look like commit id and records that state as a new
// commit on top of HEAD.
func (r *Repository) RestoreToCommit(id string) (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dirty, err := r.HasUncommittedChanges()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if dirty || r.IsMerging() {
		return plumbing.ZeroHash, ErrDirtyWorkingTree
	}

	target, err := r.ResolveCommit(id)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	targetTree, err := target.Tree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	head, err := r.headHash()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	currentTree, err := r.headTree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := r.checkoutTree(w, currentTree, targetTree); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to check out %s: %w", target.Hash.String()[:8], err)
	}
	protectIgnored(w)
	if err := w.Clean(&gogit.CleanOptions{Dir: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to remove untracked files: %w", err)
	}

	var parents []plumbing.Hash
	if !head.IsZero() {
		parents = []plumbing.Hash{head}
	}
	msg := fmt.Sprintf("Restored vault to: %s (%s)", strings.TrimSpace(target.Message), target.Hash.String()[:8])

	hash, err := r.commitIndex(w, msg, UserSignature(), parents, true)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	r.log.WithField("target", target.Hash.String()[:8]).Info("restored vault")
	return hash, nil
}

// UndoLastAutomationCommit reverts HEAD when, and only when, HEAD was written by the
// automation. User commits can only be rolled back through RestoreToCommit.
func (r *Repository) UndoLastAutomationCommit() (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.IsMerging() {
		return plumbing.ZeroHash, ErrAlreadyMerging
	}

	head, err := r.headHash()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if head.IsZero() {
		return plumbing.ZeroHash, fmt.Errorf("HEAD: %w", ErrObjectNotFound)
	}
	headCommit, err := r.repo.CommitObject(head)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !IsAutomationMessage(headCommit.Message) {
		return plumbing.ZeroHash, ErrNotAutomationCommit
	}

	headTree, err := headCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	parentTree, err := firstParentTree(headCommit)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := r.ensureUntouched(w, headTree, parentTree); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := r.checkoutTree(w, headTree, parentTree); err != nil {
		return plumbing.ZeroHash, err
	}

	msg := "Revert: " + headCommit.Message
	return r.commitIndex(w, msg, AutomationSignature(), []plumbing.Hash{head}, true)
}

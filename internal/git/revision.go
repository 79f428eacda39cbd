package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ResolveCommit resolves a revision (full id, abbreviated id of at least 4 hex chars,
// branch or HEAD) to a commit. Unknown revisions wrap ErrObjectNotFound.
func (r *Repository) ResolveCommit(rev string) (*object.Commit, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return nil, fmt.Errorf("empty revision: %w", ErrObjectNotFound)
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		hash, err = r.resolveShortHash(rev)
		if err != nil {
			return nil, err
		}
	}

	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", rev, ErrObjectNotFound)
	}
	return c, nil
}

func (r *Repository) resolveShortHash(rev string) (*plumbing.Hash, error) {
	if len(rev) < 4 || len(rev) >= 40 {
		return nil, fmt.Errorf("revision %q: %w", rev, ErrObjectNotFound)
	}

	iter, err := r.repo.CommitObjects()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var match *plumbing.Hash
	ambiguous := false
	err = iter.ForEach(func(c *object.Commit) error {
		if !strings.HasPrefix(c.Hash.String(), rev) {
			return nil
		}
		if match != nil {
			ambiguous = true
			return storer.ErrStop
		}
		h := c.Hash
		match = &h
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, err
	}
	if ambiguous {
		return nil, fmt.Errorf("short commit id %q is ambiguous", rev)
	}
	if match == nil {
		return nil, fmt.Errorf("revision %q: %w", rev, ErrObjectNotFound)
	}
	return match, nil
}

// isAncestor reports whether ancestor is reachable from descendant (or equal to it).
func (r *Repository) isAncestor(ancestor, descendant plumbing.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	a, err := r.repo.CommitObject(ancestor)
	if err != nil {
		return false, err
	}
	d, err := r.repo.CommitObject(descendant)
	if err != nil {
		return false, err
	}
	return a.IsAncestor(d)
}

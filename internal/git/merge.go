package git

// merge.go - Three-way merge and the Merging state
//
// A merge that stops on conflicts leaves MERGE_HEAD, ORIG_HEAD and MERGE_MSG in the
// .git directory and stage 1/2/3 entries in the index, the same layout git uses, so
// other git tools see the merge too.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	logger "github.com/sirupsen/logrus"
)

const (
	mergeHeadFile = "MERGE_HEAD"
	origHeadFile  = "ORIG_HEAD"
	mergeMsgFile  = "MERGE_MSG"

	// stageMerged is the stage of a resolved index entry. go-git's index.Merged
	// constant is 1, which collides with the ancestor stage.
	stageMerged index.Stage = 0
)

type mergeSide struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

func (s *mergeSide) equal(o *mergeSide) bool {
	switch {
	case s == nil && o == nil:
		return true
	case s == nil || o == nil:
		return false
	}
	return s.hash == o.hash && s.mode == o.mode
}

func treeSides(t *object.Tree) (map[string]*mergeSide, error) {
	sides := make(map[string]*mergeSide)
	if t == nil {
		return sides, nil
	}
	err := t.Files().ForEach(func(f *object.File) error {
		sides[f.Name] = &mergeSide{hash: f.Hash, mode: f.Mode}
		return nil
	})
	return sides, err
}

// mergeTrees merges theirs into ours against base, writing the result into the
// working directory and index. Per path:
//   - ours == theirs: keep ours
//   - base == ours: take theirs (including a deletion)
//   - base == theirs: keep ours
//   - both edited a text file: merge line by line; only overlapping edits conflict
//   - otherwise: conflict, staged as ancestor/ours/theirs with markers on disk
//
// Paths the merge writes must not carry uncommitted edits. When a write fails, the
// paths already written go back to ours. It returns the conflicted paths in sorted
// order.
func (r *Repository) mergeTrees(w *gogit.Worktree, base, ours, theirs *object.Tree, theirsLabel string) ([]string, error) {
	baseSides, err := treeSides(base)
	if err != nil {
		return nil, err
	}
	ourSides, err := treeSides(ours)
	if err != nil {
		return nil, err
	}
	theirSides, err := treeSides(theirs)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{})
	for _, m := range []map[string]*mergeSide{baseSides, ourSides, theirSides} {
		for p := range m {
			paths[p] = struct{}{}
		}
	}

	var (
		takeTheirs []string
		bothEdited []string
		want       = make(map[string]plumbing.Hash)
	)
	for p := range paths {
		b, o, t := baseSides[p], ourSides[p], theirSides[p]
		switch {
		case o.equal(t), b.equal(t):
			// ours already holds the result
		case b.equal(o):
			takeTheirs = append(takeTheirs, p)
			want[p] = plumbing.ZeroHash
			if t != nil {
				want[p] = t.hash
			}
		default:
			bothEdited = append(bothEdited, p)
		}
	}
	sort.Strings(takeTheirs)
	sort.Strings(bothEdited)

	if err := r.ensurePathsUntouched(w, append(append([]string{}, takeTheirs...), bothEdited...), want); err != nil {
		return nil, err
	}

	entries := make(map[string][]*index.Entry, len(ourSides))
	for p, s := range ourSides {
		entries[p] = []*index.Entry{{Name: p, Hash: s.hash, Mode: s.mode}}
	}

	var written []string
	fail := func(err error) ([]string, error) {
		r.rollbackMerge(w, ours, written)
		return nil, err
	}

	for _, p := range takeTheirs {
		written = append(written, p)
		t := theirSides[p]
		if t == nil {
			delete(entries, p)
			if err := removeWorktreeFile(w.Filesystem, p); err != nil {
				return fail(err)
			}
			continue
		}
		if err := checkoutFile(w.Filesystem, theirs, p); err != nil {
			return fail(err)
		}
		entries[p] = []*index.Entry{{Name: p, Hash: t.hash, Mode: t.mode}}
	}

	var conflicts []string
	for _, p := range bothEdited {
		b, o, t := baseSides[p], ourSides[p], theirSides[p]
		content, clean, err := r.mergeFile(b, o, t, theirsLabel)
		if err != nil {
			return fail(err)
		}

		mode := filemode.Regular
		if o != nil {
			mode = o.mode
			if b != nil && o.mode == b.mode && t != nil {
				mode = t.mode
			}
		}

		written = append(written, p)
		if err := writeWorktreeFile(w.Filesystem, p, []byte(content), fileMode(mode)); err != nil {
			return fail(err)
		}

		if clean {
			hash, err := r.storeBlob([]byte(content))
			if err != nil {
				return fail(err)
			}
			entries[p] = []*index.Entry{{Name: p, Hash: hash, Mode: mode}}
			continue
		}

		conflicts = append(conflicts, p)
		staged := make([]*index.Entry, 0, 3)
		for _, side := range []struct {
			s     *mergeSide
			stage index.Stage
		}{{b, index.AncestorMode}, {o, index.OurMode}, {t, index.TheirMode}} {
			if side.s != nil {
				staged = append(staged, &index.Entry{Name: p, Hash: side.s.hash, Mode: side.s.mode, Stage: side.stage})
			}
		}
		entries[p] = staged
	}

	idx := &index.Index{Version: 2}
	for p, es := range entries {
		fi, statErr := w.Filesystem.Lstat(p)
		for _, e := range es {
			if statErr == nil && e.Stage == stageMerged {
				e.Size = uint32(fi.Size())
				e.ModifiedAt = fi.ModTime()
			}
			idx.Entries = append(idx.Entries, e)
		}
	}
	sortEntries(idx.Entries)
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fail(err)
	}
	return conflicts, nil
}

// mergeFile merges one path both sides edited. Text edited on both sides goes
// through mergeText; a deletion against an edit, or binary content, conflicts on the
// whole file.
func (r *Repository) mergeFile(b, o, t *mergeSide, theirsLabel string) (string, bool, error) {
	oursText, err := r.sideText(o)
	if err != nil {
		return "", false, err
	}
	theirsText, err := r.sideText(t)
	if err != nil {
		return "", false, err
	}
	if o == nil || t == nil {
		return conflictMarkers(oursText, theirsText, theirsLabel), false, nil
	}
	baseText, err := r.sideText(b)
	if err != nil {
		return "", false, err
	}
	if !mergeableText(baseText, oursText, theirsText) {
		return conflictMarkers(oursText, theirsText, theirsLabel), false, nil
	}
	merged, clean := mergeText(baseText, oursText, theirsText, theirsLabel)
	return merged, clean, nil
}

// rollbackMerge puts the written paths and the index back to ours. Failures are
// logged; the caller reports the error that caused the rollback.
func (r *Repository) rollbackMerge(w *gogit.Worktree, ours *object.Tree, written []string) {
	for _, p := range written {
		var err error
		if _, ferr := ours.File(p); ferr == nil {
			err = checkoutFile(w.Filesystem, ours, p)
		} else {
			err = removeWorktreeFile(w.Filesystem, p)
		}
		if err != nil {
			r.log.WithError(err).WithField("path", p).Warn("merge rollback: could not restore path")
		}
	}
	if err := r.resetIndex(w, ours); err != nil {
		r.log.WithError(err).Warn("merge rollback: could not reset index")
	}
}

func conflictMarkers(ours, theirs, theirsLabel string) string {
	return fmt.Sprintf("<<<<<<< HEAD\n%s=======\n%s>>>>>>> %s\n",
		withNewline(ours), withNewline(theirs), theirsLabel)
}

func (r *Repository) sideText(s *mergeSide) (string, error) {
	if s == nil {
		return "", nil
	}
	return r.blobText(s.hash)
}

func (r *Repository) blobText(h plumbing.Hash) (string, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", h, ErrObjectNotFound)
	}
	rd, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func sortEntries(entries []*index.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Stage < entries[j].Stage
	})
}

func (r *Repository) writeMergeState(origHead, mergeHead plumbing.Hash, message string) error {
	fs := r.dotGit()
	if fs == nil {
		return errors.New("repository storage does not support merge state")
	}
	files := map[string]string{
		mergeHeadFile: mergeHead.String() + "\n",
		origHeadFile:  origHead.String() + "\n",
		mergeMsgFile:  message + "\n",
	}
	for name, content := range files {
		if err := util.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) readMergeState() (mergeHead plumbing.Hash, message string, err error) {
	fs := r.dotGit()
	if fs == nil {
		return plumbing.ZeroHash, "", ErrNotMerging
	}
	data, err := util.ReadFile(fs, mergeHeadFile)
	if err != nil {
		return plumbing.ZeroHash, "", fmt.Errorf("failed to read %s: %w", mergeHeadFile, err)
	}
	mergeHead = plumbing.NewHash(strings.TrimSpace(string(data)))
	if mergeHead.IsZero() {
		return plumbing.ZeroHash, "", fmt.Errorf("invalid %s: %w", mergeHeadFile, ErrObjectNotFound)
	}

	if msg, err := util.ReadFile(fs, mergeMsgFile); err == nil {
		message = strings.TrimRight(string(msg), "\n")
	}
	return mergeHead, message, nil
}

func (r *Repository) clearMergeState() {
	fs := r.dotGit()
	if fs == nil {
		return
	}
	for _, name := range []string{mergeHeadFile, origHeadFile, mergeMsgFile} {
		if err := fs.Remove(name); err != nil && !os.IsNotExist(err) {
			r.log.WithError(err).Warnf("failed to remove %s", name)
		}
	}
}

func (r *Repository) loadIndex() (*index.Index, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	return idx, nil
}

func hasConflictEntries(idx *index.Index) bool {
	for _, e := range idx.Entries {
		if e.Stage != stageMerged {
			return true
		}
	}
	return false
}

// Conflicts lists the conflicted paths of the open merge with the text of each side.
func (r *Repository) Conflicts() ([]ConflictEntry, error) {
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*ConflictEntry)
	var order []string
	for _, e := range idx.Entries {
		if e.Stage == stageMerged {
			continue
		}
		ce, ok := byPath[e.Name]
		if !ok {
			ce = &ConflictEntry{Path: e.Name}
			byPath[e.Name] = ce
			order = append(order, e.Name)
		}
		text, err := r.blobText(e.Hash)
		if err != nil {
			return nil, err
		}
		switch e.Stage {
		case index.AncestorMode:
			ce.Ancestor = &text
		case index.OurMode:
			ce.Ours = &text
		case index.TheirMode:
			ce.Theirs = &text
		}
	}

	sort.Strings(order)
	conflicts := make([]ConflictEntry, 0, len(order))
	for _, p := range order {
		conflicts = append(conflicts, *byPath[p])
	}
	return conflicts, nil
}

// ResolveConflict settles one conflicted path and stages it. The merge stays open
// until CompleteMerge. content is only read for the Manual strategy.
func (r *Repository) ResolveConflict(path string, strategy Strategy, content *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.IsMerging() {
		return ErrNotMerging
	}
	if strategy == Manual && content == nil {
		return ErrMissingContent
	}

	rel, err := r.relPath(path)
	if err != nil {
		return err
	}
	idx, err := r.loadIndex()
	if err != nil {
		return err
	}

	var ours, theirs *index.Entry
	conflicted := false
	kept := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name != rel {
			kept = append(kept, e)
			continue
		}
		switch e.Stage {
		case index.OurMode:
			ours, conflicted = e, true
		case index.TheirMode:
			theirs, conflicted = e, true
		case index.AncestorMode:
			conflicted = true
		default:
			kept = append(kept, e)
		}
	}
	if !conflicted {
		return fmt.Errorf("%s is not conflicted: %w", rel, ErrObjectNotFound)
	}
	idx.Entries = kept

	w, err := r.repo.Worktree()
	if err != nil {
		return err
	}

	var resolved *index.Entry
	switch strategy {
	case KeepOurs:
		resolved = ours
	case KeepTheirs:
		resolved = theirs
	case Manual:
		hash, err := r.storeBlob([]byte(*content))
		if err != nil {
			return err
		}
		resolved = &index.Entry{Hash: hash, Mode: filemode.Regular}
		if ours != nil {
			resolved.Mode = ours.Mode
		}
	default:
		return fmt.Errorf("unknown strategy %d", strategy)
	}

	if resolved == nil {
		// The chosen side deleted the file.
		if err := removeWorktreeFile(w.Filesystem, rel); err != nil {
			return err
		}
	} else {
		text, err := r.blobText(resolved.Hash)
		if err != nil {
			return err
		}
		if err := writeWorktreeFile(w.Filesystem, rel, []byte(text), fileMode(resolved.Mode)); err != nil {
			return err
		}
		e := &index.Entry{Name: rel, Hash: resolved.Hash, Mode: resolved.Mode}
		if fi, err := w.Filesystem.Lstat(rel); err == nil {
			e.Size = uint32(fi.Size())
			e.ModifiedAt = fi.ModTime()
		}
		idx.Entries = append(idx.Entries, e)
	}

	sortEntries(idx.Entries)
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return err
	}
	r.log.WithFields(logger.Fields{"path": rel, "strategy": strategy.String()}).Info("resolved conflict")
	return nil
}

func (r *Repository) storeBlob(data []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	wr, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := wr.Write(data); err != nil {
		wr.Close()
		return plumbing.ZeroHash, err
	}
	if err := wr.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// CompleteMerge commits the resolved index with the pre-merge HEAD and the merge
// target as parents, then leaves the Merging state.
func (r *Repository) CompleteMerge() (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.completeMerge()
}

func (r *Repository) completeMerge() (plumbing.Hash, error) {
	if !r.IsMerging() {
		return plumbing.ZeroHash, ErrNotMerging
	}
	idx, err := r.loadIndex()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if hasConflictEntries(idx) {
		return plumbing.ZeroHash, ErrConflictsRemain
	}

	mergeHead, msg, err := r.readMergeState()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := r.repo.CommitObject(mergeHead); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("merge head %s: %w", mergeHead, ErrObjectNotFound)
	}
	head, err := r.headHash()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if msg == "" {
		msg = r.mergeMessage()
	}

	w, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := r.commitIndex(w, msg, UserSignature(), []plumbing.Hash{head, mergeHead}, true)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	r.clearMergeState()
	r.log.WithField("commit", hash.String()[:7]).Info("merge completed")
	return hash, nil
}

// AbortMerge puts every path the merge touched back to HEAD and leaves the Merging
// state. It is a no-op when no merge is open and never fails; problems are logged.
func (r *Repository) AbortMerge() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.IsMerging() {
		return
	}
	defer r.clearMergeState()

	if err := r.restoreMergedPaths(); err != nil {
		r.log.WithError(err).Warn("abort merge: could not fully restore working tree")
	}
	r.log.Info("merge aborted")
}

func (r *Repository) restoreMergedPaths() error {
	w, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	headTree, err := r.headTree()
	if err != nil {
		return err
	}
	headSides, err := treeSides(headTree)
	if err != nil {
		return err
	}
	idx, err := r.loadIndex()
	if err != nil {
		return err
	}

	touched := make(map[string]struct{})
	indexed := make(map[string]struct{})
	for _, e := range idx.Entries {
		indexed[e.Name] = struct{}{}
		head, ok := headSides[e.Name]
		if e.Stage != stageMerged || !ok || head.hash != e.Hash || head.mode != e.Mode {
			touched[e.Name] = struct{}{}
		}
	}
	for p := range headSides {
		if _, ok := indexed[p]; !ok {
			touched[p] = struct{}{}
		}
	}

	var firstErr error
	for p := range touched {
		var err error
		if _, ok := headSides[p]; ok {
			err = checkoutFile(w.Filesystem, headTree, p)
		} else {
			err = removeWorktreeFile(w.Filesystem, p)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.resetIndex(w, headTree); err != nil {
		return err
	}
	return firstErr
}

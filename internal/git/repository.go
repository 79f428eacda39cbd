package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"
	logger "github.com/sirupsen/logrus"
)

// DefaultBranch is the branch created by Init.
const DefaultBranch = "main"

const ignoreFile = ".gitignore"

// defaultIgnores are always present in the vault's .gitignore.
var defaultIgnores = []string{".moss/", ".DS_Store"}

// Repository is an opened vault: one working directory and its commit graph.
type Repository struct {
	root string
	repo *gogit.Repository
	mu   *sync.Mutex
	log  *logger.Entry
}

var locks sync.Map

// repoLock returns the mutex shared by every handle opened on root.
func repoLock(root string) *sync.Mutex {
	m, _ := locks.LoadOrStore(root, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func newRepository(root string, r *gogit.Repository) *Repository {
	return &Repository{
		root: root,
		repo: r,
		mu:   repoLock(root),
		log:  logger.WithField("vault", root),
	}
}

// Open opens an existing vault. It returns ErrNotARepository when path holds no
// repository, and makes sure the baseline ignore entries exist.
func Open(path string) (*Repository, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r, err := gogit.PlainOpen(root)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotARepository)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	repo := newRepository(root, r)
	repo.EnsureIgnore()
	return repo, nil
}

// Init creates a repository at path, or opens the one already there.
func Init(path string) (*Repository, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	r, err := gogit.PlainInitWithOptions(root, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch),
		},
	})
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		return Open(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init %s: %w", path, err)
	}
	repo := newRepository(root, r)
	repo.EnsureIgnore()
	repo.log.Info("initialized vault repository")
	return repo, nil
}

// IsRepository reports whether path is the root of a repository.
func IsRepository(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

// Root returns the absolute working directory of the vault.
func (r *Repository) Root() string {
	return r.root
}

// Git exposes the underlying go-git repository.
func (r *Repository) Git() *gogit.Repository {
	return r.repo
}

// EnsureIgnore adds the baseline ignore entries to .gitignore. Existing content is
// never rewritten; failures are logged and otherwise ignored.
func (r *Repository) EnsureIgnore() {
	if err := ensureIgnoreFile(r.root); err != nil {
		r.log.WithError(err).Warn("could not update .gitignore")
	}
}

func ensureIgnoreFile(root string) error {
	path := filepath.Join(root, ignoreFile)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range defaultIgnores {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteByte('\n')
	}
	for _, entry := range missing {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	_, err = f.WriteString(b.String())
	return err
}

// HasUncommittedChanges reports whether the status set is non-empty. Untracked files
// count; ignored files do not.
func (r *Repository) HasUncommittedChanges() (bool, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := w.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// IsMerging reports whether a merge is waiting to be completed or aborted.
func (r *Repository) IsMerging() bool {
	fs := r.dotGit()
	if fs == nil {
		return false
	}
	_, err := fs.Stat(mergeHeadFile)
	return err == nil
}

// dotGit returns the .git directory filesystem.
func (r *Repository) dotGit() billy.Filesystem {
	s, ok := r.repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil
	}
	return s.Filesystem()
}

// relPath converts an absolute or root-relative path into a slash-separated path
// inside the repository.
func (r *Repository) relPath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, ErrPathOutsideRepository)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrPathOutsideRepository)
	}
	return filepath.ToSlash(rel), nil
}

// currentBranch returns the branch HEAD points at, even when it is unborn.
func (r *Repository) currentBranch() (plumbing.ReferenceName, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", err
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target(), nil
	}
	return "", errors.New("HEAD is detached")
}

// headHash returns the commit HEAD resolves to, or ZeroHash for an unborn branch.
func (r *Repository) headHash() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

func writeWorktreeFile(fs billy.Filesystem, path string, data []byte, mode os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(fs, path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// removeWorktreeFile deletes path and any parent directories left empty.
func removeWorktreeFile(fs billy.Filesystem, path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	for dir := filepath.Dir(path); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		entries, err := fs.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := fs.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

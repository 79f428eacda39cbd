package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/credentials"
	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/journal"
	"github.com/kurobon/vaultsync/internal/watcher"
)

// Session holds the state of one open vault. Commands take the session lock for
// their whole run, so work on the same vault is serialized across callers.
type Session struct {
	ID          string
	Path        string // absolute vault root
	CreatedAt   time.Time
	Credentials credentials.Source
	Manager     *SessionManager

	provider       string
	repo           *git.Repository
	journal        *journal.Journal
	journalEnabled bool
	watcher        *watcher.Watcher
	mu             sync.Mutex
}

// Lock locks the session
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock unlocks the session
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// GetRepo returns the vault's repository, opening it on first use. It fails with
// git.ErrNotARepository until the vault has been initialized.
func (s *Session) GetRepo() (*git.Repository, error) {
	if s.repo != nil {
		return s.repo, nil
	}
	repo, err := git.Open(s.Path)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

// SetRepo replaces the cached repository handle, e.g. after init.
func (s *Session) SetRepo(repo *git.Repository) {
	s.repo = repo
}

// Journal returns the activity journal, opening it on first use. It returns nil
// when journaling is disabled or the vault directory does not exist yet.
func (s *Session) Journal() *journal.Journal {
	if s.journal != nil || !s.journalEnabled {
		return s.journal
	}
	if info, err := os.Stat(s.Path); err != nil || !info.IsDir() {
		return nil
	}
	j, err := journal.Open(s.Path)
	if err != nil {
		logger.WithError(err).WithField("vault", s.Path).Warn("activity journal unavailable")
		s.journalEnabled = false
		return nil
	}
	s.journal = j
	return j
}

// Record appends an activity entry. Journal failures are logged, never returned.
func (s *Session) Record(ctx context.Context, e journal.Entry) {
	j := s.Journal()
	if j == nil {
		return
	}
	if _, err := j.Record(ctx, e); err != nil {
		logger.WithError(err).WithField("vault", s.Path).Warn("failed to record activity")
	}
}

// Watcher returns the current watcher, or nil.
func (s *Session) Watcher() *watcher.Watcher {
	return s.watcher
}

// ReplaceWatcher installs w (which may be nil) and stops the previous watcher.
func (s *Session) ReplaceWatcher(w *watcher.Watcher) {
	old := s.watcher
	s.watcher = w
	if old != nil && old != w {
		if err := old.Stop(); err != nil {
			logger.WithError(err).WithField("vault", s.Path).Warn("failed to stop watcher")
		}
	}
}

// Close stops the watcher and closes the journal.
func (s *Session) Close() error {
	s.ReplaceWatcher(nil)
	if s.journal != nil {
		err := s.journal.Close()
		s.journal = nil
		return err
	}
	return nil
}

// DefaultProvider is the credential provider used when Options leaves it empty.
const DefaultProvider = "github"

// Provider names the credential provider tokens are requested for.
func (s *Session) Provider() string {
	if s.provider == "" {
		return DefaultProvider
	}
	return s.provider
}

// Options configure sessions created by a SessionManager.
type Options struct {
	Credentials    credentials.Source
	Provider       string
	JournalEnabled bool
}

// SessionManager handles concurrent access to sessions, keyed by vault root.
type SessionManager struct {
	sessions map[string]*Session
	opts     Options
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(opts Options) *SessionManager {
	if opts.Credentials == nil {
		opts.Credentials = credentials.Chain{}
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// VaultKey normalizes a vault path into the key sessions are stored under.
func VaultKey(path string) (string, error) {
	if path == "" {
		return "", errors.New("vault path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid vault path %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// OpenSession returns the session of the vault at path, creating it if needed.
// The vault does not have to be a repository yet.
func (sm *SessionManager) OpenSession(path string) (*Session, error) {
	key, err := VaultKey(path)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, exists := sm.sessions[key]; exists {
		return s, nil
	}
	s := &Session{
		ID:             uuid.NewString(),
		Path:           key,
		CreatedAt:      time.Now(),
		Credentials:    sm.opts.Credentials,
		Manager:        sm,
		provider:       sm.opts.Provider,
		journalEnabled: sm.opts.JournalEnabled,
	}
	sm.sessions[key] = s
	logger.WithFields(logger.Fields{"vault": key, "session": s.ID}).Info("opened session")
	return s, nil
}

// GetSession retrieves the session of an already opened vault.
func (sm *SessionManager) GetSession(path string) (*Session, bool) {
	key, err := VaultKey(path)
	if err != nil {
		return nil, false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[key]
	return s, ok
}

// CloseSession forgets the vault at path and releases its resources.
func (sm *SessionManager) CloseSession(path string) error {
	key, err := VaultKey(path)
	if err != nil {
		return err
	}

	sm.mu.Lock()
	s, ok := sm.sessions[key]
	delete(sm.sessions, key)
	sm.mu.Unlock()

	if !ok {
		return nil
	}
	s.Lock()
	defer s.Unlock()
	return s.Close()
}

// Sessions returns every open session ordered by path.
func (sm *SessionManager) Sessions() []*Session {
	sm.mu.RLock()
	list := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		list = append(list, s)
	}
	sm.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	return list
}

// Close closes every session.
func (sm *SessionManager) Close() error {
	var errs []error
	for _, s := range sm.Sessions() {
		if err := sm.CloseSession(s.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

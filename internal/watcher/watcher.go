// Package watcher reports file changes inside a vault, batched per quiet period.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/debounce"
)

// DefaultDebounce is used when New is given a non-positive delay.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a vault recursively. Git metadata, the app's .moss directory and
// other hidden entries are skipped.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	debounce *debounce.Debouncer
	onChange func(paths []string)
	log      *logger.Entry

	mu      sync.Mutex
	pending map[string]struct{}
	running bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a watcher for root. onChange receives sorted slash-separated paths
// relative to root.
func New(root string, delay time.Duration, onChange func(paths []string)) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:     abs,
		fsw:      fsw,
		onChange: onChange,
		log:      logger.WithField("vault", abs),
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.debounce = debounce.New(delay, w.flush)
	return w, nil
}

// Start registers the directory tree and begins delivering events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectory(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	go w.loop()
	w.log.Debug("file watcher started")
	return nil
}

// Stop ends the event loop and drops any batch not yet delivered.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.debounce.Stop()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.log.Debug("file watcher stopped")
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("file watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, ok := w.relative(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectory(event.Name); err != nil {
				w.log.WithError(err).WithField("path", rel).Warn("failed to watch new directory")
			}
			return
		}
	}

	w.mu.Lock()
	w.pending[rel] = struct{}{}
	w.mu.Unlock()
	w.debounce.Trigger()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	w.log.WithField("count", len(paths)).Debug("files changed")
	if w.onChange != nil {
		w.onChange(paths)
	}
}

// relative maps an absolute event path to a vault path, rejecting skipped entries.
func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if skipped(part) {
			return "", false
		}
	}
	return filepath.ToSlash(rel), true
}

func skipped(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (w *Watcher) addDirectory(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && skipped(info.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", path, err)
		}
		return nil
	})
}

package server

import (
	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/state"
	"github.com/kurobon/vaultsync/internal/watcher"
)

// watch attaches a file watcher to the session unless one is already running.
// Failures are logged; the vault stays usable without change events.
func (s *Server) watch(session *state.Session) {
	session.Lock()
	defer session.Unlock()

	if session.Watcher() != nil {
		return
	}

	vault := session.Path
	w, err := watcher.New(vault, s.opts.WatchDebounce, func(paths []string) {
		s.hub.Publish(Event{Type: EventFileChanged, Vault: vault, Data: FileChangedData{Paths: paths}})
	})
	if err != nil {
		logger.WithError(err).WithField("vault", vault).Warn("file watcher unavailable")
		return
	}
	if err := w.Start(); err != nil {
		logger.WithError(err).WithField("vault", vault).Warn("file watcher unavailable")
		return
	}
	session.ReplaceWatcher(w)
}

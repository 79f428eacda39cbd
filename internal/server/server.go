// Package server exposes the vault control surface over HTTP and pushes change
// events to websocket clients.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/state"
)

// Options configure a Server.
type Options struct {
	// Dispatcher runs commands. A nil Dispatcher gets one built around Metrics.
	Dispatcher *commands.Dispatcher
	Metrics    *metrics.Collector
	// WatchEnabled attaches a file watcher to every vault opened through the API.
	WatchEnabled  bool
	WatchDebounce time.Duration
	// Token, when set, is required on every route but /ping.
	Token string
}

type Server struct {
	Sessions   *state.SessionManager
	Dispatcher *commands.Dispatcher
	Metrics    *metrics.Collector
	Mux        *http.ServeMux

	hub     *Hub
	handler http.Handler
	opts    Options
}

// NewServer builds the HTTP surface. The dispatcher's OnResult hook is chained so
// every command also becomes a "command" event.
func NewServer(sm *state.SessionManager, opts Options) *Server {
	d := opts.Dispatcher
	if d == nil {
		d = &commands.Dispatcher{Metrics: opts.Metrics}
	}
	s := &Server{
		Sessions:   sm,
		Dispatcher: d,
		Metrics:    opts.Metrics,
		Mux:        http.NewServeMux(),
		hub:        NewHub(),
		opts:       opts,
	}

	prev := d.OnResult
	d.OnResult = func(session *state.Session, name string, result any, err error) {
		if prev != nil {
			prev(session, name, result, err)
		}
		s.publishCommand(session, name, err)
	}

	s.routes()
	s.handler = s.guard(s.Mux)
	return s
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/ping", s.handlePing)
	s.Mux.HandleFunc("/api/session/init", s.handleInitSession)
	s.Mux.HandleFunc("/api/command", s.handleExecCommand)
	s.Mux.Handle("/api/events", s.hub)
	if s.Metrics != nil {
		s.Mux.Handle("/metrics", s.Metrics.Handler())
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start runs the event hub until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

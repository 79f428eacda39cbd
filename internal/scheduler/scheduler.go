// Package scheduler syncs every open vault on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/git"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/state"
)

// Scheduler dispatches "sync" for each open vault at every tick of the schedule.
type Scheduler struct {
	schedule   string
	sessions   *state.SessionManager
	dispatcher *commands.Dispatcher
	cron       *cron.Cron
	mu         sync.Mutex
	running    bool
	log        *logger.Entry
}

// New creates a scheduler. An empty schedule disables it.
func New(schedule string, sessions *state.SessionManager, dispatcher *commands.Dispatcher) *Scheduler {
	if dispatcher == nil {
		dispatcher = &commands.Dispatcher{}
	}
	return &Scheduler{
		schedule:   schedule,
		sessions:   sessions,
		dispatcher: dispatcher,
		cron:       cron.New(),
		log:        logger.WithField("component", "scheduler"),
	}
}

// Start validates the schedule and begins running syncs. The scheduler stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.log.Info("sync schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("sync scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce syncs every open vault that is a repository with a remote. Failures are
// logged per vault and do not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, session := range s.sessions.Sessions() {
		if ctx.Err() != nil {
			return
		}
		if !s.hasRemote(session) {
			continue
		}

		log := s.log.WithField("vault", session.Path)
		out, err := s.dispatcher.Dispatch(ctx, session, "sync", nil)
		if err != nil {
			log.WithError(err).Warn("scheduled sync failed")
			continue
		}
		if res, ok := out.(git.ConflictResolution); ok && res.HasConflicts {
			log.WithField("conflicts", len(res.Conflicts)).Warn("scheduled sync stopped on conflicts")
			continue
		}
		log.Debug("scheduled sync completed")
	}
}

func (s *Scheduler) hasRemote(session *state.Session) bool {
	session.Lock()
	defer session.Unlock()

	repo, err := session.GetRepo()
	if err != nil {
		return false
	}
	return repo.RemoteURL() != "" && !repo.IsMerging()
}

// Stop stops the scheduler and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.log.Info("sync scheduler stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled sync, or nil when nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

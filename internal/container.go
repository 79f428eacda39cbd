package internal

import (
	"go.uber.org/dig"

	"github.com/kurobon/vaultsync/internal/config"
	"github.com/kurobon/vaultsync/internal/credentials"
	"github.com/kurobon/vaultsync/internal/git/commands"
	"github.com/kurobon/vaultsync/internal/metrics"
	"github.com/kurobon/vaultsync/internal/scheduler"
	"github.com/kurobon/vaultsync/internal/server"
	"github.com/kurobon/vaultsync/internal/state"
)

// App bundles the long-lived components the CLI drives.
type App struct {
	Config     *config.Config
	Sessions   *state.SessionManager
	Dispatcher *commands.Dispatcher
	Metrics    *metrics.Collector
	Scheduler  *scheduler.Scheduler
	Server     *server.Server
}

// RegisterProviders registers every component with the DIG container. cfg must be
// loaded and validated.
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	providers := []any{
		func() *config.Config { return cfg },
		NewCredentials,
		NewSessionManager,
		func() *metrics.Collector { return metrics.NewCollector(nil) },
		NewDispatcher,
		NewScheduler,
		NewServer,
		NewApp,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// NewCredentials looks tokens up in the environment first, then in the token
// directory.
func NewCredentials(cfg *config.Config) credentials.Source {
	chain := credentials.Chain{
		credentials.EnvSource{Vars: map[string]string{cfg.Credentials.Provider: cfg.Credentials.TokenEnv}},
	}
	if cfg.Credentials.TokenDir != "" {
		chain = append(chain, credentials.FileSource{Dir: cfg.Credentials.TokenDir})
	}
	return chain
}

func NewSessionManager(cfg *config.Config, creds credentials.Source) *state.SessionManager {
	return state.NewSessionManager(state.Options{
		Credentials:    creds,
		Provider:       cfg.Credentials.Provider,
		JournalEnabled: cfg.Journal.Enabled,
	})
}

func NewDispatcher(cfg *config.Config, m *metrics.Collector) *commands.Dispatcher {
	return &commands.Dispatcher{Metrics: m, SyncTimeout: cfg.Sync.Timeout}
}

func NewScheduler(cfg *config.Config, sm *state.SessionManager, d *commands.Dispatcher) *scheduler.Scheduler {
	return scheduler.New(cfg.Sync.Schedule, sm, d)
}

func NewServer(cfg *config.Config, sm *state.SessionManager, d *commands.Dispatcher, m *metrics.Collector) *server.Server {
	return server.NewServer(sm, server.Options{
		Dispatcher:    d,
		Metrics:       m,
		WatchEnabled:  cfg.Watcher.Enabled,
		WatchDebounce: cfg.Watcher.Debounce,
		Token:         cfg.Server.Token,
	})
}

func NewApp(
	cfg *config.Config,
	sm *state.SessionManager,
	d *commands.Dispatcher,
	m *metrics.Collector,
	sch *scheduler.Scheduler,
	srv *server.Server,
) *App {
	return &App{
		Config:     cfg,
		Sessions:   sm,
		Dispatcher: d,
		Metrics:    m,
		Scheduler:  sch,
		Server:     srv,
	}
}

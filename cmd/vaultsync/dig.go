package main

import (
	"go.uber.org/dig"

	"github.com/kurobon/vaultsync/internal"
	"github.com/kurobon/vaultsync/internal/config"
)

func injectApp(cfg *config.Config) (*internal.App, error) {
	container := dig.New()

	if err := internal.RegisterProviders(container, cfg); err != nil {
		return nil, err
	}

	var app *internal.App
	if err := container.Invoke(func(a *internal.App) {
		app = a
	}); err != nil {
		return nil, err
	}
	return app, nil
}

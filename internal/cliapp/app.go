// Package cliapp wires the fleet engine's core packages (store, vendor
// client, resolver, planner, runner) into a single App for fleetctl's
// command tree to share, the way the daemon wires the same pieces for
// its tick loop.
package cliapp

import (
	"github.com/fleetcore/engine/internal/adapter"
	"github.com/fleetcore/engine/internal/config"
	"github.com/fleetcore/engine/internal/store/sqlite"
	"github.com/fleetcore/engine/pkg/engine"
	"github.com/fleetcore/engine/pkg/eventbus"
	"github.com/fleetcore/engine/pkg/vendorclient"
)

// App bundles everything a fleetctl subcommand needs to talk to the
// engine without reaching past this package into the wiring details.
type App struct {
	Config    *config.Config
	Store     *sqlite.Store
	Vendor    *vendorclient.Client
	Directory *adapter.RobotDirectory
	Runner    *engine.Runner
}

// New loads configuration from configPath (empty for env-only) and opens
// the SQLite store and vendor client it names.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(sqlite.Config{Path: cfg.DataDir + "/fleet.db", WAL: true})
	if err != nil {
		return nil, err
	}

	vendor, err := vendorclient.New(vendorclient.Config{
		BaseURL:         cfg.Vendor.BaseURL,
		AppID:           cfg.Vendor.AppID,
		AppSecret:       cfg.Vendor.AppSecret,
		AppCode:         cfg.Vendor.AppCode,
		TokenTTL:        cfg.Vendor.TokenTTL,
		RequestTimeout:  cfg.Vendor.RequestTimeout,
		RateLimitPerSec: cfg.Vendor.RateLimitPerSec,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	directory := adapter.NewRobotDirectory(vendor)
	vendorTasks := adapter.NewVendorTasks(vendor)
	bus := eventbus.New("fleetctl")

	resolver := engine.NewResolver(directory, store)
	planner := engine.NewPlanner(resolver)
	runner := engine.NewRunner(store, planner, directory, vendorTasks, bus, cfg.SafeMode, cfg.AutoReassignOnOffline)

	return &App{
		Config:    cfg,
		Store:     store,
		Vendor:    vendor,
		Directory: directory,
		Runner:    runner,
	}, nil
}

// Close releases the underlying store connection.
func (a *App) Close() error {
	return a.Store.Close()
}

// Command fleetctl is the operator-facing CLI for the fleet workflow
// engine: creating tasks, starting and confirming runs, pinning POI
// mappings, and checking robot state, all against the same SQLite store
// and vendor client the fleetd daemon uses.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/fleetcore/engine/internal/cliapp"
	"github.com/fleetcore/engine/internal/commands/poi"
	"github.com/fleetcore/engine/internal/commands/robot"
	"github.com/fleetcore/engine/internal/commands/run"
	"github.com/fleetcore/engine/internal/commands/task"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the fleet workflow engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to fleetd.yaml (optional; env vars always take precedence)")

	getApp := cachedAppFunc(&configPath)

	root.AddCommand(task.NewCommand(getApp))
	root.AddCommand(run.NewCommand(getApp))
	root.AddCommand(poi.NewCommand(getApp))
	root.AddCommand(robot.NewCommand(getApp))
	root.AddCommand(newVersionCommand())

	return root
}

// cachedAppFunc returns an AppFunc (shared across the task/run/poi/robot
// packages, each of which declares its own identically-shaped AppFunc
// type) that builds the App once per process, from whatever --config was
// parsed by the time a subcommand runs.
func cachedAppFunc(configPath *string) func() (*cliapp.App, error) {
	var (
		once sync.Once
		app  *cliapp.App
		err  error
	)
	return func() (*cliapp.App, error) {
		once.Do(func() {
			app, err = cliapp.New(*configPath)
		})
		return app, err
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fleetctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

// Package robot implements fleetctl's "robot" command tree: ad hoc
// queries against the vendor's robot state endpoint. The daemon's own
// poller cache is in-process and not exposed over any wire protocol, so
// this talks to the vendor directly rather than to a running fleetd.
package robot

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetcore/engine/internal/cliapp"
)

// AppFunc lazily builds (or returns a cached) *cliapp.App.
type AppFunc func() (*cliapp.App, error)

// NewCommand builds the "robot" command tree.
func NewCommand(getApp AppFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "robot",
		Short: "Query robot state directly from the vendor",
	}
	cmd.AddCommand(newStateCommand(getApp))
	return cmd
}

func newStateCommand(getApp AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "state <robot-id>",
		Short: "Show a robot's current vendor-reported state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			robotID := args[0]
			state, err := app.Vendor.RobotState(cmd.Context(), robotID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "robot_id=%s\n", state.RobotID)
			if state.AreaID != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "area_id=%s\n", *state.AreaID)
			}
			if state.IsOnline != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "is_online=%t\n", *state.IsOnline)
			}
			if state.Battery != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "battery=%.1f\n", *state.Battery)
			}
			return nil
		},
	}
}

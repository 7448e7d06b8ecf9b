// Package run implements fleetctl's "run" command tree: starting a
// WorkflowRun, recording operator decisions at MANUAL_CONFIRM steps, and
// inspecting run/step state.
package run

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetcore/engine/internal/cliapp"
)

// AppFunc lazily builds (or returns a cached) *cliapp.App.
type AppFunc func() (*cliapp.App, error)

// NewCommand builds the "run" command tree.
func NewCommand(getApp AppFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, confirm, and inspect workflow runs",
	}
	cmd.AddCommand(newStartCommand(getApp))
	cmd.AddCommand(newConfirmCommand(getApp))
	cmd.AddCommand(newGetCommand(getApp))
	cmd.AddCommand(newStepsCommand(getApp))
	return cmd
}

func newStartCommand(getApp AppFunc) *cobra.Command {
	var (
		taskID  int64
		robotID string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Plan a task's protocol and start executing it against a robot",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			r, err := app.Runner.StartRun(cmd.Context(), taskID, robotID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started run %d (status=%s, total_steps=%d)\n", r.ID, r.Status, r.TotalSteps)
			return nil
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "Task id to execute")
	cmd.Flags().StringVar(&robotID, "robot", "", "Robot id to execute against")
	cmd.MarkFlagRequired("task")
	cmd.MarkFlagRequired("robot")
	return cmd
}

func newConfirmCommand(getApp AppFunc) *cobra.Command {
	var (
		runID      int64
		decision   string
		payloadRaw string
	)
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Record an operator decision at the run's current MANUAL_CONFIRM step",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var payload map[string]interface{}
			if payloadRaw != "" {
				if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
					return fmt.Errorf("invalid --payload JSON: %w", err)
				}
			}

			r, err := app.Runner.Confirm(cmd.Context(), runID, decision, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %d now status=%s step_index=%d\n", r.ID, r.Status, r.CurrentStepIndex)
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run", 0, "Run id")
	cmd.Flags().StringVar(&decision, "decision", "", "Decision value, e.g. YES, NO, POSTPONE, COMPLETED")
	cmd.Flags().StringVar(&payloadRaw, "payload", "", "Optional JSON decision payload, e.g. '{\"minutes\":15}'")
	cmd.MarkFlagRequired("run")
	cmd.MarkFlagRequired("decision")
	return cmd
}

func newGetCommand(getApp AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a single run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			r, err := app.Runner.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%d task_id=%d robot_id=%s status=%s step=%d/%d\n",
				r.ID, r.TaskID, r.RobotID, r.Status, r.CurrentStepIndex, r.TotalSteps)
			if r.CurrentVendorTaskID != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "current_vendor_task_id=%s\n", *r.CurrentVendorTaskID)
			}
			if r.LastError != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last_error=%s\n", *r.LastError)
			}
			return nil
		},
	}
}

func newStepsCommand(getApp AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "steps <run-id>",
		Short: "List a run's steps in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			steps, err := app.Runner.ListSteps(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, s := range steps {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", s.StepIndex, s.StepType, s.StepCode, s.Label)
			}
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

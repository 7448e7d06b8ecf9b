// Package task implements fleetctl's "task" command tree: create, list,
// and get operations against the Task CRUD surface the engine consumes
// but does not own.
package task

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetcore/engine/internal/cliapp"
	"github.com/fleetcore/engine/pkg/engine"
)

// AppFunc lazily builds (or returns a cached) *cliapp.App for a command
// to use, so opening the store/vendor client is deferred until a
// subcommand actually runs.
type AppFunc func() (*cliapp.App, error)

// NewCommand builds the "task" command tree.
func NewCommand(getApp AppFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and inspect tasks",
	}
	cmd.AddCommand(newCreateCommand(getApp))
	cmd.AddCommand(newListCommand(getApp))
	cmd.AddCommand(newGetCommand(getApp))
	return cmd
}

func newCreateCommand(getApp AppFunc) *cobra.Command {
	var (
		taskType  string
		kind      string
		ref       string
		title     string
		releaseIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var releaseAt *time.Time
			if releaseIn > 0 {
				t := time.Now().Add(releaseIn)
				releaseAt = &t
			}

			created := engine.NewTask(engine.TaskType(taskType), kind, ref, title, releaseAt)
			if err := app.Store.CreateTask(cmd.Context(), created); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created task %d (status=%s)\n", created.ID, created.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskType, "type", "", "Task type: NAVIGATE|ORDERING|DELIVERY|CLEANUP|BILLING|CHARGING")
	cmd.Flags().StringVar(&kind, "kind", "", "Target kind, e.g. TABLE, KITCHEN, POI")
	cmd.Flags().StringVar(&ref, "ref", "", "Target reference, e.g. a table number or POI id")
	cmd.Flags().StringVar(&title, "title", "", "Human-readable title")
	cmd.Flags().DurationVar(&releaseIn, "release-in", 0, "Delay before the task becomes READY, e.g. 10m")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newListCommand(getApp AppFunc) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			tasks, err := app.Store.ListTasks(cmd.Context(), engine.TaskStatus(status))
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s/%s\t%s\n", t.ID, t.TaskType, t.Status, t.TargetKind, t.TargetRef, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func newGetCommand(getApp AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a single task",
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
			t, err := app.Store.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%d type=%s status=%s target=%s/%s title=%q\n",
				t.ID, t.TaskType, t.Status, t.TargetKind, t.TargetRef, t.Title)
			if t.ReleaseAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "release_at=%s\n", t.ReleaseAt.Format(time.RFC3339))
			}
			if t.AssignedRobotID != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "assigned_robot_id=%s\n", *t.AssignedRobotID)
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

package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fleetcore/engine/pkg/ferrors"
)

// defaultPostponeMinutes is used when an ORDER_DECISION POSTPONE payload
// omits "minutes".
const defaultPostponeMinutes = 10

// Confirm records decision (and optional payload) against the current
// MANUAL_CONFIRM step of run and applies its effect per the decision
// table for step.StepCode. Preconditions: the run is RUNNING and its
// current step is MANUAL_CONFIRM.
func (r *Runner) Confirm(ctx context.Context, runID int64, decision string, payload map[string]interface{}) (*WorkflowRun, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunRunning {
		return nil, &ferrors.ConflictError{Reason: "run " + string(run.Status) + " is not RUNNING"}
	}

	steps, err := r.store.ListSteps(ctx, runID)
	if err != nil {
		return nil, ferrors.Internal("Confirm.ListSteps", err)
	}
	step := currentStep(steps, run.CurrentStepIndex)
	if step == nil {
		return nil, &ferrors.InternalError{Op: "Confirm", Cause: errStepNotFound}
	}
	if step.StepType != StepManualConfirm {
		return nil, &ferrors.ConflictError{Reason: "current step is not MANUAL_CONFIRM"}
	}

	decision = strings.ToUpper(strings.TrimSpace(decision))
	if payload == nil {
		payload = map[string]interface{}{}
	}

	now := time.Now().UTC()
	step.CompletedAt = &now
	step.Decision = &decision
	step.DecisionPayload = payload
	if err := r.store.UpdateStep(ctx, step); err != nil {
		return nil, ferrors.Internal("Confirm.UpdateStep", err)
	}

	task, err := r.store.GetTask(ctx, run.TaskID)
	if err != nil {
		return nil, err
	}

	if err := r.applyDecision(ctx, run, task, step, decision, payload, steps); err != nil {
		return nil, err
	}

	r.publish(EventConfirmed, map[string]interface{}{"run_id": run.ID, "step_code": step.StepCode, "decision": decision})
	return run, nil
}

func (r *Runner) applyDecision(ctx context.Context, run *WorkflowRun, task *Task, step *WorkflowStep, decision string, payload map[string]interface{}, steps []*WorkflowStep) error {
	switch step.StepCode {
	case "ORDER_DECISION":
		return r.applyOrderDecision(ctx, run, task, decision, payload)
	case "CLEANUP_HAS_DISHES":
		return r.applyCleanupHasDishes(ctx, run, task, decision, steps)
	case "CLEANUP_MORE_DISHES":
		return r.applyCleanupMoreDishes(ctx, run, task, decision, steps)
	default:
		if strings.HasPrefix(step.StepCode, "DELIVERY_") || strings.HasPrefix(step.StepCode, "BILLING_") {
			return r.advanceOrFinish(ctx, run, task, steps)
		}
		return r.advanceOrFinish(ctx, run, task, steps)
	}
}

func (r *Runner) applyOrderDecision(ctx context.Context, run *WorkflowRun, task *Task, decision string, payload map[string]interface{}) error {
	now := time.Now().UTC()
	switch decision {
	case "POSTPONE":
		minutes := defaultPostponeMinutes
		if v, ok := payload["minutes"]; ok {
			if n, ok := toInt(v); ok {
				minutes = n
			}
		}
		releaseAt := now.Add(time.Duration(minutes) * time.Minute)
		task.ReleaseAt = &releaseAt
		task.Status = TaskPending
		task.UpdatedAt = now
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return ferrors.Internal("applyOrderDecision.UpdateTask", err)
		}

		run.Status = RunCanceled
		run.CurrentVendorTaskID = nil
		run.UpdatedAt = now
		return r.store.UpdateRun(ctx, run)

	case "COMPLETED":
		task.Status = TaskDone
		task.UpdatedAt = now
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return ferrors.Internal("applyOrderDecision.UpdateTask", err)
		}

		run.CurrentStepIndex++
		run.UpdatedAt = now
		if run.CurrentStepIndex >= run.TotalSteps {
			run.Status = RunDone
		}
		return r.store.UpdateRun(ctx, run)

	default:
		return &ferrors.InvalidArgumentError{Field: "decision", Message: "ORDER_DECISION expects POSTPONE or COMPLETED"}
	}
}

func (r *Runner) applyCleanupHasDishes(ctx context.Context, run *WorkflowRun, task *Task, decision string, steps []*WorkflowStep) error {
	now := time.Now().UTC()
	switch decision {
	case "NO":
		return r.completeRunAndTask(ctx, run, task)
	case "YES":
		run.CurrentStepIndex++
		run.UpdatedAt = now
		if err := r.ensureStepStarted(ctx, run, steps); err != nil {
			return err
		}
		return r.store.UpdateRun(ctx, run)
	default:
		return &ferrors.InvalidArgumentError{Field: "decision", Message: "CLEANUP_HAS_DISHES expects YES or NO"}
	}
}

func (r *Runner) applyCleanupMoreDishes(ctx context.Context, run *WorkflowRun, task *Task, decision string, steps []*WorkflowStep) error {
	now := time.Now().UTC()
	switch decision {
	case "YES":
		// Loop back to step 0; the step rows are reused, not duplicated.
		run.CurrentStepIndex = 0
		run.CurrentVendorTaskID = nil
		run.UpdatedAt = now
		if err := r.ensureStepStarted(ctx, run, steps); err != nil {
			return err
		}
		return r.store.UpdateRun(ctx, run)
	case "NO":
		return r.completeRunAndTask(ctx, run, task)
	default:
		return &ferrors.InvalidArgumentError{Field: "decision", Message: "CLEANUP_MORE_DISHES expects YES or NO"}
	}
}

// advanceOrFinish is the default decision effect: advance one step,
// completing both run and task if that reaches the end, otherwise
// dispatching the next step. Used for DELIVERY_*/BILLING_* (any decision
// value advances the run) and as the fallback for unrecognized step
// codes.
func (r *Runner) advanceOrFinish(ctx context.Context, run *WorkflowRun, task *Task, steps []*WorkflowStep) error {
	now := time.Now().UTC()
	run.CurrentStepIndex++
	run.CurrentVendorTaskID = nil
	run.UpdatedAt = now

	if run.CurrentStepIndex >= run.TotalSteps {
		run.Status = RunDone
		task.Status = TaskDone
		task.UpdatedAt = now
		if err := r.store.UpdateTask(ctx, task); err != nil {
			return ferrors.Internal("advanceOrFinish.UpdateTask", err)
		}
		return r.store.UpdateRun(ctx, run)
	}

	if err := r.ensureStepStarted(ctx, run, steps); err != nil {
		return err
	}
	return r.store.UpdateRun(ctx, run)
}

func (r *Runner) completeRunAndTask(ctx context.Context, run *WorkflowRun, task *Task) error {
	now := time.Now().UTC()
	task.Status = TaskDone
	task.UpdatedAt = now
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return ferrors.Internal("completeRunAndTask.UpdateTask", err)
	}

	run.Status = RunDone
	run.CurrentStepIndex = run.TotalSteps
	run.UpdatedAt = now
	return r.store.UpdateRun(ctx, run)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fleetcore/engine/internal/metrics"
	"github.com/fleetcore/engine/pkg/ferrors"
)

// actTypeCompleted is the vendor's signal that a dispatched navigation
// task has finished.
const actTypeCompleted = 1001

var errStepNotFound = errors.New("workflow step not found")

// Runner drives every WorkflowRun's per-step state machine: starting new
// runs, ticking RUNNING runs forward, and applying operator decisions at
// MANUAL_CONFIRM checkpoints.
type Runner struct {
	store     Store
	planner   *Planner
	directory RobotDirectory
	vendor    VendorTasks
	publisher Publisher

	safeMode              bool
	autoReassignOnOffline bool
}

// NewRunner builds a Runner. safeMode, when true, blocks any new vendor
// task creation with UnavailableError while leaving polling and
// confirmations active. autoReassignOnOffline enables the offline check
// at the top of every tick.
func NewRunner(store Store, planner *Planner, directory RobotDirectory, vendor VendorTasks, publisher Publisher, safeMode, autoReassignOnOffline bool) *Runner {
	return &Runner{
		store:                 store,
		planner:               planner,
		directory:             directory,
		vendor:                vendor,
		publisher:             publisher,
		safeMode:              safeMode,
		autoReassignOnOffline: autoReassignOnOffline,
	}
}

func (r *Runner) publish(eventType string, data map[string]interface{}) {
	if r.publisher != nil {
		r.publisher.Publish(eventType, data)
	}
}

// StartRun plans task's protocol and begins executing it against
// robotID. Preconditions: task exists and is not terminal; no other run
// is RUNNING for robotID. Planning failures and ensure-step-started
// failures abort before anything is persisted.
func (r *Runner) StartRun(ctx context.Context, taskID int64, robotID string) (*WorkflowRun, error) {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, &ferrors.ConflictError{Reason: "task " + string(task.Status) + " is terminal"}
	}

	running, err := r.store.ListRunningRuns(ctx)
	if err != nil {
		return nil, ferrors.Internal("StartRun.ListRunningRuns", err)
	}
	for _, run := range running {
		if run.RobotID == robotID {
			return nil, &ferrors.ConflictError{Reason: "robot " + robotID + " already has a RUNNING run"}
		}
	}

	planned, err := r.planner.Plan(ctx, task, robotID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &WorkflowRun{
		TaskID:     taskID,
		RobotID:    robotID,
		Status:     RunRunning,
		TotalSteps: len(planned),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	steps := make([]*WorkflowStep, len(planned))
	for i, ps := range planned {
		steps[i] = toWorkflowStep(ps, i)
	}

	// Dispatch step 0 before persisting anything: a failure here must
	// leave no WorkflowRun row behind.
	if err := r.ensureStepStarted(ctx, run, steps); err != nil {
		return nil, err
	}

	if err := r.store.CreateRun(ctx, run, steps); err != nil {
		if run.CurrentVendorTaskID != nil {
			_ = r.vendor.TaskCancel(ctx, *run.CurrentVendorTaskID)
		}
		return nil, err
	}

	r.publish(EventRunStarted, map[string]interface{}{"run_id": run.ID, "task_id": taskID, "robot_id": robotID})
	r.emitIfAwaitingConfirm(run, steps)
	return run, nil
}

func toWorkflowStep(ps plannedStep, index int) *WorkflowStep {
	step := &WorkflowStep{
		StepIndex: index,
		StepType:  ps.StepType,
		StepCode:  ps.StepCode,
		Label:     ps.Label,
		StopRadius: ps.StopRadius,
		Yaw:        ps.Yaw,
	}
	if ps.StepType == StepNavigate {
		areaID := ps.AreaID
		x, y := ps.X, ps.Y
		step.AreaID = &areaID
		step.X = &x
		step.Y = &y
	}
	return step
}

// GetRun is a read-only lookup.
func (r *Runner) GetRun(ctx context.Context, runID int64) (*WorkflowRun, error) {
	return r.store.GetRun(ctx, runID)
}

// ListSteps is a read-only lookup, ordered by step_index.
func (r *Runner) ListSteps(ctx context.Context, runID int64) ([]*WorkflowStep, error) {
	steps, err := r.store.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepIndex < steps[j].StepIndex })
	return steps, nil
}

func currentStep(steps []*WorkflowStep, index int) *WorkflowStep {
	for _, s := range steps {
		if s.StepIndex == index {
			return s
		}
	}
	return nil
}

// Tick advances every RUNNING run by one state-machine transition each.
// A failure inside one run marks it FAILED and does not abort the pass.
func (r *Runner) Tick(ctx context.Context) (TickResult, error) {
	runs, err := r.store.ListRunningRuns(ctx)
	if err != nil {
		return TickResult{}, ferrors.Internal("Tick.ListRunningRuns", err)
	}

	var result TickResult
	for _, run := range runs {
		progressed, finished, err := r.tickOne(ctx, run)
		if err != nil {
			run.Status = RunFailed
			msg := err.Error()
			run.LastError = &msg
			run.UpdatedAt = time.Now().UTC()
			_ = r.store.UpdateRun(ctx, run)
			result.Failed++
			metrics.RecordTick("failed")
			continue
		}
		switch {
		case finished:
			result.Finished++
			metrics.RecordTick("completed")
		case progressed:
			result.Progressed++
			metrics.RecordTick("advanced")
		default:
			metrics.RecordTick("noop")
		}
	}

	r.publish(EventTicked, map[string]interface{}{
		"progressed": result.Progressed,
		"finished":   result.Finished,
		"failed":     result.Failed,
	})
	return result, nil
}

func (r *Runner) tickOne(ctx context.Context, run *WorkflowRun) (progressed, finished bool, err error) {
	if r.autoReassignOnOffline {
		handled, err := r.handleOfflineReassign(ctx, run)
		if err != nil {
			return false, false, err
		}
		if handled {
			return true, true, nil
		}
	}

	if run.CurrentStepIndex >= run.TotalSteps {
		if err := r.finishRun(ctx, run); err != nil {
			return false, false, err
		}
		return true, true, nil
	}

	steps, err := r.store.ListSteps(ctx, run.ID)
	if err != nil {
		return false, false, ferrors.Internal("tick.ListSteps", err)
	}
	step := currentStep(steps, run.CurrentStepIndex)
	if step == nil {
		return false, false, &ferrors.InternalError{Op: "tick", Cause: errStepNotFound}
	}

	if step.StepType == StepManualConfirm {
		return false, false, nil
	}

	if run.CurrentVendorTaskID == nil {
		if err := r.ensureStepStarted(ctx, run, steps); err != nil {
			return false, false, err
		}
		if err := r.store.UpdateRun(ctx, run); err != nil {
			return false, false, ferrors.Internal("tick.UpdateRun", err)
		}
		return true, false, nil
	}

	actType, err := r.vendor.TaskState(ctx, *run.CurrentVendorTaskID)
	if err != nil {
		return false, false, ferrors.Internal("tick.TaskState", err)
	}
	if actType != actTypeCompleted {
		return false, false, nil
	}

	run.CurrentVendorTaskID = nil
	run.CurrentStepIndex++
	run.UpdatedAt = time.Now().UTC()

	if run.CurrentStepIndex >= run.TotalSteps {
		if err := r.finishRun(ctx, run); err != nil {
			return false, false, err
		}
		return true, true, nil
	}

	if err := r.ensureStepStarted(ctx, run, steps); err != nil {
		return false, false, err
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return false, false, ferrors.Internal("tick.UpdateRun", err)
	}
	r.emitIfAwaitingConfirm(run, steps)
	return true, false, nil
}

// handleOfflineReassign: if the robot is
// explicitly offline, best-effort cancel any outstanding vendor task,
// requeue the task to READY, and fail the run. A failed state fetch is
// swallowed — no reassign this cycle.
func (r *Runner) handleOfflineReassign(ctx context.Context, run *WorkflowRun) (bool, error) {
	online, ok, err := r.directory.IsOnline(ctx, run.RobotID)
	if err != nil || !ok {
		return false, nil
	}
	if online {
		return false, nil
	}

	if run.CurrentVendorTaskID != nil {
		_ = r.vendor.TaskCancel(ctx, *run.CurrentVendorTaskID)
	}

	task, err := r.store.GetTask(ctx, run.TaskID)
	if err == nil && !task.Status.IsTerminal() {
		task.Status = TaskReady
		task.AssignedRobotID = nil
		task.UpdatedAt = time.Now().UTC()
		_ = r.store.UpdateTask(ctx, task)
	}

	run.Status = RunFailed
	msg := "robot offline -> requeued"
	run.LastError = &msg
	run.CurrentVendorTaskID = nil
	run.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return false, ferrors.Internal("handleOfflineReassign.UpdateRun", err)
	}
	return true, nil
}

func (r *Runner) finishRun(ctx context.Context, run *WorkflowRun) error {
	run.Status = RunDone
	run.CurrentVendorTaskID = nil
	run.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return ferrors.Internal("finishRun.UpdateRun", err)
	}

	task, err := r.store.GetTask(ctx, run.TaskID)
	if err != nil {
		return err
	}
	task.Status = TaskDone
	task.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateTask(ctx, task); err != nil {
		return ferrors.Internal("finishRun.UpdateTask", err)
	}
	r.publish(EventUpdated, map[string]interface{}{"run_id": run.ID, "status": string(run.Status)})
	return nil
}

// ensureStepStarted dispatches the run's current step if it is NAVIGATE
// and not yet dispatched. MANUAL_CONFIRM steps are a no-op.
func (r *Runner) ensureStepStarted(ctx context.Context, run *WorkflowRun, steps []*WorkflowStep) error {
	if run.CurrentStepIndex >= run.TotalSteps {
		return nil
	}
	step := currentStep(steps, run.CurrentStepIndex)
	if step == nil {
		return &ferrors.InternalError{Op: "ensureStepStarted", Cause: errStepNotFound}
	}
	if step.StepType != StepNavigate {
		return nil
	}

	if r.safeMode {
		return &ferrors.UnavailableError{Reason: "SAFE_MODE blocks new vendor task creation"}
	}
	if step.AreaID == nil || step.X == nil || step.Y == nil {
		return &ferrors.InvalidArgumentError{Field: "step", Message: "NAVIGATE step missing area_id/x/y"}
	}

	req := NavTaskRequest{
		Label:      step.Label,
		RobotID:    run.RobotID,
		AreaID:     *step.AreaID,
		X:          *step.X,
		Y:          *step.Y,
		Yaw:        step.Yaw,
		StopRadius: step.StopRadius,
	}
	vendorTaskID, err := r.vendor.TaskCreate(ctx, req)
	if err != nil {
		return err
	}
	run.CurrentVendorTaskID = &vendorTaskID
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Runner) emitIfAwaitingConfirm(run *WorkflowRun, steps []*WorkflowStep) {
	if run.Status != RunRunning || run.CurrentStepIndex >= run.TotalSteps {
		return
	}
	step := currentStep(steps, run.CurrentStepIndex)
	if step != nil && step.StepType == StepManualConfirm {
		r.publish(EventNeedsConfirm, map[string]interface{}{"run_id": run.ID, "step_code": step.StepCode})
	}
}

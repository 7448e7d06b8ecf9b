// Package engine implements the workflow engine: planning a Task into an
// ordered protocol of steps, running those steps against the vendor
// dispatch API, and applying operator decisions at manual checkpoints.
package engine

import "time"

// TaskType is the kind of work intent an operator creates.
type TaskType string

const (
	TaskNavigate TaskType = "NAVIGATE"
	TaskOrdering TaskType = "ORDERING"
	TaskDelivery TaskType = "DELIVERY"
	TaskCleanup  TaskType = "CLEANUP"
	TaskBilling  TaskType = "BILLING"
	TaskCharging TaskType = "CHARGING"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskReady      TaskStatus = "READY"
	TaskAssigned   TaskStatus = "ASSIGNED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskCanceled   TaskStatus = "CANCELED"
	TaskFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether a task in this status never transitions again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskCanceled
}

// Task represents a work intent against the fleet.
type Task struct {
	ID              int64
	TaskType        TaskType
	TargetKind      string
	TargetRef       string
	Status          TaskStatus
	ReleaseAt       *time.Time
	AssignedRobotID *string
	Title           string
	Notes           *string
	CreatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RunStatus is the lifecycle state of a WorkflowRun.
type RunStatus string

const (
	RunRunning  RunStatus = "RUNNING"
	RunDone     RunStatus = "DONE"
	RunFailed   RunStatus = "FAILED"
	RunCanceled RunStatus = "CANCELED"
)

// IsTerminal reports whether a run in this status will never tick again.
func (s RunStatus) IsTerminal() bool {
	return s != RunRunning
}

// WorkflowRun is a single execution of a Task's protocol against one robot.
type WorkflowRun struct {
	ID                  int64
	TaskID              int64
	RobotID             string
	Status              RunStatus
	CurrentStepIndex    int
	TotalSteps          int
	CurrentVendorTaskID *string
	LastError           *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// StepType distinguishes an autonomous navigation leg from a
// human-gated checkpoint.
type StepType string

const (
	StepNavigate     StepType = "NAVIGATE"
	StepManualConfirm StepType = "MANUAL_CONFIRM"
)

// WorkflowStep is one entry in a run's protocol. NAVIGATE steps carry a
// destination; MANUAL_CONFIRM steps carry a decision once resolved.
type WorkflowStep struct {
	ID        int64
	RunID     int64
	StepIndex int
	StepType  StepType
	StepCode  string

	// NAVIGATE fields.
	AreaID     *string
	X          *float64
	Y          *float64
	Yaw        float64
	StopRadius float64

	// MANUAL_CONFIRM fields.
	CompletedAt     *time.Time
	Decision        *string
	DecisionPayload map[string]interface{}

	Label string
}

// PoiMapping pins a symbolic (kind, ref) pair to a concrete vendor POI id,
// bypassing name-based resolution.
type PoiMapping struct {
	Kind   string
	Ref    string
	PoiID  string
	AreaID *string
	Label  *string
}

// TickResult summarizes the outcome of a single tick pass across all
// RUNNING runs.
type TickResult struct {
	Progressed int
	Finished   int
	Failed     int
}

// NewTask builds a Task from operator-supplied fields, applying the
// creation invariants from the data model: releaseAt is normalized to
// UTC, and status is PENDING when releaseAt is strictly in the future,
// else READY.
func NewTask(taskType TaskType, targetKind, targetRef, title string, releaseAt *time.Time) *Task {
	now := time.Now().UTC()
	task := &Task{
		TaskType:   taskType,
		TargetKind: targetKind,
		TargetRef:  targetRef,
		Title:      title,
		Status:     TaskReady,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if releaseAt != nil {
		utc := releaseAt.UTC()
		task.ReleaseAt = &utc
		if utc.After(now) {
			task.Status = TaskPending
		}
	}
	return task
}

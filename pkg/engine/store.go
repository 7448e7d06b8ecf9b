package engine

import (
	"context"
	"io"
)

// TaskStore is the subset of task persistence the engine depends on. The
// full task CRUD surface (create, update, list, status transitions from
// operator requests) lives outside the engine; the engine only needs to
// read a task and flip its status as a side effect of run progress.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
}

// RunStore persists WorkflowRun rows and enforces the single-RUNNING-run-
// per-robot exclusivity invariant at creation time.
type RunStore interface {
	// CreateRun persists run and its steps atomically, failing with a
	// ferrors.ConflictError if another run is already RUNNING for
	// run.RobotID.
	CreateRun(ctx context.Context, run *WorkflowRun, steps []*WorkflowStep) error
	GetRun(ctx context.Context, id int64) (*WorkflowRun, error)
	UpdateRun(ctx context.Context, run *WorkflowRun) error
	ListRunningRuns(ctx context.Context) ([]*WorkflowRun, error)
}

// StepStore persists WorkflowStep rows belonging to a run.
type StepStore interface {
	ListSteps(ctx context.Context, runID int64) ([]*WorkflowStep, error)
	UpdateStep(ctx context.Context, step *WorkflowStep) error
}

// PoiMappingStore resolves explicit (kind, ref) to poi_id mappings. The
// mutation surface (upsert/delete/auto-map) lives outside the engine.
// GetMapping returns (nil, nil) when no mapping exists for (kind, ref) —
// that is tier-1 falling through, not an error.
type PoiMappingStore interface {
	GetMapping(ctx context.Context, kind, ref string) (*PoiMapping, error)
}

// Store composes the persistence surfaces the engine needs. A concrete
// implementation (internal/store/sqlite) also satisfies io.Closer so the
// daemon can release the underlying connection on shutdown.
type Store interface {
	TaskStore
	RunStore
	StepStore
	PoiMappingStore
	io.Closer
}

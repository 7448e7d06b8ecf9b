// Package sqlite provides a SQLite-backed engine.Store for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fleetcore/engine/internal/metrics"
	"github.com/fleetcore/engine/pkg/engine"
	"github.com/fleetcore/engine/pkg/ferrors"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ engine.Store = (*Store)(nil)

// Store is a SQLite storage backend for the workflow engine.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens path, applies pragmas, and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writes; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("exec %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_ref TEXT NOT NULL,
			status TEXT NOT NULL,
			release_at TEXT,
			assigned_robot_id TEXT,
			title TEXT,
			notes TEXT,
			created_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id),
			robot_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step_index INTEGER NOT NULL DEFAULT 0,
			total_steps INTEGER NOT NULL DEFAULT 0,
			current_vendor_task_id TEXT,
			last_error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		// Only one RUNNING run per robot at a time; this is the
		// exclusivity invariant CreateRun relies on instead of a
		// SELECT-then-INSERT race.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_running_per_robot
			ON workflow_runs(robot_id) WHERE status = 'RUNNING'`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON workflow_runs(status)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL,
			step_type TEXT NOT NULL,
			step_code TEXT NOT NULL,
			area_id TEXT,
			x REAL,
			y REAL,
			yaw REAL NOT NULL DEFAULT 0,
			stop_radius REAL NOT NULL DEFAULT 0,
			completed_at TEXT,
			decision TEXT,
			decision_payload TEXT,
			label TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS poi_mappings (
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			poi_id TEXT NOT NULL,
			area_id TEXT,
			label TEXT,
			PRIMARY KEY (kind, ref)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetTask(ctx context.Context, id int64) (*engine.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_type, target_kind, target_ref, status, release_at,
			assigned_robot_id, title, notes, created_by, created_at, updated_at
		FROM tasks WHERE id = ?`, id)

	var t engine.Task
	var releaseAt, assignedRobotID, notes, createdBy sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.TaskType, &t.TargetKind, &t.TargetRef, &t.Status,
		&releaseAt, &assignedRobotID, &t.Title, &notes, &createdBy, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ferrors.NotFoundError{Resource: "task", ID: fmt.Sprintf("%d", id)}
		}
		return nil, ferrors.Internal("sqlite.GetTask", err)
	}
	if releaseAt.Valid {
		tm, _ := time.Parse(time.RFC3339, releaseAt.String)
		t.ReleaseAt = &tm
	}
	if assignedRobotID.Valid {
		t.AssignedRobotID = &assignedRobotID.String
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.String
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *engine.Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET task_type=?, target_kind=?, target_ref=?, status=?, release_at=?,
			assigned_robot_id=?, title=?, notes=?, created_by=?, updated_at=?
		WHERE id=?`,
		t.TaskType, t.TargetKind, t.TargetRef, t.Status, nullTime(t.ReleaseAt),
		nullString(t.AssignedRobotID), t.Title, nullString(t.Notes), nullString(t.CreatedBy),
		t.UpdatedAt.Format(time.RFC3339), t.ID)
	if err != nil {
		metrics.RecordPersistenceError("UpdateTask", "exec")
		return ferrors.Internal("sqlite.UpdateTask", err)
	}
	return nil
}

// CreateTask inserts a new task and populates its assigned ID.
func (s *Store) CreateTask(ctx context.Context, t *engine.Task) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_type, target_kind, target_ref, status, release_at,
			assigned_robot_id, title, notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskType, t.TargetKind, t.TargetRef, t.Status, nullTime(t.ReleaseAt),
		nullString(t.AssignedRobotID), t.Title, nullString(t.Notes), nullString(t.CreatedBy),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return ferrors.Internal("sqlite.CreateTask", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ferrors.Internal("sqlite.CreateTask", err)
	}
	t.ID = id
	return nil
}

// ListTasks returns tasks matching status, or every task if status is "".
func (s *Store) ListTasks(ctx context.Context, status engine.TaskStatus) ([]*engine.Task, error) {
	query := `SELECT id FROM tasks`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Internal("sqlite.ListTasks", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ferrors.Internal("sqlite.ListTasks", err)
		}
		ids = append(ids, id)
	}
	out := make([]*engine.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

func (s *Store) CreateRun(ctx context.Context, run *engine.WorkflowRun, steps []*engine.WorkflowStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Internal("sqlite.CreateRun", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now
	res, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_runs (task_id, robot_id, status, current_step_index, total_steps,
			current_vendor_task_id, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.TaskID, run.RobotID, run.Status, run.CurrentStepIndex, run.TotalSteps,
		nullString(run.CurrentVendorTaskID), nullString(run.LastError),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return &ferrors.ConflictError{Reason: "robot " + run.RobotID + " already has a RUNNING run"}
		}
		metrics.RecordPersistenceError("CreateRun", "exec")
		return ferrors.Internal("sqlite.CreateRun", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return ferrors.Internal("sqlite.CreateRun", err)
	}
	run.ID = runID

	for _, step := range steps {
		step.RunID = runID
		payloadJSON, err := marshalPayload(step.DecisionPayload)
		if err != nil {
			return ferrors.Internal("sqlite.CreateRun", err)
		}
		stepRes, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (run_id, step_index, step_type, step_code, area_id, x, y,
				yaw, stop_radius, completed_at, decision, decision_payload, label)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.RunID, step.StepIndex, step.StepType, step.StepCode, step.AreaID, step.X, step.Y,
			step.Yaw, step.StopRadius, nullTime(step.CompletedAt), nullString(step.Decision),
			payloadJSON, step.Label)
		if err != nil {
			return ferrors.Internal("sqlite.CreateRun", err)
		}
		stepID, err := stepRes.LastInsertId()
		if err != nil {
			return ferrors.Internal("sqlite.CreateRun", err)
		}
		step.ID = stepID
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Internal("sqlite.CreateRun", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*engine.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, robot_id, status, current_step_index, total_steps,
			current_vendor_task_id, last_error, created_at, updated_at
		FROM workflow_runs WHERE id = ?`, id)
	return scanRun(row, id)
}

func scanRun(row *sql.Row, id int64) (*engine.WorkflowRun, error) {
	var run engine.WorkflowRun
	var vendorTaskID, lastError sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&run.ID, &run.TaskID, &run.RobotID, &run.Status, &run.CurrentStepIndex,
		&run.TotalSteps, &vendorTaskID, &lastError, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ferrors.NotFoundError{Resource: "run", ID: fmt.Sprintf("%d", id)}
		}
		return nil, ferrors.Internal("sqlite.GetRun", err)
	}
	if vendorTaskID.Valid {
		run.CurrentVendorTaskID = &vendorTaskID.String
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}

func (s *Store) UpdateRun(ctx context.Context, run *engine.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status=?, current_step_index=?, total_steps=?,
			current_vendor_task_id=?, last_error=?, updated_at=?
		WHERE id=?`,
		run.Status, run.CurrentStepIndex, run.TotalSteps, nullString(run.CurrentVendorTaskID),
		nullString(run.LastError), run.UpdatedAt.Format(time.RFC3339), run.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &ferrors.ConflictError{Reason: "robot " + run.RobotID + " already has a RUNNING run"}
		}
		metrics.RecordPersistenceError("UpdateRun", "exec")
		return ferrors.Internal("sqlite.UpdateRun", err)
	}
	return nil
}

func (s *Store) ListRunningRuns(ctx context.Context) ([]*engine.WorkflowRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM workflow_runs WHERE status = 'RUNNING'`)
	if err != nil {
		return nil, ferrors.Internal("sqlite.ListRunningRuns", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, ferrors.Internal("sqlite.ListRunningRuns", err)
		}
		ids = append(ids, id)
	}
	out := make([]*engine.WorkflowRun, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *Store) ListSteps(ctx context.Context, runID int64) ([]*engine.WorkflowStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_index, step_type, step_code, area_id, x, y, yaw, stop_radius,
			completed_at, decision, decision_payload, label
		FROM workflow_steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, ferrors.Internal("sqlite.ListSteps", err)
	}
	defer rows.Close()

	var out []*engine.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStep(row rowScanner) (*engine.WorkflowStep, error) {
	var step engine.WorkflowStep
	var areaID sql.NullString
	var x, y sql.NullFloat64
	var completedAt, decision, decisionPayload, label sql.NullString
	if err := row.Scan(&step.ID, &step.RunID, &step.StepIndex, &step.StepType, &step.StepCode,
		&areaID, &x, &y, &step.Yaw, &step.StopRadius, &completedAt, &decision, &decisionPayload,
		&label); err != nil {
		return nil, ferrors.Internal("sqlite.scanStep", err)
	}
	if areaID.Valid {
		step.AreaID = &areaID.String
	}
	if x.Valid {
		step.X = &x.Float64
	}
	if y.Valid {
		step.Y = &y.Float64
	}
	if completedAt.Valid {
		tm, _ := time.Parse(time.RFC3339, completedAt.String)
		step.CompletedAt = &tm
	}
	if decision.Valid {
		step.Decision = &decision.String
	}
	if decisionPayload.Valid && decisionPayload.String != "" {
		if err := json.Unmarshal([]byte(decisionPayload.String), &step.DecisionPayload); err != nil {
			return nil, ferrors.Internal("sqlite.scanStep", err)
		}
	}
	if label.Valid {
		step.Label = label.String
	}
	return &step, nil
}

func (s *Store) UpdateStep(ctx context.Context, step *engine.WorkflowStep) error {
	payloadJSON, err := marshalPayload(step.DecisionPayload)
	if err != nil {
		return ferrors.Internal("sqlite.UpdateStep", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_steps SET step_index=?, step_type=?, step_code=?, area_id=?, x=?, y=?,
			yaw=?, stop_radius=?, completed_at=?, decision=?, decision_payload=?, label=?
		WHERE id=?`,
		step.StepIndex, step.StepType, step.StepCode, step.AreaID, step.X, step.Y, step.Yaw,
		step.StopRadius, nullTime(step.CompletedAt), nullString(step.Decision), payloadJSON,
		step.Label, step.ID)
	if err != nil {
		metrics.RecordPersistenceError("UpdateStep", "exec")
		return ferrors.Internal("sqlite.UpdateStep", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ferrors.Internal("sqlite.UpdateStep", err)
	}
	if n == 0 {
		return &ferrors.NotFoundError{Resource: "step", ID: fmt.Sprintf("%d", step.ID)}
	}
	return nil
}

func (s *Store) GetMapping(ctx context.Context, kind, ref string) (*engine.PoiMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, ref, poi_id, area_id, label FROM poi_mappings WHERE kind = ? AND ref = ?`,
		kind, ref)

	var m engine.PoiMapping
	var areaID, label sql.NullString
	if err := row.Scan(&m.Kind, &m.Ref, &m.PoiID, &areaID, &label); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ferrors.Internal("sqlite.GetMapping", err)
	}
	if areaID.Valid {
		m.AreaID = &areaID.String
	}
	if label.Valid {
		m.Label = &label.String
	}
	return &m, nil
}

// UpsertMapping pins (kind, ref) to poiID, replacing any existing mapping.
func (s *Store) UpsertMapping(ctx context.Context, m *engine.PoiMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poi_mappings (kind, ref, poi_id, area_id, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, ref) DO UPDATE SET poi_id=excluded.poi_id, area_id=excluded.area_id,
			label=excluded.label`,
		m.Kind, m.Ref, m.PoiID, nullString(m.AreaID), nullString(m.Label))
	if err != nil {
		return ferrors.Internal("sqlite.UpsertMapping", err)
	}
	return nil
}

// ListMappings returns every PoiMapping, ordered by (kind, ref).
func (s *Store) ListMappings(ctx context.Context) ([]*engine.PoiMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref, poi_id, area_id, label FROM poi_mappings ORDER BY kind, ref`)
	if err != nil {
		return nil, ferrors.Internal("sqlite.ListMappings", err)
	}
	defer rows.Close()

	var out []*engine.PoiMapping
	for rows.Next() {
		var m engine.PoiMapping
		var areaID, label sql.NullString
		if err := rows.Scan(&m.Kind, &m.Ref, &m.PoiID, &areaID, &label); err != nil {
			return nil, ferrors.Internal("sqlite.ListMappings", err)
		}
		if areaID.Valid {
			m.AreaID = &areaID.String
		}
		if label.Valid {
			m.Label = &label.String
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMapping removes the (kind, ref) mapping if present.
func (s *Store) DeleteMapping(ctx context.Context, kind, ref string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM poi_mappings WHERE kind = ? AND ref = ?`, kind, ref)
	if err != nil {
		return ferrors.Internal("sqlite.DeleteMapping", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func marshalPayload(payload map[string]interface{}) (interface{}, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

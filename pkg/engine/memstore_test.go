package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/fleetcore/engine/pkg/ferrors"
)

// memStore is an in-memory Store used across engine tests, standing in
// for internal/store/sqlite the way the teacher fakes its persistence
// backends in unit tests.
type memStore struct {
	mu       sync.Mutex
	tasks    map[int64]*Task
	runs     map[int64]*WorkflowRun
	steps    map[int64][]*WorkflowStep
	mappings map[string]*PoiMapping
	nextRun  int64
	nextStep int64
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    map[int64]*Task{},
		runs:     map[int64]*WorkflowRun{},
		steps:    map[int64][]*WorkflowStep{},
		mappings: map[string]*PoiMapping{},
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) addTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

func (s *memStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "task", ID: strconv.FormatInt(id, 10)}
	}
	copyTask := *task
	return &copyTask, nil
}

func (s *memStore) UpdateTask(ctx context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyTask := *task
	s.tasks[task.ID] = &copyTask
	return nil
}

func (s *memStore) CreateRun(ctx context.Context, run *WorkflowRun, steps []*WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.RobotID == run.RobotID && existing.Status == RunRunning {
			return &ferrors.ConflictError{Reason: "robot " + run.RobotID + " already has a RUNNING run"}
		}
	}

	s.nextRun++
	run.ID = s.nextRun
	for _, step := range steps {
		s.nextStep++
		step.ID = s.nextStep
		step.RunID = run.ID
	}
	s.steps[run.ID] = append([]*WorkflowStep{}, steps...)
	copyRun := *run
	s.runs[run.ID] = &copyRun
	return nil
}

func (s *memStore) GetRun(ctx context.Context, id int64) (*WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, &ferrors.NotFoundError{Resource: "run", ID: strconv.FormatInt(id, 10)}
	}
	copyRun := *run
	return &copyRun, nil
}

func (s *memStore) UpdateRun(ctx context.Context, run *WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyRun := *run
	s.runs[run.ID] = &copyRun
	return nil
}

func (s *memStore) ListRunningRuns(ctx context.Context) ([]*WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*WorkflowRun
	for _, run := range s.runs {
		if run.Status == RunRunning {
			copyRun := *run
			out = append(out, &copyRun)
		}
	}
	return out, nil
}

func (s *memStore) ListSteps(ctx context.Context, runID int64) ([]*WorkflowStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.steps[runID]
	out := make([]*WorkflowStep, len(steps))
	for i, step := range steps {
		copyStep := *step
		out[i] = &copyStep
	}
	return out, nil
}

func (s *memStore) UpdateStep(ctx context.Context, step *WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.steps[step.RunID] {
		if existing.ID == step.ID {
			*existing = *step
			return nil
		}
	}
	return &ferrors.NotFoundError{Resource: "step", ID: strconv.FormatInt(step.ID, 10)}
}

func (s *memStore) GetMapping(ctx context.Context, kind, ref string) (*PoiMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[kind+"|"+ref]
	if !ok {
		return nil, nil
	}
	copyMapping := *m
	return &copyMapping, nil
}

func (s *memStore) setMapping(m *PoiMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.Kind+"|"+m.Ref] = m
}

// fakeDirectory is a fixed set of POIs per robot plus online state, used
// in place of pkg/vendorclient in tests.
type fakeDirectory struct {
	mu         sync.Mutex
	pois       map[string][]POI
	areaByRobot map[string]string
	online     map[string]*bool
	err        error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{pois: map[string][]POI{}, areaByRobot: map[string]string{}, online: map[string]*bool{}}
}

func (d *fakeDirectory) ListPOIs(ctx context.Context, robotID string) ([]POI, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.pois[robotID], nil
}

func (d *fakeDirectory) CurrentAreaID(ctx context.Context, robotID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.areaByRobot[robotID], nil
}

func (d *fakeDirectory) IsOnline(ctx context.Context, robotID string) (bool, bool, error) {
	if d.err != nil {
		return false, false, d.err
	}
	v, ok := d.online[robotID]
	if !ok || v == nil {
		return false, false, nil
	}
	return *v, true, nil
}

// fakeVendor simulates the AutoXing dispatch API with scripted
// completion behavior per call count.
type fakeVendor struct {
	mu             sync.Mutex
	nextTaskID     int
	pollsUntilDone map[string]int
	canceled       []string
	createErr      error
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{pollsUntilDone: map[string]int{}}
}

func (v *fakeVendor) TaskCreate(ctx context.Context, req NavTaskRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return "", v.createErr
	}
	v.nextTaskID++
	id := "v-" + strconv.Itoa(v.nextTaskID)
	if v.pollsUntilDone[id] == 0 {
		v.pollsUntilDone[id] = 1
	}
	return id, nil
}

func (v *fakeVendor) TaskState(ctx context.Context, vendorTaskID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	remaining := v.pollsUntilDone[vendorTaskID]
	if remaining > 1 {
		v.pollsUntilDone[vendorTaskID] = remaining - 1
		return 0, nil
	}
	return actTypeCompleted, nil
}

func (v *fakeVendor) TaskCancel(ctx context.Context, vendorTaskID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.canceled = append(v.canceled, vendorTaskID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(eventType string, data map[string]interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return 1
}


func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

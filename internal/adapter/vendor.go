// Package adapter wires pkg/vendorclient's AutoXing wire types to the
// narrow seams the engine and robotmonitor packages depend on
// (engine.RobotDirectory, engine.VendorTasks, robotmonitor.StateFetcher),
// so neither of those packages needs to know the vendor's JSON shapes.
package adapter

import (
	"context"

	"github.com/fleetcore/engine/pkg/engine"
	"github.com/fleetcore/engine/pkg/vendorclient"
)

// navTaskPointType is the vendor's taskPts[].type for a plain navigation
// point (not a charging dock or elevator waypoint).
const navTaskPointType = -1

// VendorAPI is the subset of *vendorclient.Client the adapters depend on,
// narrowed for testability.
type VendorAPI interface {
	RobotState(ctx context.Context, robotID string) (*vendorclient.RobotState, error)
	ListPOIs(ctx context.Context, robotID string) ([]vendorclient.POI, error)
	TaskCreate(ctx context.Context, body vendorclient.NavTaskRequest) (*vendorclient.TaskCreateResult, error)
	TaskState(ctx context.Context, vendorTaskID string) (*vendorclient.TaskStateResult, error)
	TaskCancel(ctx context.Context, vendorTaskID string) error
}

// RobotDirectory adapts VendorAPI to engine.RobotDirectory.
type RobotDirectory struct {
	vendor VendorAPI
}

// NewRobotDirectory builds an engine.RobotDirectory backed by vendor.
func NewRobotDirectory(vendor VendorAPI) *RobotDirectory {
	return &RobotDirectory{vendor: vendor}
}

// ListPOIs fetches robotID's known POIs and converts them to engine.POI.
func (d *RobotDirectory) ListPOIs(ctx context.Context, robotID string) ([]engine.POI, error) {
	pois, err := d.vendor.ListPOIs(ctx, robotID)
	if err != nil {
		return nil, err
	}
	out := make([]engine.POI, len(pois))
	for i, p := range pois {
		out[i] = toEnginePOI(p)
	}
	return out, nil
}

// CurrentAreaID returns robotID's current area, or "" if the vendor did
// not report one.
func (d *RobotDirectory) CurrentAreaID(ctx context.Context, robotID string) (string, error) {
	state, err := d.vendor.RobotState(ctx, robotID)
	if err != nil {
		return "", err
	}
	if state.AreaID == nil {
		return "", nil
	}
	return *state.AreaID, nil
}

// IsOnline reports robotID's liveness. ok is false when the vendor's
// state payload carries no isOnline field at all.
func (d *RobotDirectory) IsOnline(ctx context.Context, robotID string) (online bool, ok bool, err error) {
	state, err := d.vendor.RobotState(ctx, robotID)
	if err != nil {
		return false, false, err
	}
	if state.IsOnline == nil {
		return false, false, nil
	}
	return *state.IsOnline, true, nil
}

func toEnginePOI(p vendorclient.POI) engine.POI {
	var x, y float64
	if len(p.Coordinate) > 0 {
		x = p.Coordinate[0]
	}
	if len(p.Coordinate) > 1 {
		y = p.Coordinate[1]
	}
	return engine.POI{
		ID:     p.ID,
		Name:   p.Name,
		AreaID: p.AreaID,
		X:      x,
		Y:      y,
		Yaw:    p.Yaw,
	}
}

// VendorTasks adapts VendorAPI to engine.VendorTasks.
type VendorTasks struct {
	vendor VendorAPI
}

// NewVendorTasks builds an engine.VendorTasks backed by vendor.
func NewVendorTasks(vendor VendorAPI) *VendorTasks {
	return &VendorTasks{vendor: vendor}
}

// TaskCreate builds the vendor's fixed-shape navigation task body from
// req and returns the vendor-assigned task id.
func (t *VendorTasks) TaskCreate(ctx context.Context, req engine.NavTaskRequest) (string, error) {
	body := vendorclient.NavTaskRequest{
		Name:             req.Label,
		RobotID:          req.RobotID,
		DispatchType:     0,
		TaskType:         6,
		RunType:          22,
		RunNum:           1,
		RouteMode:        1,
		RunMode:          1,
		IgnorePublicSite: false,
		TaskPts: []vendorclient.NavTaskPoint{
			{
				AreaID:     req.AreaID,
				X:          req.X,
				Y:          req.Y,
				Yaw:        req.Yaw,
				StopRadius: req.StopRadius,
				Type:       navTaskPointType,
				Ext:        map[string]interface{}{"name": req.Label},
			},
		},
	}
	result, err := t.vendor.TaskCreate(ctx, body)
	if err != nil {
		return "", err
	}
	return result.TaskID, nil
}

// TaskState polls vendorTaskID and returns its interpreted actType.
func (t *VendorTasks) TaskState(ctx context.Context, vendorTaskID string) (int, error) {
	result, err := t.vendor.TaskState(ctx, vendorTaskID)
	if err != nil {
		return 0, err
	}
	return result.ActType, nil
}

// TaskCancel cancels vendorTaskID.
func (t *VendorTasks) TaskCancel(ctx context.Context, vendorTaskID string) error {
	return t.vendor.TaskCancel(ctx, vendorTaskID)
}

// StateFetcher adapts VendorAPI to robotmonitor.StateFetcher, flattening
// the vendor's typed RobotState into the plain map the poller hashes and
// caches.
type StateFetcher struct {
	vendor VendorAPI
}

// NewStateFetcher builds a robotmonitor.StateFetcher backed by vendor.
func NewStateFetcher(vendor VendorAPI) *StateFetcher {
	return &StateFetcher{vendor: vendor}
}

// RobotState fetches robotID's raw vendor payload for caching and hashing.
func (f *StateFetcher) RobotState(ctx context.Context, robotID string) (map[string]interface{}, error) {
	state, err := f.vendor.RobotState(ctx, robotID)
	if err != nil {
		return nil, err
	}
	if state.Raw != nil {
		return state.Raw, nil
	}
	return map[string]interface{}{"robotId": state.RobotID}, nil
}

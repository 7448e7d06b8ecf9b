package engine

import "context"

// POI is a point of interest on a robot's map: a named coordinate the
// resolver can match a symbolic (kind, ref) target against. It is
// transient — never persisted by the engine.
type POI struct {
	ID         string
	Name       string
	AreaID     string
	X          float64
	Y          float64
	Yaw        float64
}

// RobotDirectory is the engine's seam onto the vendor's live robot and
// map data: the resolver and offline-reassign check read through it, and
// nothing in this package imports the vendor HTTP client directly.
type RobotDirectory interface {
	// ListPOIs returns every POI the vendor knows about for robotID,
	// unfiltered by area.
	ListPOIs(ctx context.Context, robotID string) ([]POI, error)

	// CurrentAreaID returns the area the robot currently occupies, or
	// "" if unknown.
	CurrentAreaID(ctx context.Context, robotID string) (string, error)

	// IsOnline reports whether robotID is currently online. ok is false
	// when the vendor did not report liveness at all (neither true nor
	// false) or the fetch failed.
	IsOnline(ctx context.Context, robotID string) (online bool, ok bool, err error)
}

// VendorTasks is the engine's seam onto the vendor dispatch API for
// navigation legs.
type VendorTasks interface {
	TaskCreate(ctx context.Context, req NavTaskRequest) (vendorTaskID string, err error)
	TaskState(ctx context.Context, vendorTaskID string) (actType int, err error)
	TaskCancel(ctx context.Context, vendorTaskID string) error
}

// NavTaskRequest is the body sent to the vendor for one NAVIGATE step,
// carried here (rather than imported from pkg/vendorclient) so the
// engine package has no dependency on the vendor's wire types.
type NavTaskRequest struct {
	Label      string
	RobotID    string
	AreaID     string
	X          float64
	Y          float64
	Yaw        float64
	StopRadius float64
}

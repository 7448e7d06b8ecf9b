package vendorclient

import "encoding/json"

// envelope is the vendor's outer response shape: an application-level
// status distinct from the HTTP transport status, wrapping a data
// payload whose shape depends on the endpoint.
type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Msg    string          `json:"msg,omitempty"`
}

// RobotState is the vendor's robot state snapshot, interpreted fields
// plus the raw payload for forward compatibility.
type RobotState struct {
	RobotID         string                 `json:"robotId"`
	Battery         *float64               `json:"battery"`
	IsOnline        *bool                  `json:"isOnline"`
	IsCharging      *bool                  `json:"isCharging"`
	IsEmergencyStop *bool                  `json:"isEmergencyStop"`
	IsManualMode    *bool                  `json:"isManualMode"`
	AreaID          *string                `json:"areaId"`
	BusinessID      *string                `json:"businessId"`
	Raw             map[string]interface{} `json:"-"`
}

// POI is a vendor point of interest.
type POI struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	AreaID     string                 `json:"areaId"`
	Coordinate []float64              `json:"coordinate"`
	Yaw        float64                `json:"yaw"`
	Raw        map[string]interface{} `json:"-"`
}

// NavTaskPoint is one entry in a navigation task's taskPts array.
type NavTaskPoint struct {
	AreaID     string                 `json:"areaId"`
	X          float64                `json:"x"`
	Y          float64                `json:"y"`
	Yaw        float64                `json:"yaw"`
	StopRadius float64                `json:"stopRadius"`
	Type       int                    `json:"type"`
	Ext        map[string]interface{} `json:"ext"`
}

// NavTaskRequest is the body AutoXing expects at /task/v3/create for a
// single-leg navigation task.
type NavTaskRequest struct {
	Name             string         `json:"name"`
	RobotID          string         `json:"robotId"`
	DispatchType     int            `json:"dispatchType"`
	TaskType         int            `json:"taskType"`
	RunType          int            `json:"runType"`
	RunNum           int            `json:"runNum"`
	RouteMode        int            `json:"routeMode"`
	RunMode          int            `json:"runMode"`
	IgnorePublicSite bool           `json:"ignorePublicSite"`
	TaskPts          []NavTaskPoint `json:"taskPts"`
}

// TaskCreateResult is the interpreted response from /task/v3/create.
type TaskCreateResult struct {
	TaskID string
}

// TaskStateResult is the interpreted response from /task/v2.0/{id}/state.
// ActType 1001 means the task has completed.
type TaskStateResult struct {
	ActType int
}

package vendorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/fleetcore/engine/pkg/ferrors"
)

// RobotState fetches the vendor's current snapshot for a robot.
func (c *Client) RobotState(ctx context.Context, robotID string) (*RobotState, error) {
	env, err := c.do(ctx, "vendorclient.RobotState", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/robot/v2.0/"+robotID+"/state", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var state RobotState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		return nil, ferrors.Internal("vendorclient.RobotState", err)
	}
	if state.RobotID == "" {
		state.RobotID = robotID
	}
	_ = json.Unmarshal(env.Data, &state.Raw)
	return &state, nil
}

// ListPOIs lists the vendor's points of interest known to robotID. The
// vendor's POI listing endpoint does not itself filter by area; callers
// wanting only the robot's current area apply that filter themselves
// using the area_id carried on each POI (the resolver's tier 1 does this
// via RobotDirectory.CurrentAreaID).
func (c *Client) ListPOIs(ctx context.Context, robotID string) ([]POI, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"robotId":  robotID,
		"pageSize": 0,
		"pageNum":  1,
	})

	env, err := c.do(ctx, "vendorclient.ListPOIs", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/map/v1.1/poi/list", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		List []POI `json:"list"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, ferrors.Internal("vendorclient.ListPOIs", err)
	}
	return data.List, nil
}

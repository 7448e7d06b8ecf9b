package vendorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetcore/engine/pkg/ferrors"
)

// TaskCreate authenticates a POST to /task/v3/create with body and
// returns the vendor's assigned task id.
func (c *Client) TaskCreate(ctx context.Context, body NavTaskRequest) (*TaskCreateResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ferrors.Internal("vendorclient.TaskCreate", err)
	}

	env, err := c.do(ctx, "vendorclient.TaskCreate", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/task/v3/create", bytes.NewReader(payload))
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
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, ferrors.Internal("vendorclient.TaskCreate", err)
	}
	if data.TaskID == "" {
		return nil, &ferrors.InternalError{Op: "vendorclient.TaskCreate", Cause: errMissingTaskID}
	}
	return &TaskCreateResult{TaskID: data.TaskID}, nil
}

// TaskState polls /task/v2.0/{id}/state and returns the interpreted
// actType. ActType 1001 signals completion; every other value means the
// task has not yet finished.
func (c *Client) TaskState(ctx context.Context, vendorTaskID string) (*TaskStateResult, error) {
	env, err := c.do(ctx, "vendorclient.TaskState", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/task/v2.0/"+vendorTaskID+"/state", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		ActType int `json:"actType"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, ferrors.Internal("vendorclient.TaskState", err)
	}
	return &TaskStateResult{ActType: data.ActType}, nil
}

// TaskCancel cancels a vendor task, preferring the v3 endpoint and
// falling back to the legacy v2 endpoint on error.
func (c *Client) TaskCancel(ctx context.Context, vendorTaskID string) error {
	if err := c.taskCancelV3(ctx, vendorTaskID); err != nil {
		return c.taskCancelV2(ctx, vendorTaskID)
	}
	return nil
}

func (c *Client) taskCancelV3(ctx context.Context, vendorTaskID string) error {
	payload, _ := json.Marshal(map[string]string{"taskId": vendorTaskID})
	_, err := c.do(ctx, "vendorclient.TaskCancel.v3", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/task/v3/cancel", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	return err
}

func (c *Client) taskCancelV2(ctx context.Context, vendorTaskID string) error {
	_, err := c.do(ctx, "vendorclient.TaskCancel.v2", func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/task/v2.0/"+vendorTaskID+"/cancel", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		return req, nil
	})
	return err
}

var errMissingTaskID = errors.New("vendor task create returned no taskId")

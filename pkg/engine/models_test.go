package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTask_NoReleaseAt_IsReady(t *testing.T) {
	task := NewTask(TaskNavigate, "POI", "p-1", "go", nil)
	assert.Equal(t, TaskReady, task.Status)
	assert.Nil(t, task.ReleaseAt)
}

func TestNewTask_FutureReleaseAt_IsPendingAndUTC(t *testing.T) {
	local := time.Now().Add(time.Hour).In(time.FixedZone("UTC+9", 9*60*60))
	task := NewTask(TaskOrdering, "TABLE", "5", "order", &local)
	assert.Equal(t, TaskPending, task.Status)
	require := task.ReleaseAt
	if require == nil {
		t.Fatal("expected ReleaseAt to be set")
	}
	assert.Equal(t, time.UTC, require.Location())
	assert.WithinDuration(t, local, *require, time.Second)
}

func TestNewTask_PastReleaseAt_IsReady(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	task := NewTask(TaskCleanup, "TABLE", "3", "clean", &past)
	assert.Equal(t, TaskReady, task.Status)
}

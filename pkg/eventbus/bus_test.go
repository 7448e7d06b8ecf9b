package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := New("backend")
	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	n := bus.Publish("robot.state_updated", map[string]interface{}{"robot_id": "r1"})
	assert.Equal(t, 2, n)

	env1 := <-ch1
	env2 := <-ch2
	assert.Equal(t, "robot.state_updated", env1.Type)
	assert.Equal(t, "backend", env1.Source)
	assert.Equal(t, "r1", env1.Data["robot_id"])
	assert.Equal(t, "robot.state_updated", env2.Type)
}

func TestPublish_NoSubscribersReturnsZero(t *testing.T) {
	bus := New("backend")
	n := bus.Publish("workflow.ticked", nil)
	assert.Equal(t, 0, n)
}

func TestPublish_SlowSubscriberIsDisconnected(t *testing.T) {
	bus := New("backend")
	ch, _ := bus.Subscribe()

	for i := 0; i < subscriberBufferSize; i++ {
		bus.Publish("workflow.ticked", nil)
	}
	assert.Equal(t, 1, bus.SubscriberCount())

	n := bus.Publish("workflow.ticked", nil)
	assert.Equal(t, 0, n, "subscriber should have been dropped once its buffer filled")
	assert.Equal(t, 0, bus.SubscriberCount())

	for range ch {
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus := New("backend")
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestPublishAsync_DeliversEventually(t *testing.T) {
	bus := New("backend")
	ch, unsub := bus.Subscribe()
	defer unsub()

	bus.PublishAsync("orchestrator.ticked", map[string]interface{}{"n": 3})

	select {
	case env := <-ch:
		assert.Equal(t, "orchestrator.ticked", env.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async publish")
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := New("backend")
	require.Equal(t, 0, bus.SubscriberCount())

	_, unsub1 := bus.Subscribe()
	_, unsub2 := bus.Subscribe()
	assert.Equal(t, 2, bus.SubscriberCount())

	unsub1()
	assert.Equal(t, 1, bus.SubscriberCount())
	unsub2()
	assert.Equal(t, 0, bus.SubscriberCount())
}

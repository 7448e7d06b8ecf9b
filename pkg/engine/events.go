package engine

// Event topics published by the Runner over the event bus.
const (
	EventRunStarted   = "workflow.run_started"
	EventNeedsConfirm = "workflow.needs_confirm"
	EventConfirmed    = "workflow.confirmed"
	EventTicked       = "workflow.ticked"
	EventUpdated      = "workflow.updated"
)

// Publisher is the minimal event-bus seam the Runner depends on, so this
// package does not import pkg/eventbus directly.
type Publisher interface {
	Publish(eventType string, data map[string]interface{}) int
}

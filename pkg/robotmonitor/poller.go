package robotmonitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fleetcore/engine/internal/metrics"
)

// Event topics published by the Poller.
const (
	EventStateUpdated = "robot.state_updated"
	EventStateError   = "robot.state_error"
)

// StateFetcher is the poller's seam onto the vendor API for robot state.
type StateFetcher interface {
	RobotState(ctx context.Context, robotID string) (map[string]interface{}, error)
}

// Publisher is the minimal event-bus seam the Poller depends on.
type Publisher interface {
	Publish(eventType string, data map[string]interface{}) int
}

// Poller periodically fetches every tracked robot's state, caches it,
// and publishes EventStateUpdated only when the state actually changed.
type Poller struct {
	fetcher   StateFetcher
	cache     *Cache
	publisher Publisher
	robotIDs  []string
	interval  time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastHash map[string]string
}

// NewPoller builds a Poller over robotIDs, polling at most once per
// interval (floored at one second).
func NewPoller(fetcher StateFetcher, cache *Cache, publisher Publisher, robotIDs []string, interval time.Duration) *Poller {
	if interval < time.Second {
		interval = time.Second
	}
	ids := make([]string, 0, len(robotIDs))
	for _, id := range robotIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return &Poller{
		fetcher:   fetcher,
		cache:     cache,
		publisher: publisher,
		robotIDs:  ids,
		interval:  interval,
		lastHash:  make(map[string]string),
	}
}

// Start begins the poll loop in a goroutine. Calling Start while already
// running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop signals the poll loop to exit and waits for it to finish, up to
// a bounded grace period.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, robotID := range p.robotIDs {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}
		p.pollOne(ctx, robotID)
		// Yield between robots so a large fleet doesn't hammer the
		// vendor API in a tight loop.
		time.Sleep(100 * time.Millisecond)
	}
}

func (p *Poller) pollOne(ctx context.Context, robotID string) {
	state, err := p.fetcher.RobotState(ctx, robotID)
	if err != nil {
		metrics.RecordPollOutcome("error")
		if p.publisher != nil {
			p.publisher.Publish(EventStateError, map[string]interface{}{
				"robot_id": robotID,
				"error":    err.Error(),
			})
		}
		return
	}

	p.cache.Set(robotID, state)

	hash, err := stableHash(state)
	if err != nil {
		return
	}
	if p.lastHash[robotID] == hash {
		metrics.RecordPollOutcome("unchanged")
		return
	}
	p.lastHash[robotID] = hash
	metrics.RecordPollOutcome("updated")

	if p.publisher != nil {
		p.publisher.Publish(EventStateUpdated, map[string]interface{}{
			"robot_id": robotID,
			"state":    state,
		})
	}
}

// stableHash produces a deterministic fingerprint of state for change
// detection; encoding/json sorts map keys, so equal states always hash
// equal regardless of iteration order.
func stableHash(state map[string]interface{}) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

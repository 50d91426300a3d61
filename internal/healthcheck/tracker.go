package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest pipeline run for health endpoints.
type Snapshot struct {
	LastRunTime   *time.Time `json:"last_run_time"`
	RunDurationMS int64      `json:"run_duration_ms"`
	Resources     int        `json:"resources"`
	Status        string     `json:"status"`
}

// Tracker records run outcomes for health endpoints.
type Tracker struct {
	mu          sync.RWMutex
	lastRun     time.Time
	runDuration time.Duration
	resources   int
	status      string
	ready       bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordRun updates run details and readiness.
func (t *Tracker) RecordRun(duration time.Duration, resources int, status string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastRun = now
	t.runDuration = duration
	t.resources = resources
	t.status = status
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastRun.IsZero() {
		value := t.lastRun
		last = &value
	}
	return Snapshot{
		LastRunTime:   last,
		RunDurationMS: int64(t.runDuration / time.Millisecond),
		Resources:     t.resources,
		Status:        t.status,
	}
}

// Ready reports whether at least one run has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

package serving

import (
	"sync"
	"time"
)

// State is the serving lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateReloading     State = "reloading"
	StateShutdown      State = "shutdown"
)

// ReloadStatus describes the most recent reload attempt. A failed reload
// marks the attempt as failed while the serving state returns to Ready on
// the previous model.
type ReloadStatus string

const (
	ReloadNone       ReloadStatus = "none"
	ReloadSucceeded  ReloadStatus = "succeeded"
	ReloadFailed     ReloadStatus = "failed"
	ReloadInProgress ReloadStatus = "in_progress"
)

// Lifecycle tracks the state machine
// Uninitialized -> Loading -> Ready -> Reloading -> Ready, with Shutdown
// terminal. It answers the health and model-info surfaces.
type Lifecycle struct {
	mu         sync.Mutex
	state      State
	lastReload ReloadStatus
	changedAt  time.Time
	startedAt  time.Time
}

func NewLifecycle() *Lifecycle {
	now := time.Now().UTC()
	return &Lifecycle{
		state:      StateUninitialized,
		lastReload: ReloadNone,
		changedAt:  now,
		startedAt:  now,
	}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) LastReload() ReloadStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReload
}

func (l *Lifecycle) Uptime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.startedAt)
}

// LoadStarted marks the initial load. No-op once shut down.
func (l *Lifecycle) LoadStarted() {
	l.transition(func() {
		if l.state == StateUninitialized {
			l.state = StateLoading
		}
	})
}

func (l *Lifecycle) LoadSucceeded() {
	l.transition(func() {
		if l.state == StateLoading {
			l.state = StateReady
		}
	})
}

// LoadFailed returns the tracker to Uninitialized: the service is up but
// unhealthy until a later load or reload succeeds.
func (l *Lifecycle) LoadFailed() {
	l.transition(func() {
		if l.state == StateLoading {
			l.state = StateUninitialized
		}
	})
}

func (l *Lifecycle) ReloadStarted() {
	l.transition(func() {
		if l.state == StateReady {
			l.state = StateReloading
			l.lastReload = ReloadInProgress
		}
	})
}

func (l *Lifecycle) ReloadSucceeded() {
	l.transition(func() {
		if l.state == StateReloading {
			l.state = StateReady
			l.lastReload = ReloadSucceeded
		}
	})
}

// ReloadFailed records the failed attempt; the previous model keeps
// serving, so the serving state goes back to Ready.
func (l *Lifecycle) ReloadFailed() {
	l.transition(func() {
		if l.state == StateReloading {
			l.state = StateReady
			l.lastReload = ReloadFailed
		}
	})
}

func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateShutdown
	l.changedAt = time.Now().UTC()
}

func (l *Lifecycle) transition(apply func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateShutdown {
		return
	}
	apply()
	l.changedAt = time.Now().UTC()
}

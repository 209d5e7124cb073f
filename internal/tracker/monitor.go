package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/platform"
)

// Monitor folds idle time, lock state, and sleep/resume events into a single
// "system active" signal. Idle and locked are independent flags; the system
// is active only when both are clear. Transitions are edge-triggered.
type Monitor struct {
	signals       platform.PowerSignals
	log           *logger.Logger
	idleThreshold time.Duration
	pollInterval  time.Duration

	mu        sync.Mutex
	idle      bool
	locked    bool
	listeners map[int]func(active bool)
	nextID    int
}

func NewMonitor(signals platform.PowerSignals, log *logger.Logger, idleThreshold, pollInterval time.Duration) *Monitor {
	return &Monitor{
		signals:       signals,
		log:           log,
		idleThreshold: idleThreshold,
		pollInterval:  pollInterval,
		listeners:     make(map[int]func(bool)),
	}
}

// Subscribe registers a listener for active/inactive transitions and returns
// its unsubscribe function. Listener panics are isolated and logged; they
// never abort delivery to the remaining listeners.
func (m *Monitor) Subscribe(listener func(active bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// IsActive reports whether the system currently counts as active.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.idle && !m.locked
}

// Run subscribes to power signals and polls idle time until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	unsubscribe := m.signals.Subscribe(m.handlePowerEvent)
	defer unsubscribe()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.pollIdle()
		}
	}
}

func (m *Monitor) handlePowerEvent(event platform.PowerEvent) {
	m.log.Debug("power event", "event", event.String())
	switch event {
	case platform.EventSuspend, platform.EventLock:
		m.setLocked(true)
	case platform.EventResume, platform.EventUnlock:
		m.setLocked(false)
	}
}

// setLocked applies a lock-state change. Going inactive always notifies;
// going active notifies only when the idle flag is also clear.
func (m *Monitor) setLocked(locked bool) {
	m.mu.Lock()
	m.locked = locked
	var notify func(bool)
	if locked || !m.idle {
		notify = m.snapshotListeners()
	}
	m.mu.Unlock()
	if notify != nil {
		notify(!locked)
	}
}

func (m *Monitor) pollIdle() {
	idleTime, err := m.signals.IdleTime()
	if err != nil {
		m.log.Warn("idle time query failed", "error", err)
		return
	}
	nowIdle := idleTime >= m.idleThreshold

	m.mu.Lock()
	if nowIdle == m.idle {
		// No flag flip, no notification.
		m.mu.Unlock()
		return
	}
	m.idle = nowIdle
	var notify func(bool)
	if nowIdle || !m.locked {
		notify = m.snapshotListeners()
	}
	m.mu.Unlock()

	if notify != nil {
		m.log.Debug("idle state changed", "idle", nowIdle)
		notify(!nowIdle)
	}
}

// snapshotListeners copies the listener set under m.mu and returns a closure
// that delivers outside the lock.
func (m *Monitor) snapshotListeners() func(bool) {
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return func(active bool) {
		for _, l := range listeners {
			m.deliver(l, active)
		}
	}
}

func (m *Monitor) deliver(listener func(bool), active bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state listener panicked", "panic", r)
		}
	}()
	listener(active)
}

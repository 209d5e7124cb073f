package platform

import "time"

// PowerEvent is a discrete system power/lock signal.
type PowerEvent int

const (
	EventSuspend PowerEvent = iota
	EventResume
	EventLock
	EventUnlock
)

func (e PowerEvent) String() string {
	switch e {
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	case EventLock:
		return "lock"
	case EventUnlock:
		return "unlock"
	}
	return "unknown"
}

// PowerSignals exposes system power/lock events and the current idle time.
type PowerSignals interface {
	// Subscribe registers cb for power events and returns an unsubscribe
	// function. Callbacks run on the signal source's goroutine.
	Subscribe(cb func(PowerEvent)) func()
	// IdleTime reports how long the user has been idle.
	IdleTime() (time.Duration, error)
}

// NoopSignals never emits events and always reports zero idle time.
type NoopSignals struct{}

func (NoopSignals) Subscribe(func(PowerEvent)) func() { return func() {} }

func (NoopSignals) IdleTime() (time.Duration, error) { return 0, nil }

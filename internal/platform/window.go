// Package platform holds the interfaces the engine uses to talk to the
// operating system: foreground-window sampling, power/lock signals, and
// bundle metadata lookup. Real implementations are OS specific; the engine
// only sees these contracts.
package platform

import "errors"

var (
	// ErrPermissionDenied means screen/window access is not granted. The
	// tracking loop suppresses further sampling until permission is
	// confirmed rather than retrying every tick.
	ErrPermissionDenied = errors.New("window access permission denied")
	// ErrNoActiveWindow is transient and ignored by callers.
	ErrNoActiveWindow = errors.New("no active window")
)

// WindowSample is one observation of the foreground window.
type WindowSample struct {
	Platform       string
	Title          string
	OwnerName      string
	OwnerPath      string
	OwnerProcessID int64
	OwnerBundleID  string // empty when the platform has no bundle notion
	URL            string // browsers only, empty otherwise
}

// WindowProvider returns the current foreground window.
type WindowProvider interface {
	Sample() (WindowSample, error)
}

// UnsupportedProvider is the fallback for platforms without a sampler.
type UnsupportedProvider struct{}

func (UnsupportedProvider) Sample() (WindowSample, error) {
	return WindowSample{}, ErrNoActiveWindow
}

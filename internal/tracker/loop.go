package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadopc/lightbeam/internal/classify"
	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/platform"
	"github.com/sadopc/lightbeam/internal/rules"
	"github.com/sadopc/lightbeam/internal/store"
)

// Loop samples the foreground window on a fixed tick, rates and merges the
// sample, hands it to the classifier, and drives the session machine's
// target check. Ticks never overlap: a tick that fires while the previous
// one is still in flight is skipped.
type Loop struct {
	store      *store.Store
	windows    platform.WindowProvider
	matcher    *rules.Matcher
	classifier *classify.Classifier
	machine    *SessionMachine
	monitor    *Monitor
	notifier   Notifier
	log        *logger.Logger

	ctx         SessionContext
	tick        time.Duration
	mergeWindow time.Duration
	now         func() time.Time

	busy             atomic.Bool
	permissionDenied atomic.Bool
	classifyWG       sync.WaitGroup

	// lastDistraction is the merged activity row already reported, so the
	// same distracting window does not notify again on every tick.
	lastDistraction atomic.Int64
}

func NewLoop(
	s *store.Store,
	windows platform.WindowProvider,
	matcher *rules.Matcher,
	classifier *classify.Classifier,
	machine *SessionMachine,
	monitor *Monitor,
	notifier Notifier,
	log *logger.Logger,
	ctx SessionContext,
	tick, mergeWindow time.Duration,
) *Loop {
	return &Loop{
		store:       s,
		windows:     windows,
		matcher:     matcher,
		classifier:  classifier,
		machine:     machine,
		monitor:     monitor,
		notifier:    notifier,
		log:         log,
		ctx:         ctx,
		tick:        tick,
		mergeWindow: mergeWindow,
		now:         time.Now,
	}
}

// Run ticks until ctx is done. On exit it waits for in-flight classification
// and clears any pause state so nothing stale survives a restart.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	defer func() {
		l.classifyWG.Wait()
		l.machine.ClearPause()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one capture cycle. Exported for the engine's tests; the in-flight
// guard makes concurrent calls safe by dropping the late one.
func (l *Loop) Tick() {
	if !l.busy.CompareAndSwap(false, true) {
		l.log.Debug("tick skipped, previous tick still in flight")
		return
	}
	defer l.busy.Store(false)

	// No sampling while the system is idle or locked; the session machine
	// is paused through the monitor in that state anyway.
	if l.monitor != nil && !l.monitor.IsActive() {
		return
	}

	l.capture()

	if err := l.machine.CheckTarget(l.ctx); err != nil {
		l.log.Error("target check failed", "error", err)
	}
}

func (l *Loop) capture() {
	if l.permissionDenied.Load() {
		return
	}

	sample, err := l.windows.Sample()
	switch {
	case errors.Is(err, platform.ErrNoActiveWindow):
		return
	case errors.Is(err, platform.ErrPermissionDenied):
		// Surface once, then stop sampling until permission is confirmed
		// instead of burning a denied OS call every tick.
		l.permissionDenied.Store(true)
		l.log.Warn("window access denied, sampling suspended")
		l.notifier.Notify(Notification{
			Kind:    NotifyPermission,
			Message: "Screen recording permission is required to track activity",
		})
		return
	case err != nil:
		l.log.Error("window sample failed", "error", err)
		return
	}

	entry, err := l.store.GetActiveEntry(l.ctx.UserID)
	if err != nil {
		l.log.Error("active entry lookup failed", "error", err)
		return
	}

	activity := store.Activity{
		UserID:         l.ctx.UserID,
		Timestamp:      l.now(),
		Platform:       sample.Platform,
		Title:          sample.Title,
		OwnerName:      sample.OwnerName,
		OwnerPath:      sample.OwnerPath,
		OwnerProcessID: sample.OwnerProcessID,
		Duration:       int64(l.tick.Seconds()),
	}
	if sample.OwnerBundleID != "" {
		activity.OwnerBundleID = &sample.OwnerBundleID
	}
	if sample.URL != "" {
		activity.URL = &sample.URL
	}
	if entry != nil {
		activity.TimeEntryID = &entry.ID
		activity.IsFocusMode = entry.IsFocusMode
	}

	rule, err := l.matcher.FindMatchingRule(l.ctx.UserID, activity)
	if err != nil {
		l.log.Error("rule match failed", "error", err)
	} else if rule != nil {
		rating := rule.Rating
		activity.Rating = &rating
	}

	merged, err := l.store.UpsertActivity(activity, l.mergeWindow)
	if err != nil {
		l.log.Error("activity upsert failed", "error", err)
		return
	}

	if entry != nil && entry.IsFocusMode &&
		merged.Rating != nil && *merged.Rating == store.RatingDistracting &&
		!IsWhitelisted(entry, merged.OwnerName) &&
		l.lastDistraction.Swap(merged.ID) != merged.ID {
		l.notifier.Notify(Notification{
			Kind:     NotifyDistracted,
			Message:  "Distracting activity during a focus session: " + merged.OwnerName,
			Entry:    entry,
			Activity: merged,
			Choices:  DistractedChoices,
		})
	}

	if merged.CategoryID == nil {
		l.classifyAsync(*merged)
	}
}

// classifyAsync runs the waterfall off the tick path so a slow metadata
// lookup cannot delay sampling.
func (l *Loop) classifyAsync(a store.Activity) {
	l.classifyWG.Add(1)
	go func() {
		defer l.classifyWG.Done()
		assignment, err := l.classifier.Classify(l.ctx.UserID, a)
		if err != nil {
			l.log.Error("classification failed", "activity_id", a.ID, "error", err)
			return
		}
		if assignment == nil {
			return
		}
		if err := l.store.SetActivityCategory(a.ID, assignment.CategoryID); err != nil {
			l.log.Error("persist category failed", "activity_id", a.ID, "error", err)
		}
	}()
}

// ConfirmPermission re-enables sampling after the user granted access.
func (l *Loop) ConfirmPermission() {
	l.permissionDenied.Store(false)
}

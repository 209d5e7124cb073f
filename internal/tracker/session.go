package tracker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/store"
)

var (
	// ErrSessionActive means a session start was rejected because one is
	// already running. The running entry is never silently replaced.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoActiveSession means there is nothing to stop or pause.
	ErrNoActiveSession = errors.New("no active session")
	// ErrQueueUnsupported: queueing a scheduled session behind a running one
	// is a recognized policy without an implementation yet.
	ErrQueueUnsupported = errors.New("scheduled session queueing is not supported")
	// ErrTrackingRunning means StartTracking was called twice.
	ErrTrackingRunning = errors.New("tracking is already running")
)

// ConflictPolicy decides what happens when a scheduled session fires while
// another session is running.
type ConflictPolicy int

const (
	// ConflictStopCurrent stops the running session and starts the
	// scheduled one after notifying the user. The default.
	ConflictStopCurrent ConflictPolicy = iota
	// ConflictQueue would run the scheduled session afterwards. No queue is
	// persisted yet, so selecting it returns ErrQueueUnsupported.
	ConflictQueue
	// ConflictSkip drops the scheduled trigger.
	ConflictSkip
)

// Warning escalation thresholds past the target duration.
var warningStages = []struct {
	after time.Duration
	stage int
}{
	{30 * time.Minute, 3},
	{10 * time.Minute, 2},
	{2 * time.Minute, 1},
}

// PausedSession is the in-memory pause marker. At most one exists per
// machine; it never outlives the process.
type PausedSession struct {
	TimeEntryID       int64
	PausedAt          time.Time
	OriginalStartTime time.Time
	IsManualPause     bool
}

// StartOptions configures a new session.
type StartOptions struct {
	IsFocusMode    bool
	TargetDuration *int64 // minutes
	AutoStop       bool
	Whitelisted    string
	BoardID        *int64
	ItemID         *int64
}

// SessionMachine owns the TimeEntry lifecycle: start, pause, resume with
// duration correction, target auto-switch, and scheduled-session execution.
type SessionMachine struct {
	store    *store.Store
	log      *logger.Logger
	notifier Notifier

	defaultFocusMin int64
	defaultBreakMin int64
	now             func() time.Time

	mu     sync.Mutex
	paused *PausedSession
	// Break length requested by the schedule that started the current
	// session, consumed by the next auto-switch.
	scheduledBreakMin *int64
}

func NewSessionMachine(s *store.Store, log *logger.Logger, notifier Notifier, defaultFocusMin, defaultBreakMin int64) *SessionMachine {
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &SessionMachine{
		store:           s,
		log:             log,
		notifier:        notifier,
		defaultFocusMin: defaultFocusMin,
		defaultBreakMin: defaultBreakMin,
		now:             time.Now,
	}
}

// Start creates a new session. Starting while one is active is a caller
// error; the existing entry is left untouched.
func (sm *SessionMachine) Start(ctx SessionContext, opts StartOptions) (*store.TimeEntry, error) {
	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w (entry %d)", ErrSessionActive, active.ID)
	}

	entry, err := sm.store.StartEntry(store.TimeEntry{
		UserID:          ctx.UserID,
		StartTime:       sm.now(),
		IsFocusMode:     opts.IsFocusMode,
		TargetDuration:  opts.TargetDuration,
		AutoStopEnabled: opts.AutoStop,
		Whitelisted:     opts.Whitelisted,
		BoardID:         opts.BoardID,
		ItemID:          opts.ItemID,
	})
	if err != nil {
		return nil, err
	}
	sm.log.Info("session started", "entry_id", entry.ID, "focus", entry.IsFocusMode)
	return entry, nil
}

// Stop closes the active session and clears any pause state for it.
func (sm *SessionMachine) Stop(ctx SessionContext) (*store.TimeEntry, error) {
	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveSession
	}

	sm.mu.Lock()
	if sm.paused != nil && sm.paused.TimeEntryID == active.ID {
		sm.paused = nil
	}
	sm.scheduledBreakMin = nil
	sm.mu.Unlock()

	entry, err := sm.store.StopEntry(active.ID, sm.now())
	if err != nil {
		return nil, err
	}
	sm.log.Info("session stopped", "entry_id", entry.ID, "duration", derefInt64(entry.Duration))
	return entry, nil
}

// Pause records a pause marker for the active session. The TimeEntry row is
// not touched until resume. Pausing an already-paused session is idempotent
// and returns the existing marker.
func (sm *SessionMachine) Pause(ctx SessionContext, manual bool) (*PausedSession, error) {
	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveSession
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.paused != nil {
		if sm.paused.TimeEntryID == active.ID {
			return sm.paused, nil
		}
		// Stale marker from an entry that no longer runs.
		sm.paused = nil
	}
	sm.paused = &PausedSession{
		TimeEntryID:       active.ID,
		PausedAt:          sm.now(),
		OriginalStartTime: active.StartTime,
		IsManualPause:     manual,
	}
	sm.log.Info("session paused", "entry_id", active.ID, "manual", manual)
	return sm.paused, nil
}

// Resume shifts the entry's start time forward by the paused duration so
// elapsed-time accounting excludes the pause. Auto resume never clears a
// manual pause; only the explicit (manual) call does. A pause marker whose
// entry is no longer active is silently dropped. Pause state is cleared even
// when persistence fails, so a write error cannot leave the machine stuck
// paused.
func (sm *SessionMachine) Resume(ctx SessionContext, manual bool) error {
	sm.mu.Lock()
	paused := sm.paused
	sm.mu.Unlock()
	if paused == nil {
		return nil
	}
	if paused.IsManualPause && !manual {
		return nil
	}

	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return err
	}
	if active == nil || active.ID != paused.TimeEntryID {
		// The session changed while paused; drop the stale marker.
		sm.clearPause()
		return nil
	}

	pausedDuration := sm.now().Sub(paused.PausedAt)
	newStart := paused.OriginalStartTime.Add(pausedDuration)
	err = sm.store.ShiftEntryStart(active.ID, newStart)
	sm.clearPause()
	if err != nil {
		sm.log.Error("resume persist failed, pause state cleared", "entry_id", active.ID, "error", err)
		return err
	}
	sm.log.Info("session resumed", "entry_id", active.ID, "paused_seconds", int64(pausedDuration.Seconds()))
	return nil
}

// Paused returns the current pause marker, or nil.
func (sm *SessionMachine) Paused() *PausedSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.paused == nil {
		return nil
	}
	p := *sm.paused
	return &p
}

// ClearPause drops any pause marker. Called when the tracking loop stops so
// stale state cannot survive a restart.
func (sm *SessionMachine) ClearPause() {
	sm.clearPause()
}

func (sm *SessionMachine) clearPause() {
	sm.mu.Lock()
	sm.paused = nil
	sm.mu.Unlock()
}

// CheckTarget runs once per tracking tick. When the active session has run
// past its target it either auto-switches to the opposite mode or walks the
// warning escalation ladder. Paused sessions are left alone.
func (sm *SessionMachine) CheckTarget(ctx SessionContext) error {
	sm.mu.Lock()
	isPaused := sm.paused != nil
	sm.mu.Unlock()
	if isPaused {
		return nil
	}

	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return err
	}
	if active == nil || active.TargetDuration == nil {
		return nil
	}

	now := sm.now()
	elapsed := now.Sub(active.StartTime)
	target := time.Duration(*active.TargetDuration) * time.Minute
	if elapsed <= target {
		return nil
	}

	if active.AutoStopEnabled {
		_, err := sm.autoSwitch(ctx, active, now)
		return err
	}
	return sm.escalateWarning(active, elapsed-target)
}

// autoSwitch closes the entry and immediately starts one of the opposite
// mode, carrying auto-stop over and inheriting the new mode's most recent
// target duration (falling back to the defaults).
func (sm *SessionMachine) autoSwitch(ctx SessionContext, active *store.TimeEntry, now time.Time) (*store.TimeEntry, error) {
	closed, err := sm.store.StopEntry(active.ID, now)
	if err != nil {
		return nil, fmt.Errorf("close entry for switch: %w", err)
	}

	nextMode := !active.IsFocusMode
	target := sm.nextTarget(ctx.UserID, nextMode)

	next, err := sm.store.StartEntry(store.TimeEntry{
		UserID:          ctx.UserID,
		StartTime:       now,
		IsFocusMode:     nextMode,
		TargetDuration:  &target,
		AutoStopEnabled: active.AutoStopEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("start switched entry: %w", err)
	}

	mode := "break"
	if nextMode {
		mode = "focus"
	}
	sm.log.Info("session auto-switched", "closed_id", closed.ID, "next_id", next.ID, "mode", mode)
	sm.notifier.Notify(Notification{
		Kind:    NotifyAutoSwitch,
		Message: fmt.Sprintf("Target reached, switched to %s (%d min)", mode, target),
		Entry:   next,
	})
	return next, nil
}

// nextTarget picks the target for a switched session: a schedule-provided
// break length first, then the last used target of that mode, then defaults.
func (sm *SessionMachine) nextTarget(userID string, focusMode bool) int64 {
	if !focusMode {
		sm.mu.Lock()
		hint := sm.scheduledBreakMin
		sm.scheduledBreakMin = nil
		sm.mu.Unlock()
		if hint != nil {
			return *hint
		}
	}

	last, err := sm.store.LastTargetDuration(userID, focusMode)
	if err != nil {
		sm.log.Warn("last target lookup failed", "error", err)
	}
	if last != nil {
		return *last
	}
	if focusMode {
		return sm.defaultFocusMin
	}
	return sm.defaultBreakMin
}

func (sm *SessionMachine) escalateWarning(active *store.TimeEntry, over time.Duration) error {
	for _, w := range warningStages {
		if over >= w.after && active.NotificationStage < w.stage {
			if err := sm.store.SetNotificationStage(active.ID, w.stage); err != nil {
				return err
			}
			sm.notifier.Notify(Notification{
				Kind:    NotifyTargetWarning,
				Message: fmt.Sprintf("Session is %d minutes past its target", int(over.Minutes())),
				Stage:   w.stage,
				Entry:   active,
			})
			return nil
		}
	}
	return nil
}

// ExecuteScheduled materializes a TimeEntry from a scheduled session. When a
// session is already running the conflict policy decides; the default stops
// the running session after notifying the user.
func (sm *SessionMachine) ExecuteScheduled(ctx SessionContext, sc *store.ScheduledSession, policy ConflictPolicy) (*store.TimeEntry, error) {
	active, err := sm.store.GetActiveEntry(ctx.UserID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		switch policy {
		case ConflictQueue:
			return nil, ErrQueueUnsupported
		case ConflictSkip:
			sm.log.Info("scheduled session skipped, another session active",
				"schedule_id", sc.ID, "entry_id", active.ID)
			return nil, nil
		default:
			sm.notifier.Notify(Notification{
				Kind:    NotifyScheduleChange,
				Message: fmt.Sprintf("Stopping current session for scheduled %q", sc.Name),
				Entry:   active,
			})
			if _, err := sm.Stop(ctx); err != nil {
				return nil, fmt.Errorf("stop for scheduled session: %w", err)
			}
		}
	}

	target := sc.FocusDuration
	entry, err := sm.Start(ctx, StartOptions{
		IsFocusMode:    true,
		TargetDuration: &target,
		AutoStop:       true,
	})
	if err != nil {
		return nil, err
	}

	breakMin := sc.BreakDuration
	sm.mu.Lock()
	sm.scheduledBreakMin = &breakMin
	sm.mu.Unlock()

	sm.notifier.Notify(Notification{
		Kind:    NotifyScheduleStart,
		Message: fmt.Sprintf("Scheduled session %q started (%d min focus)", sc.Name, sc.FocusDuration),
		Entry:   entry,
	})
	return entry, nil
}

// IsWhitelisted reports whether an activity name is on the entry's exception
// list.
func IsWhitelisted(entry *store.TimeEntry, name string) bool {
	if entry == nil || entry.Whitelisted == "" {
		return false
	}
	for _, w := range strings.Split(entry.Whitelisted, ",") {
		if strings.EqualFold(strings.TrimSpace(w), name) {
			return true
		}
	}
	return false
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

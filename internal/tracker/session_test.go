package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/store"
)

const testUser = "user-1"

var testCtx = SessionContext{UserID: testUser}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testClock is a settable clock for the machine, loop, and scheduler.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureNotifier records notifications for assertions.
type captureNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *captureNotifier) Notify(notification Notification) {
	n.mu.Lock()
	n.notes = append(n.notes, notification)
	n.mu.Unlock()
}

func (n *captureNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notes...)
}

func (n *captureNotifier) byKind(kind string) []Notification {
	var out []Notification
	for _, note := range n.all() {
		if note.Kind == kind {
			out = append(out, note)
		}
	}
	return out
}

func newTestMachine(t *testing.T) (*SessionMachine, *store.Store, *testClock, *captureNotifier) {
	t.Helper()
	s := newTestStore(t)
	clock := newTestClock()
	notifier := &captureNotifier{}
	sm := NewSessionMachine(s, logger.NewNop(), notifier, 25, 15)
	sm.now = clock.Now
	return sm, s, clock, notifier
}

func i64(v int64) *int64 { return &v }

// ============================================================
// Start / stop
// ============================================================

func TestStartRejectsSecondSession(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	_, err := sm.Start(testCtx, StartOptions{IsFocusMode: false})
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStopWithoutSession(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Stop(testCtx); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestStopDerivesDuration(t *testing.T) {
	sm, _, clock, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)

	entry, err := sm.Stop(testCtx)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Duration == nil || *entry.Duration != 600 {
		t.Fatalf("duration = %v, want 600", entry.Duration)
	}
}

// ============================================================
// Pause / resume
// ============================================================

func TestResumeShiftsStartByPausedDuration(t *testing.T) {
	sm, s, clock, _ := newTestMachine(t)
	t0 := clock.Now()

	entry, err := sm.Start(testCtx, StartOptions{IsFocusMode: true})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(300 * time.Second)
	if _, err := sm.Pause(testCtx, false); err != nil {
		t.Fatal(err)
	}

	clock.Advance(600 * time.Second)
	if err := sm.Resume(testCtx, false); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEntry(entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := t0.Add(600 * time.Second)
	if !got.StartTime.Equal(want) {
		t.Fatalf("start time = %v, want %v", got.StartTime, want)
	}
	if sm.Paused() != nil {
		t.Fatal("pause marker not cleared")
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	sm, _, clock, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	first, err := sm.Pause(testCtx, false)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	second, err := sm.Pause(testCtx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !second.PausedAt.Equal(first.PausedAt) || second.IsManualPause {
		t.Fatalf("second pause replaced the marker: %+v", second)
	}
}

func TestManualPauseImmuneToAutoResume(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Pause(testCtx, true); err != nil {
		t.Fatal(err)
	}

	// System coming back must not end a user-requested pause.
	if err := sm.Resume(testCtx, false); err != nil {
		t.Fatal(err)
	}
	if sm.Paused() == nil {
		t.Fatal("auto resume cleared a manual pause")
	}

	if err := sm.Resume(testCtx, true); err != nil {
		t.Fatal(err)
	}
	if sm.Paused() != nil {
		t.Fatal("manual resume did not clear the pause")
	}
}

func TestResumeDropsStaleMarker(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Pause(testCtx, false); err != nil {
		t.Fatal(err)
	}

	// Stop clears the marker along with the session.
	if _, err := sm.Stop(testCtx); err != nil {
		t.Fatal(err)
	}
	if sm.Paused() != nil {
		t.Fatal("stop left a pause marker behind")
	}
	if err := sm.Resume(testCtx, true); err != nil {
		t.Fatal(err)
	}
}

func TestPauseWithoutSession(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Pause(testCtx, true); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	// Resume with nothing paused is a no-op.
	if err := sm.Resume(testCtx, true); err != nil {
		t.Fatal(err)
	}
}

// ============================================================
// Target check
// ============================================================

func TestCheckTargetAutoSwitches(t *testing.T) {
	sm, s, clock, notifier := newTestMachine(t)

	first, err := sm.Start(testCtx, StartOptions{IsFocusMode: true, TargetDuration: i64(25), AutoStop: true})
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(26 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	closed, err := s.GetEntry(first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.EndTime == nil {
		t.Fatal("focus entry not closed")
	}

	active, err := s.GetActiveEntry(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.IsFocusMode {
		t.Fatalf("active after switch = %+v, want break", active)
	}
	if active.TargetDuration == nil || *active.TargetDuration != 15 {
		t.Fatalf("break target = %v, want default 15", active.TargetDuration)
	}
	if !active.AutoStopEnabled {
		t.Fatal("auto-stop not carried over")
	}

	if len(notifier.byKind(NotifyAutoSwitch)) != 1 {
		t.Fatalf("notifications = %+v", notifier.all())
	}
}

func TestAutoSwitchInheritsLastTarget(t *testing.T) {
	sm, s, clock, _ := newTestMachine(t)

	// A finished 10 minute break establishes the break target to inherit.
	prior, err := sm.Start(testCtx, StartOptions{IsFocusMode: false, TargetDuration: i64(10)})
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := s.StopEntry(prior.ID, clock.Now()); err != nil {
		t.Fatal(err)
	}

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true, TargetDuration: i64(25), AutoStop: true}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(26 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	active, err := s.GetActiveEntry(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if active.TargetDuration == nil || *active.TargetDuration != 10 {
		t.Fatalf("break target = %v, want inherited 10", active.TargetDuration)
	}
}

func TestCheckTargetSkippedWhilePaused(t *testing.T) {
	sm, s, clock, _ := newTestMachine(t)

	entry, err := sm.Start(testCtx, StartOptions{IsFocusMode: true, TargetDuration: i64(25), AutoStop: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Pause(testCtx, true); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Hour)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	active, err := s.GetActiveEntry(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != entry.ID {
		t.Fatalf("paused session was switched: %+v", active)
	}
}

func TestCheckTargetNoTargetIsNoop(t *testing.T) {
	sm, s, clock, notifier := newTestMachine(t)

	entry, err := sm.Start(testCtx, StartOptions{IsFocusMode: true})
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	active, _ := s.GetActiveEntry(testUser)
	if active == nil || active.ID != entry.ID {
		t.Fatal("open-ended session must not be switched")
	}
	if len(notifier.all()) != 0 {
		t.Fatalf("notifications = %+v", notifier.all())
	}
}

func TestWarningEscalation(t *testing.T) {
	sm, s, clock, notifier := newTestMachine(t)

	entry, err := sm.Start(testCtx, StartOptions{IsFocusMode: true, TargetDuration: i64(25)})
	if err != nil {
		t.Fatal(err)
	}

	// 3 minutes over: stage 1 fires once.
	clock.Advance(28 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}
	warnings := notifier.byKind(NotifyTargetWarning)
	if len(warnings) != 1 || warnings[0].Stage != 1 {
		t.Fatalf("warnings = %+v", warnings)
	}

	// 11 minutes over: stage 2.
	clock.Advance(8 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}
	// 31 minutes over: stage 3.
	clock.Advance(20 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	warnings = notifier.byKind(NotifyTargetWarning)
	if len(warnings) != 3 || warnings[1].Stage != 2 || warnings[2].Stage != 3 {
		t.Fatalf("warnings = %+v", warnings)
	}

	got, err := s.GetEntry(entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.NotificationStage != 3 {
		t.Fatalf("stage = %d, want 3", got.NotificationStage)
	}
}

// ============================================================
// Scheduled execution
// ============================================================

func testSchedule(focus, brk int64) *store.ScheduledSession {
	return &store.ScheduledSession{
		ID:            1,
		UserID:        testUser,
		Name:          "Deep work",
		FocusDuration: focus,
		BreakDuration: brk,
	}
}

func TestExecuteScheduledStartsFocus(t *testing.T) {
	sm, _, _, notifier := newTestMachine(t)

	entry, err := sm.ExecuteScheduled(testCtx, testSchedule(50, 10), ConflictStopCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || !entry.IsFocusMode || *entry.TargetDuration != 50 || !entry.AutoStopEnabled {
		t.Fatalf("entry = %+v", entry)
	}
	if len(notifier.byKind(NotifyScheduleStart)) != 1 {
		t.Fatalf("notifications = %+v", notifier.all())
	}
}

func TestExecuteScheduledBreakInheritsScheduleDuration(t *testing.T) {
	sm, s, clock, _ := newTestMachine(t)

	if _, err := sm.ExecuteScheduled(testCtx, testSchedule(50, 10), ConflictStopCurrent); err != nil {
		t.Fatal(err)
	}
	clock.Advance(51 * time.Minute)
	if err := sm.CheckTarget(testCtx); err != nil {
		t.Fatal(err)
	}

	active, err := s.GetActiveEntry(testUser)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.IsFocusMode {
		t.Fatalf("active = %+v, want break", active)
	}
	if active.TargetDuration == nil || *active.TargetDuration != 10 {
		t.Fatalf("break target = %v, want schedule's 10", active.TargetDuration)
	}
}

func TestExecuteScheduledConflictStopCurrent(t *testing.T) {
	sm, s, _, notifier := newTestMachine(t)

	running, err := sm.Start(testCtx, StartOptions{IsFocusMode: true})
	if err != nil {
		t.Fatal(err)
	}

	entry, err := sm.ExecuteScheduled(testCtx, testSchedule(50, 10), ConflictStopCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.ID == running.ID {
		t.Fatalf("entry = %+v", entry)
	}

	closed, err := s.GetEntry(running.ID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.EndTime == nil {
		t.Fatal("running session not stopped")
	}
	if len(notifier.byKind(NotifyScheduleChange)) != 1 {
		t.Fatalf("notifications = %+v", notifier.all())
	}
}

func TestExecuteScheduledConflictQueue(t *testing.T) {
	sm, _, _, _ := newTestMachine(t)

	if _, err := sm.Start(testCtx, StartOptions{IsFocusMode: true}); err != nil {
		t.Fatal(err)
	}
	_, err := sm.ExecuteScheduled(testCtx, testSchedule(50, 10), ConflictQueue)
	if !errors.Is(err, ErrQueueUnsupported) {
		t.Fatalf("expected ErrQueueUnsupported, got %v", err)
	}
}

func TestExecuteScheduledConflictSkip(t *testing.T) {
	sm, s, _, _ := newTestMachine(t)

	running, err := sm.Start(testCtx, StartOptions{IsFocusMode: true})
	if err != nil {
		t.Fatal(err)
	}

	entry, err := sm.ExecuteScheduled(testCtx, testSchedule(50, 10), ConflictSkip)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("skip policy started %+v", entry)
	}
	active, _ := s.GetActiveEntry(testUser)
	if active == nil || active.ID != running.ID {
		t.Fatal("skip policy disturbed the running session")
	}
}

// ============================================================
// Whitelist
// ============================================================

func TestIsWhitelisted(t *testing.T) {
	entry := &store.TimeEntry{Whitelisted: "Slack, Spotify"}

	if !IsWhitelisted(entry, "Slack") {
		t.Fatal("exact name should match")
	}
	if !IsWhitelisted(entry, "spotify") {
		t.Fatal("match is case-insensitive")
	}
	if IsWhitelisted(entry, "Browser") {
		t.Fatal("unlisted name matched")
	}
	if IsWhitelisted(nil, "Slack") {
		t.Fatal("nil entry matched")
	}
	if IsWhitelisted(&store.TimeEntry{}, "Slack") {
		t.Fatal("empty whitelist matched")
	}
}

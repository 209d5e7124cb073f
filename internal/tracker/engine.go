// Package tracker is the capture, classification, and session engine: it
// orchestrates window sampling, rule rating, activity merging, the category
// waterfall, the system-state monitor, and the focus/break session machine.
package tracker

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sadopc/lightbeam/internal/classify"
	"github.com/sadopc/lightbeam/internal/config"
	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/platform"
	"github.com/sadopc/lightbeam/internal/rules"
	"github.com/sadopc/lightbeam/internal/store"
)

// SessionContext identifies whose data an engine call operates on. It is
// passed explicitly everywhere; the engine keeps no ambient current-user
// state.
type SessionContext struct {
	UserID string
}

// Engine wires the engine components together and exposes the calls the UI
// layer consumes.
type Engine struct {
	cfg      config.Config
	store    *store.Store
	log      *logger.Logger
	notifier Notifier

	monitor    *Monitor
	machine    *SessionMachine
	matcher    *rules.Matcher
	classifier *classify.Classifier
	loop       *Loop
	scheduler  *Scheduler
	ctx        SessionContext

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// Options are the engine's injectable collaborators. Zero values fall back
// to platform no-ops and the log notifier.
type Options struct {
	Windows  platform.WindowProvider
	Signals  platform.PowerSignals
	Metadata platform.MetadataResolver
	Notifier Notifier
	Policy   ConflictPolicy
}

func NewEngine(cfg config.Config, s *store.Store, log *logger.Logger, ctx SessionContext, opts Options) *Engine {
	if opts.Windows == nil {
		opts.Windows = platform.UnsupportedProvider{}
	}
	if opts.Signals == nil {
		opts.Signals = platform.NoopSignals{}
	}
	if opts.Metadata == nil {
		opts.Metadata = platform.NoopResolver{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(log)
	}

	e := &Engine{
		cfg:      cfg,
		store:    s,
		log:      log,
		notifier: opts.Notifier,
		ctx:      ctx,
	}
	e.monitor = NewMonitor(opts.Signals, log, cfg.IdleThreshold, cfg.IdlePollInterval)
	e.machine = NewSessionMachine(s, log, opts.Notifier,
		int64(cfg.DefaultFocusMinutes), int64(cfg.DefaultBreakMinutes))
	e.matcher = rules.NewMatcher(s)
	e.classifier = classify.NewClassifier(s, opts.Metadata, log)
	e.loop = NewLoop(s, opts.Windows, e.matcher, e.classifier, e.machine, e.monitor,
		opts.Notifier, log, ctx, cfg.TickInterval, cfg.MergeWindow)
	e.scheduler = NewScheduler(s, e.machine, log, ctx, cfg.SchedulerInterval, opts.Policy)

	e.monitor.Subscribe(e.onSystemActive)
	return e
}

// onSystemActive reacts to the monitor's single active signal: pause the
// session when the system goes inactive (per the idle_action setting) and
// resume a non-manual pause when it comes back.
func (e *Engine) onSystemActive(active bool) {
	if active {
		if err := e.machine.Resume(e.ctx, false); err != nil {
			e.log.Error("auto resume failed", "error", err)
		}
		return
	}
	action, err := e.store.GetSetting("idle_action")
	if err == nil && strings.TrimSpace(action) != "pause" {
		return
	}
	if _, err := e.machine.Pause(e.ctx, false); err != nil && err != ErrNoActiveSession {
		e.log.Error("auto pause failed", "error", err)
	}
}

// StartTracking launches the tracking loop, the scheduler, and the system
// monitor. It is not reentrant; call StopTracking first.
func (e *Engine) StartTracking(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrTrackingRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan error, 1)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return e.loop.Run(gctx) })
	g.Go(func() error { return e.scheduler.Run(gctx) })
	g.Go(func() error { return e.monitor.Run(gctx) })

	done := e.done
	go func() {
		done <- g.Wait()
	}()

	e.log.Info("tracking started", "tick", e.cfg.TickInterval.String())
	return nil
}

// StopTracking cancels the timers, waits for them to drain, and clears any
// in-memory pause state.
func (e *Engine) StopTracking() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.machine.ClearPause()
	e.log.Info("tracking stopped")
}

// --- Session calls ---

func (e *Engine) StartSession(opts StartOptions) (*store.TimeEntry, error) {
	return e.machine.Start(e.ctx, opts)
}

func (e *Engine) StopSession() (*store.TimeEntry, error) {
	return e.machine.Stop(e.ctx)
}

// PauseActiveSession is the automatic (system-triggered) pause.
func (e *Engine) PauseActiveSession() (*PausedSession, error) {
	return e.machine.Pause(e.ctx, false)
}

// ResumeActiveSession resumes an automatic pause; it will not clear a manual
// one.
func (e *Engine) ResumeActiveSession() error {
	return e.machine.Resume(e.ctx, false)
}

// ManualPauseSession pauses via an explicit user action; only
// ManualResumeSession clears it.
func (e *Engine) ManualPauseSession() (*PausedSession, error) {
	return e.machine.Pause(e.ctx, true)
}

func (e *Engine) ManualResumeSession() error {
	return e.machine.Resume(e.ctx, true)
}

func (e *Engine) GetPausedSession() *PausedSession {
	return e.machine.Paused()
}

func (e *Engine) ActiveSession() (*store.TimeEntry, error) {
	return e.store.GetActiveEntry(e.ctx.UserID)
}

// ExecuteScheduledSession runs a schedule immediately, using the engine's
// conflict policy.
func (e *Engine) ExecuteScheduledSession(id int64) (*store.TimeEntry, error) {
	sc, err := e.store.GetSchedule(id)
	if err != nil {
		return nil, err
	}
	entry, err := e.machine.ExecuteScheduled(e.ctx, sc, e.scheduler.policy)
	if err != nil {
		return nil, err
	}
	if err := e.store.MarkScheduleRun(id, e.machine.now(), nextRun(sc, e.machine.now())); err != nil {
		e.log.Error("mark schedule run failed", "schedule_id", id, "error", err)
	}
	return entry, nil
}

// --- Classification and rules ---

func (e *Engine) Classify(a store.Activity) (*classify.Assignment, error) {
	return e.classifier.Classify(e.ctx.UserID, a)
}

func (e *Engine) FindMatchingRule(a store.Activity) (*store.Rule, error) {
	return e.matcher.FindMatchingRule(e.ctx.UserID, a)
}

// RateActivity sets the rating on an activity and persists a rule suggested
// from it, so similar activities are rated automatically next time.
func (e *Engine) RateActivity(activityID int64, rating int) (*store.Rule, error) {
	a, err := e.store.GetActivity(activityID)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetActivityRating(activityID, rating); err != nil {
		return nil, err
	}
	return e.store.UpsertRule(rules.SuggestFromActivity(*a, rating))
}

// WhitelistActivity exempts an activity's app from distraction warnings for
// the active session.
func (e *Engine) WhitelistActivity(name string) error {
	entry, err := e.store.GetActiveEntry(e.ctx.UserID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrNoActiveSession
	}
	if IsWhitelisted(entry, name) {
		return nil
	}
	whitelisted := name
	if entry.Whitelisted != "" {
		whitelisted = entry.Whitelisted + "," + name
	}
	return e.store.SetWhitelisted(entry.ID, whitelisted)
}

// UncategorizedGroups aggregates unclassified activities by domain or app
// name for the bulk-assignment flow.
func (e *Engine) UncategorizedGroups() ([]store.UncategorizedGroup, error) {
	activities, err := e.store.ListActivities(e.ctx.UserID, store.ActivityFilter{Uncategorized: true})
	if err != nil {
		return nil, err
	}

	type agg struct {
		group store.UncategorizedGroup
		order int
	}
	byKey := make(map[string]*agg)
	var order []string
	for _, a := range activities {
		key := a.OwnerName
		isDomain := false
		if a.URL != nil {
			if d := rules.ExtractDomain(*a.URL); d != "" {
				key, isDomain = d, true
			}
		}
		g, ok := byKey[key]
		if !ok {
			g = &agg{group: store.UncategorizedGroup{Key: key, IsDomain: isDomain}}
			byKey[key] = g
			order = append(order, key)
		}
		g.group.Count++
		g.group.TotalSeconds += a.Duration
	}

	groups := make([]store.UncategorizedGroup, 0, len(byKey))
	for _, key := range order {
		groups = append(groups, byKey[key].group)
	}
	return groups, nil
}

// AssignCategoryToGroup categorizes every uncategorized activity in a group
// returned by UncategorizedGroups.
func (e *Engine) AssignCategoryToGroup(group store.UncategorizedGroup, categoryID int64) (int, error) {
	activities, err := e.store.ListActivities(e.ctx.UserID, store.ActivityFilter{Uncategorized: true})
	if err != nil {
		return 0, err
	}
	var ids []int64
	for _, a := range activities {
		key := a.OwnerName
		if a.URL != nil {
			if d := rules.ExtractDomain(*a.URL); d != "" {
				key = d
			}
		}
		if key == group.Key {
			ids = append(ids, a.ID)
		}
	}
	if err := e.store.AssignCategoryToActivities(ids, categoryID); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ConfirmPermission re-enables window sampling after the user granted
// access.
func (e *Engine) ConfirmPermission() {
	e.loop.ConfirmPermission()
}

// Store exposes the record store for the UI layer's read paths.
func (e *Engine) Store() *store.Store {
	return e.store
}

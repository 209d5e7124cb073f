package tracker

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sadopc/lightbeam/internal/logger"
	"github.com/sadopc/lightbeam/internal/store"
)

// triggerWindow is how far the current time may be from a schedule's start
// time for it to fire.
const triggerWindow = time.Minute

// Scheduler evaluates scheduled sessions on a coarse interval and hands due
// ones to the session machine.
type Scheduler struct {
	store    *store.Store
	machine  *SessionMachine
	log      *logger.Logger
	ctx      SessionContext
	interval time.Duration
	policy   ConflictPolicy
	now      func() time.Time
}

func NewScheduler(s *store.Store, machine *SessionMachine, log *logger.Logger, ctx SessionContext, interval time.Duration, policy ConflictPolicy) *Scheduler {
	return &Scheduler{
		store:    s,
		machine:  machine,
		log:      log,
		ctx:      ctx,
		interval: interval,
		policy:   policy,
		now:      time.Now,
	}
}

func (sc *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sc.Evaluate()
		}
	}
}

// Evaluate fires every schedule that is due right now.
func (sc *Scheduler) Evaluate() {
	schedules, err := sc.store.ListActiveSchedules(sc.ctx.UserID)
	if err != nil {
		sc.log.Error("list schedules failed", "error", err)
		return
	}

	now := sc.now()
	for i := range schedules {
		s := &schedules[i]
		if !scheduleDue(s, now) {
			continue
		}
		sc.log.Info("scheduled session due", "schedule_id", s.ID, "name", s.Name)

		if _, err := sc.machine.ExecuteScheduled(sc.ctx, s, sc.policy); err != nil {
			sc.log.Error("execute scheduled session failed", "schedule_id", s.ID, "error", err)
			continue
		}
		if err := sc.store.MarkScheduleRun(s.ID, now, nextRun(s, now)); err != nil {
			sc.log.Error("mark schedule run failed", "schedule_id", s.ID, "error", err)
		}
	}
}

// scheduleDue reports whether the schedule should fire: auto-start enabled,
// today is one of its weekdays, the current time is within the trigger
// window of its start time, and it has not already run today.
func scheduleDue(s *store.ScheduledSession, now time.Time) bool {
	if !s.AutoStart {
		return false
	}
	if !onWeekday(s.DaysOfWeek, now.Weekday()) {
		return false
	}
	start, ok := startToday(s.StartTime, now)
	if !ok {
		return false
	}
	diff := now.Sub(start)
	if diff < -triggerWindow || diff > triggerWindow {
		return false
	}
	if s.LastRun != nil {
		last := s.LastRun.Local()
		if last.Year() == now.Year() && last.YearDay() == now.YearDay() {
			return false
		}
	}
	return true
}

// nextRun finds the next weekday occurrence of the schedule after now.
func nextRun(s *store.ScheduledSession, now time.Time) time.Time {
	start, ok := startToday(s.StartTime, now)
	if !ok {
		return now
	}
	for d := 1; d <= 7; d++ {
		candidate := start.AddDate(0, 0, d)
		if onWeekday(s.DaysOfWeek, candidate.Weekday()) {
			return candidate
		}
	}
	return start.AddDate(0, 0, 7)
}

// startToday resolves an HH:MM string against now's date in local time.
func startToday(hhmm string, now time.Time) (time.Time, bool) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()), true
}

// onWeekday checks a comma-joined weekday list ("1,3,5", 0 = Sunday).
func onWeekday(days string, day time.Weekday) bool {
	for _, d := range strings.Split(days, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			continue
		}
		if time.Weekday(n) == day {
			return true
		}
	}
	return false
}

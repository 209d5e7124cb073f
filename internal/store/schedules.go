package store

import (
	"database/sql"
	"fmt"
	"time"
)

const scheduleCols = `id, user_id, name, days_of_week, start_time, focus_duration, break_duration,
	cycles, auto_start, active, last_run, next_run, created_at`

func (s *Store) CreateSchedule(sc ScheduledSession) (*ScheduledSession, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO scheduled_sessions (user_id, name, days_of_week, start_time, focus_duration, break_duration, cycles, auto_start, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.UserID, sc.Name, sc.DaysOfWeek, sc.StartTime, sc.FocusDuration, sc.BreakDuration,
		sc.Cycles, boolToInt(sc.AutoStart), boolToInt(sc.Active), now,
	)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetSchedule(id)
}

func (s *Store) GetSchedule(id int64) (*ScheduledSession, error) {
	row := s.db.QueryRow(`SELECT `+scheduleCols+` FROM scheduled_sessions WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return sc, nil
}

func (s *Store) ListActiveSchedules(userID string) ([]ScheduledSession, error) {
	rows, err := s.db.Query(
		`SELECT `+scheduleCols+` FROM scheduled_sessions WHERE user_id = ? AND active = 1 ORDER BY start_time`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var schedules []ScheduledSession
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sc)
	}
	return schedules, rows.Err()
}

// MarkScheduleRun records a trigger, so the same schedule does not fire twice
// in one day.
func (s *Store) MarkScheduleRun(id int64, ranAt, nextRun time.Time) error {
	_, err := s.db.Exec(
		`UPDATE scheduled_sessions SET last_run = ?, next_run = ? WHERE id = ?`,
		ranAt.UTC().Format(time.RFC3339), nextRun.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark schedule %d run: %w", id, err)
	}
	return nil
}

func (s *Store) SetScheduleActive(id int64, active bool) error {
	_, err := s.db.Exec(`UPDATE scheduled_sessions SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set schedule %d active: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteSchedule(id int64) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*ScheduledSession, error) {
	sc := &ScheduledSession{}
	var autoStart, active int
	var lastRun, nextRun sql.NullString
	var createdAt string
	err := row.Scan(&sc.ID, &sc.UserID, &sc.Name, &sc.DaysOfWeek, &sc.StartTime,
		&sc.FocusDuration, &sc.BreakDuration, &sc.Cycles, &autoStart, &active,
		&lastRun, &nextRun, &createdAt)
	if err != nil {
		return nil, err
	}
	sc.AutoStart = autoStart == 1
	sc.Active = active == 1
	if sc.LastRun, err = parseNullTime(lastRun); err != nil {
		return nil, err
	}
	if sc.NextRun, err = parseNullTime(nextRun); err != nil {
		return nil, err
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return sc, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

const entryCols = `id, user_id, start_time, end_time, duration, is_focus_mode, target_duration,
	auto_stop_enabled, notification_stage, whitelisted, board_id, item_id, created_at`

// StartEntry inserts a new session row. The caller supplies StartTime; the
// at-most-one-active invariant is enforced by the session machine, not here.
func (s *Store) StartEntry(e TimeEntry) (*TimeEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO time_entries (user_id, start_time, is_focus_mode, target_duration, auto_stop_enabled, whitelisted, board_id, item_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.StartTime.UTC().Format(time.RFC3339), boolToInt(e.IsFocusMode),
		e.TargetDuration, boolToInt(e.AutoStopEnabled), e.Whitelisted, e.BoardID, e.ItemID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("start entry: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetEntry(id)
}

// StopEntry closes the entry at the given instant and derives its duration
// from the (possibly shifted) start time.
func (s *Store) StopEntry(id int64, at time.Time) (*TimeEntry, error) {
	e, err := s.GetEntry(id)
	if err != nil {
		return nil, err
	}
	duration := int64(at.Sub(e.StartTime).Seconds())
	if duration < 0 {
		duration = 0
	}
	_, err = s.db.Exec(
		`UPDATE time_entries SET end_time = ?, duration = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), duration, id,
	)
	if err != nil {
		return nil, fmt.Errorf("stop entry %d: %w", id, err)
	}
	return s.GetEntry(id)
}

func (s *Store) GetEntry(id int64) (*TimeEntry, error) {
	row := s.db.QueryRow(`SELECT `+entryCols+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

// GetActiveEntry returns the user's open entry, or nil when there is none.
func (s *Store) GetActiveEntry(userID string) (*TimeEntry, error) {
	row := s.db.QueryRow(
		`SELECT `+entryCols+` FROM time_entries WHERE user_id = ? AND end_time IS NULL ORDER BY id DESC LIMIT 1`,
		userID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active entry: %w", err)
	}
	return e, nil
}

// ShiftEntryStart moves an entry's start time forward. Used on resume so the
// elapsed window excludes the paused gap.
func (s *Store) ShiftEntryStart(id int64, newStart time.Time) error {
	_, err := s.db.Exec(
		`UPDATE time_entries SET start_time = ? WHERE id = ?`,
		newStart.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("shift entry %d start: %w", id, err)
	}
	return nil
}

// SetNotificationStage records that a warning threshold has fired. Stages
// only move forward so each threshold fires at most once per entry.
func (s *Store) SetNotificationStage(id int64, stage int) error {
	_, err := s.db.Exec(
		`UPDATE time_entries SET notification_stage = ? WHERE id = ? AND notification_stage < ?`,
		stage, id, stage,
	)
	if err != nil {
		return fmt.Errorf("set entry %d notification stage: %w", id, err)
	}
	return nil
}

func (s *Store) SetWhitelisted(id int64, whitelisted string) error {
	_, err := s.db.Exec(`UPDATE time_entries SET whitelisted = ? WHERE id = ?`, whitelisted, id)
	if err != nil {
		return fmt.Errorf("set entry %d whitelist: %w", id, err)
	}
	return nil
}

// LastTargetDuration returns the target duration (minutes) of the most
// recently started closed entry of the given mode, or nil when none exists.
func (s *Store) LastTargetDuration(userID string, isFocusMode bool) (*int64, error) {
	var target sql.NullInt64
	err := s.db.QueryRow(
		`SELECT target_duration FROM time_entries
		 WHERE user_id = ? AND is_focus_mode = ? AND target_duration IS NOT NULL
		 ORDER BY start_time DESC, id DESC LIMIT 1`,
		userID, boolToInt(isFocusMode),
	).Scan(&target)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last target duration: %w", err)
	}
	if !target.Valid {
		return nil, nil
	}
	return &target.Int64, nil
}

// ListEntries returns the user's entries between from and to, newest first.
func (s *Store) ListEntries(userID string, from, to time.Time, limit int) ([]TimeEntry, error) {
	query := `SELECT ` + entryCols + ` FROM time_entries
		 WHERE user_id = ? AND start_time >= ? AND start_time < ?
		 ORDER BY start_time DESC`
	args := []any{userID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)}
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*TimeEntry, error) {
	e := &TimeEntry{}
	var startTime, createdAt string
	var endTime sql.NullString
	var duration, target, boardID, itemID sql.NullInt64
	var isFocus, autoStop int

	err := row.Scan(&e.ID, &e.UserID, &startTime, &endTime, &duration, &isFocus, &target,
		&autoStop, &e.NotificationStage, &e.Whitelisted, &boardID, &itemID, &createdAt)
	if err != nil {
		return nil, err
	}
	if e.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if e.EndTime, err = parseNullTime(endTime); err != nil {
		return nil, err
	}
	if duration.Valid {
		e.Duration = &duration.Int64
	}
	e.IsFocusMode = isFocus == 1
	if target.Valid {
		e.TargetDuration = &target.Int64
	}
	e.AutoStopEnabled = autoStop == 1
	if boardID.Valid {
		e.BoardID = &boardID.Int64
	}
	if itemID.Valid {
		e.ItemID = &itemID.Int64
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return e, nil
}

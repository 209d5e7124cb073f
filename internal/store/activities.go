package store

import (
	"database/sql"
	"fmt"
	"time"
)

const activityCols = `id, user_id, timestamp, platform, title, owner_name, owner_path,
	owner_process_id, owner_bundle_id, url, duration, is_focus_mode, time_entry_id, rating, category_id`

// UpsertActivity merges a sample into an existing activity row when one with
// the same signature exists within the merge window, extending its duration
// and leaving its timestamp untouched. Otherwise a new row is inserted keyed
// by the sample's timestamp. Exactly one write happens per call.
func (s *Store) UpsertActivity(a Activity, window time.Duration) (*Activity, error) {
	cutoff := a.Timestamp.Add(-window).UTC().Format(time.RFC3339)

	// Nullable signature fields use IS so NULL compares as equal to NULL.
	var existingID int64
	err := s.db.QueryRow(
		`SELECT id FROM activities
		 WHERE user_id = ? AND title = ? AND owner_name = ? AND owner_path = ?
		   AND platform = ? AND is_focus_mode = ?
		   AND owner_bundle_id IS ? AND time_entry_id IS ?
		   AND timestamp >= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		a.UserID, a.Title, a.OwnerName, a.OwnerPath,
		a.Platform, boolToInt(a.IsFocusMode),
		a.OwnerBundleID, a.TimeEntryID,
		cutoff,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(
			`INSERT INTO activities (user_id, timestamp, platform, title, owner_name, owner_path,
				owner_process_id, owner_bundle_id, url, duration, is_focus_mode, time_entry_id, rating, category_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.UserID, a.Timestamp.UTC().Format(time.RFC3339), a.Platform, a.Title, a.OwnerName, a.OwnerPath,
			a.OwnerProcessID, a.OwnerBundleID, a.URL, a.Duration, boolToInt(a.IsFocusMode), a.TimeEntryID, a.Rating, a.CategoryID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert activity: %w", err)
		}
		id, _ := res.LastInsertId()
		return s.GetActivity(id)

	case err != nil:
		return nil, fmt.Errorf("find mergeable activity: %w", err)

	default:
		// Additive merge; rating is backfilled only when still unset.
		_, err := s.db.Exec(
			`UPDATE activities SET duration = duration + ?, rating = COALESCE(rating, ?) WHERE id = ?`,
			a.Duration, a.Rating, existingID,
		)
		if err != nil {
			return nil, fmt.Errorf("merge activity %d: %w", existingID, err)
		}
		return s.GetActivity(existingID)
	}
}

func (s *Store) GetActivity(id int64) (*Activity, error) {
	row := s.db.QueryRow(`SELECT `+activityCols+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err != nil {
		return nil, fmt.Errorf("get activity %d: %w", id, err)
	}
	return a, nil
}

func (s *Store) ListActivities(userID string, f ActivityFilter) ([]Activity, error) {
	query := `SELECT ` + activityCols + ` FROM activities WHERE user_id = ?`
	args := []any{userID}

	if f.TimeEntryID != nil {
		query += ` AND time_entry_id = ?`
		args = append(args, *f.TimeEntryID)
	}
	if f.Uncategorized {
		query += ` AND category_id IS NULL`
	}
	if f.From != nil {
		query += ` AND timestamp >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		query += ` AND timestamp < ?`
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

func (s *Store) SetActivityRating(id int64, rating int) error {
	_, err := s.db.Exec(`UPDATE activities SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return fmt.Errorf("set activity %d rating: %w", id, err)
	}
	return nil
}

func (s *Store) SetActivityCategory(id int64, categoryID int64) error {
	_, err := s.db.Exec(`UPDATE activities SET category_id = ? WHERE id = ?`, categoryID, id)
	if err != nil {
		return fmt.Errorf("set activity %d category: %w", id, err)
	}
	return nil
}

// AssignCategoryToActivities sets category_id on the given activity rows.
// Backs the bulk-assignment flow; grouping by domain or app happens in the
// engine, which knows how to extract domains from URLs.
func (s *Store) AssignCategoryToActivities(ids []int64, categoryID int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE activities SET category_id = ? WHERE id IN (?` + repeatPlaceholder(len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, categoryID)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("assign category to %d activities: %w", len(ids), err)
	}
	return nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*Activity, error) {
	a := &Activity{}
	var timestamp string
	var bundleID, url sql.NullString
	var entryID, categoryID sql.NullInt64
	var rating sql.NullInt64
	var isFocus int

	err := row.Scan(&a.ID, &a.UserID, &timestamp, &a.Platform, &a.Title, &a.OwnerName, &a.OwnerPath,
		&a.OwnerProcessID, &bundleID, &url, &a.Duration, &isFocus, &entryID, &rating, &categoryID)
	if err != nil {
		return nil, err
	}
	if a.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	a.IsFocusMode = isFocus == 1
	if bundleID.Valid {
		a.OwnerBundleID = &bundleID.String
	}
	if url.Valid {
		a.URL = &url.String
	}
	if entryID.Valid {
		a.TimeEntryID = &entryID.Int64
	}
	if rating.Valid {
		r := int(rating.Int64)
		a.Rating = &r
	}
	if categoryID.Valid {
		a.CategoryID = &categoryID.Int64
	}
	return a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

const ruleCols = `id, user_id, app_name, domain, title, title_condition, duration, duration_condition, rating, active, created_at`

// UpsertRule inserts a rule, or updates the existing one when the
// (user, title, app, domain) tuple already exists.
func (s *Store) UpsertRule(r Rule) (*Rule, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO rules (user_id, app_name, domain, title, title_condition, duration, duration_condition, rating, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, title, app_name, domain) DO UPDATE SET
			title_condition    = excluded.title_condition,
			duration           = excluded.duration,
			duration_condition = excluded.duration_condition,
			rating             = excluded.rating,
			active             = excluded.active`,
		r.UserID, r.AppName, r.Domain, r.Title, r.TitleCondition,
		r.Duration, r.DurationCondition, r.Rating, boolToInt(r.Active), now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert rule: %w", err)
	}
	// The conflict path leaves LastInsertId stale, so resolve by key.
	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM rules WHERE user_id = ? AND title = ? AND app_name = ? AND domain = ?`,
		r.UserID, r.Title, r.AppName, r.Domain,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("find upserted rule: %w", err)
	}
	return s.GetRule(id)
}

func (s *Store) GetRule(id int64) (*Rule, error) {
	row := s.db.QueryRow(`SELECT `+ruleCols+` FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return r, nil
}

// ListActiveRules returns the user's active rules, newest first.
func (s *Store) ListActiveRules(userID string) ([]Rule, error) {
	rows, err := s.db.Query(
		`SELECT `+ruleCols+` FROM rules WHERE user_id = ? AND active = 1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (s *Store) SetRuleActive(id int64, active bool) error {
	_, err := s.db.Exec(`UPDATE rules SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set rule %d active: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteRule(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	return nil
}

func scanRule(row rowScanner) (*Rule, error) {
	r := &Rule{}
	var duration sql.NullInt64
	var active int
	var createdAt string
	err := row.Scan(&r.ID, &r.UserID, &r.AppName, &r.Domain, &r.Title, &r.TitleCondition,
		&duration, &r.DurationCondition, &r.Rating, &active, &createdAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		r.Duration = &duration.Int64
	}
	r.Active = active == 1
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return r, nil
}

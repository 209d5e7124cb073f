package store

import (
	"fmt"
	"time"
)

const mappingCols = `id, user_id, category_id, app_name, domain, title_pattern, match_type, priority, is_active, created_at`

// UpsertMapping inserts a mapping, or updates the existing one when the
// (user, app, domain, pattern) tuple already exists.
func (s *Store) UpsertMapping(m CategoryMapping) (*CategoryMapping, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO category_mappings (user_id, category_id, app_name, domain, title_pattern, match_type, priority, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, app_name, domain, title_pattern) DO UPDATE SET
			category_id = excluded.category_id,
			match_type  = excluded.match_type,
			priority    = excluded.priority,
			is_active   = excluded.is_active`,
		m.UserID, m.CategoryID, m.AppName, m.Domain, m.TitlePattern, m.MatchType, m.Priority, boolToInt(m.IsActive), now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert mapping: %w", err)
	}
	// The conflict path leaves LastInsertId stale, so resolve by key.
	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM category_mappings WHERE user_id = ? AND app_name = ? AND domain = ? AND title_pattern = ?`,
		m.UserID, m.AppName, m.Domain, m.TitlePattern,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("find upserted mapping: %w", err)
	}
	return s.GetMapping(id)
}

func (s *Store) GetMapping(id int64) (*CategoryMapping, error) {
	row := s.db.QueryRow(`SELECT `+mappingCols+` FROM category_mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if err != nil {
		return nil, fmt.Errorf("get mapping %d: %w", id, err)
	}
	return m, nil
}

// ListActiveMappings returns active mappings ordered by descending priority;
// the classifier evaluates them in this order and stops at the first hit.
func (s *Store) ListActiveMappings(userID string) ([]CategoryMapping, error) {
	rows, err := s.db.Query(
		`SELECT `+mappingCols+` FROM category_mappings
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY priority DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active mappings: %w", err)
	}
	defer rows.Close()

	var mappings []CategoryMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

func (s *Store) DeleteMapping(id int64) error {
	_, err := s.db.Exec(`DELETE FROM category_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mapping %d: %w", id, err)
	}
	return nil
}

func scanMapping(row rowScanner) (*CategoryMapping, error) {
	m := &CategoryMapping{}
	var isActive int
	var createdAt string
	err := row.Scan(&m.ID, &m.UserID, &m.CategoryID, &m.AppName, &m.Domain, &m.TitlePattern,
		&m.MatchType, &m.Priority, &isActive, &createdAt)
	if err != nil {
		return nil, err
	}
	m.IsActive = isActive == 1
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return m, nil
}

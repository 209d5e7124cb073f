package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS time_entries (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id             TEXT NOT NULL,
		start_time          TEXT NOT NULL,
		end_time            TEXT,
		duration            INTEGER,
		is_focus_mode       INTEGER NOT NULL DEFAULT 1,
		target_duration     INTEGER,
		auto_stop_enabled   INTEGER NOT NULL DEFAULT 0,
		notification_stage  INTEGER NOT NULL DEFAULT 0,
		whitelisted         TEXT NOT NULL DEFAULT '',
		board_id            INTEGER,
		item_id             INTEGER,
		created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_open  ON time_entries(user_id, end_time);
	CREATE INDEX IF NOT EXISTS idx_entries_start ON time_entries(user_id, start_time);

	CREATE TABLE IF NOT EXISTS categories (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		parent_id   INTEGER REFERENCES categories(id),
		path        TEXT NOT NULL,
		level       INTEGER NOT NULL DEFAULT 0,
		sort_order  INTEGER NOT NULL DEFAULT 0,
		is_system   INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_categories_path ON categories(user_id, path);

	CREATE TABLE IF NOT EXISTS activities (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id           TEXT NOT NULL,
		timestamp         TEXT NOT NULL,
		platform          TEXT NOT NULL DEFAULT '',
		title             TEXT NOT NULL DEFAULT '',
		owner_name        TEXT NOT NULL DEFAULT '',
		owner_path        TEXT NOT NULL DEFAULT '',
		owner_process_id  INTEGER NOT NULL DEFAULT 0,
		owner_bundle_id   TEXT,
		url               TEXT,
		duration          INTEGER NOT NULL DEFAULT 0,
		is_focus_mode     INTEGER NOT NULL DEFAULT 0,
		time_entry_id     INTEGER REFERENCES time_entries(id),
		rating            INTEGER,
		category_id       INTEGER REFERENCES categories(id)
	);

	CREATE INDEX IF NOT EXISTS idx_activities_ts       ON activities(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_activities_category ON activities(user_id, category_id);

	CREATE TABLE IF NOT EXISTS rules (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id             TEXT NOT NULL,
		app_name            TEXT NOT NULL DEFAULT '',
		domain              TEXT NOT NULL DEFAULT '',
		title               TEXT NOT NULL DEFAULT '',
		title_condition     TEXT NOT NULL DEFAULT '',
		duration            INTEGER,
		duration_condition  TEXT NOT NULL DEFAULT '',
		rating              INTEGER NOT NULL DEFAULT 1,
		active              INTEGER NOT NULL DEFAULT 1,
		created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		UNIQUE(user_id, title, app_name, domain)
	);

	CREATE TABLE IF NOT EXISTS category_mappings (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        TEXT NOT NULL,
		category_id    INTEGER NOT NULL REFERENCES categories(id),
		app_name       TEXT NOT NULL DEFAULT '',
		domain         TEXT NOT NULL DEFAULT '',
		title_pattern  TEXT NOT NULL DEFAULT '',
		match_type     TEXT NOT NULL DEFAULT 'exact',
		priority       INTEGER NOT NULL DEFAULT 50,
		is_active      INTEGER NOT NULL DEFAULT 1,
		created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
		UNIQUE(user_id, app_name, domain, title_pattern)
	);

	CREATE TABLE IF NOT EXISTS scheduled_sessions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id         TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		days_of_week    TEXT NOT NULL DEFAULT '',
		start_time      TEXT NOT NULL,
		focus_duration  INTEGER NOT NULL DEFAULT 25,
		break_duration  INTEGER NOT NULL DEFAULT 15,
		cycles          INTEGER NOT NULL DEFAULT 1,
		auto_start      INTEGER NOT NULL DEFAULT 1,
		active          INTEGER NOT NULL DEFAULT 1,
		last_run        TEXT,
		next_run        TEXT,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('focus_target_minutes', '25'),
		('break_target_minutes', '15'),
		('auto_stop',            '1'),
		('idle_action',          'pause');
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.seedSystemCategories()
}

// seedSystemCategories installs the shared taxonomy on a fresh database.
func (s *Store) seedSystemCategories() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM categories WHERE is_system = 1`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	seed := []struct {
		name     string
		children []string
	}{
		{"Work", []string{"Development", "Meetings", "Writing"}},
		{"Learning", []string{"Courses", "Reading"}},
		{"Entertainment", []string{"Video", "Games"}},
		{"Social", nil},
		{"Utilities", nil},
	}

	for i, root := range seed {
		res, err := s.db.Exec(
			`INSERT INTO categories (user_id, name, path, level, sort_order, is_system) VALUES ('', ?, ?, 0, ?, 1)`,
			root.name, "/"+root.name, i,
		)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", root.name, err)
		}
		parentID, _ := res.LastInsertId()
		for j, child := range root.children {
			_, err := s.db.Exec(
				`INSERT INTO categories (user_id, name, parent_id, path, level, sort_order, is_system) VALUES ('', ?, ?, ?, 1, ?, 1)`,
				child, parentID, "/"+root.name+"/"+child, j,
			)
			if err != nil {
				return fmt.Errorf("seed category %s/%s: %w", root.name, child, err)
			}
		}
	}
	return nil
}

// DefaultDBPath returns ~/.config/lightbeam/lightbeam.db
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "lightbeam", "lightbeam.db"), nil
}

// parseTime decodes an RFC3339 column. Rows carry timestamps the store wrote
// itself, so a parse failure means the row is corrupt and the scan fails.
func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrCategoryCycle = errors.New("category cannot be moved under its own descendant")

const categoryCols = `id, user_id, name, parent_id, path, level, sort_order, is_system, created_at`

// CreateCategory inserts a node under parentID (nil for a root), deriving
// path and level from the parent.
func (s *Store) CreateCategory(userID, name string, parentID *int64, sortOrder int) (*Category, error) {
	path := "/" + name
	level := 0
	if parentID != nil {
		parent, err := s.GetCategory(*parentID)
		if err != nil {
			return nil, fmt.Errorf("resolve parent: %w", err)
		}
		path = parent.Path + "/" + name
		level = parent.Level + 1
	}

	res, err := s.db.Exec(
		`INSERT INTO categories (user_id, name, parent_id, path, level, sort_order, is_system) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		userID, name, parentID, path, level, sortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetCategory(id)
}

func (s *Store) GetCategory(id int64) (*Category, error) {
	row := s.db.QueryRow(`SELECT `+categoryCols+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

// ListCategories returns the user's categories plus the shared system
// taxonomy, ordered by path so parents precede children.
func (s *Store) ListCategories(userID string) ([]Category, error) {
	rows, err := s.db.Query(
		`SELECT `+categoryCols+` FROM categories WHERE user_id = ? OR is_system = 1 ORDER BY path`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

// GetCategoryByPath resolves a materialized path to the user's own node, or
// a system one when the user has no copy.
func (s *Store) GetCategoryByPath(userID, path string) (*Category, error) {
	row := s.db.QueryRow(
		`SELECT `+categoryCols+` FROM categories
		 WHERE path = ? AND (user_id = ? OR is_system = 1)
		 ORDER BY is_system ASC LIMIT 1`,
		path, userID,
	)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category by path %s: %w", path, err)
	}
	return c, nil
}

// RenameCategory renames a node and rewrites path on the node and every
// descendant in one transaction.
func (s *Store) RenameCategory(id int64, newName string) error {
	c, err := s.GetCategory(id)
	if err != nil {
		return err
	}

	newPath := "/" + newName
	if idx := strings.LastIndex(c.Path, "/"); idx > 0 {
		newPath = c.Path[:idx] + "/" + newName
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE categories SET name = ?, path = ? WHERE id = ?`, newName, newPath, id); err != nil {
		return fmt.Errorf("rename category %d: %w", id, err)
	}
	if err := cascadePaths(tx, c.UserID, c.Path, newPath, 0); err != nil {
		return err
	}
	return tx.Commit()
}

// ReparentCategory moves a node (and its subtree) under newParentID, or to
// the root when nil. Path and level are rewritten for the whole subtree.
func (s *Store) ReparentCategory(id int64, newParentID *int64) error {
	c, err := s.GetCategory(id)
	if err != nil {
		return err
	}

	newPath := "/" + c.Name
	newLevel := 0
	if newParentID != nil {
		parent, err := s.GetCategory(*newParentID)
		if err != nil {
			return fmt.Errorf("resolve new parent: %w", err)
		}
		if parent.ID == c.ID || strings.HasPrefix(parent.Path+"/", c.Path+"/") {
			return ErrCategoryCycle
		}
		newPath = parent.Path + "/" + c.Name
		newLevel = parent.Level + 1
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reparent: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE categories SET parent_id = ?, path = ?, level = ? WHERE id = ?`,
		newParentID, newPath, newLevel, id,
	); err != nil {
		return fmt.Errorf("reparent category %d: %w", id, err)
	}
	if err := cascadePaths(tx, c.UserID, c.Path, newPath, newLevel-c.Level); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteCategory removes a node. Children are reparented to the deleted
// node's parent unless orphan is set, in which case they become roots.
// Activities referencing the category have their category_id cleared, as do
// mappings targeting it.
func (s *Store) DeleteCategory(id int64, orphan bool) error {
	c, err := s.GetCategory(id)
	if err != nil {
		return err
	}

	children, err := s.listChildren(id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, child := range children {
		newParentID := c.ParentID
		newPath := "/" + child.Name
		newLevel := 0
		if !orphan && c.ParentID != nil {
			parent, err := s.GetCategory(*c.ParentID)
			if err != nil {
				return fmt.Errorf("resolve grandparent: %w", err)
			}
			newPath = parent.Path + "/" + child.Name
			newLevel = parent.Level + 1
		} else if orphan {
			newParentID = nil
		}
		if _, err := tx.Exec(
			`UPDATE categories SET parent_id = ?, path = ?, level = ? WHERE id = ?`,
			newParentID, newPath, newLevel, child.ID,
		); err != nil {
			return fmt.Errorf("reparent child %d: %w", child.ID, err)
		}
		if err := cascadePaths(tx, child.UserID, child.Path, newPath, newLevel-child.Level); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE activities SET category_id = NULL WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("clear activity references: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM category_mappings WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("clear mapping references: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return tx.Commit()
}

// cascadePaths rewrites path and level on every strict descendant of oldPath.
func cascadePaths(tx *sql.Tx, userID, oldPath, newPath string, levelDelta int) error {
	// substr is 1-based and counts runes, so compute the cut in runes too.
	cut := utf8.RuneCountInString(oldPath) + 1
	_, err := tx.Exec(
		`UPDATE categories SET path = ? || substr(path, ?), level = level + ?
		 WHERE (user_id = ? OR is_system = 1) AND path LIKE ? ESCAPE '\'`,
		newPath, cut, levelDelta, userID, escapeLike(oldPath)+"/%",
	)
	if err != nil {
		return fmt.Errorf("cascade paths under %s: %w", oldPath, err)
	}
	return nil
}

// escapeLike neutralizes LIKE wildcards in a literal prefix. Category names
// may contain % or _ and must not match unrelated paths.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func (s *Store) listChildren(parentID int64) ([]Category, error) {
	rows, err := s.db.Query(`SELECT `+categoryCols+` FROM categories WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

func scanCategory(row rowScanner) (*Category, error) {
	c := &Category{}
	var parentID sql.NullInt64
	var isSystem int
	var createdAt string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &parentID, &c.Path, &c.Level, &c.SortOrder, &isSystem, &createdAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentID = &parentID.Int64
	}
	c.IsSystem = isSystem == 1
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return c, nil
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/eHtmlu/peak-publisher/internal/models"
)

const pluginColumns = "id, name, slug, status, created_at, updated_at"

func scanPlugin(row interface{ Scan(...any) error }) (*models.Plugin, error) {
	var p models.Plugin
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlugin inserts a new plugin.
func (s *Store) CreatePlugin(name, slug string, status models.Status) (*models.Plugin, error) {
	res, err := s.db.Exec(`
		INSERT INTO plugins (name, slug, status, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, name, slug, status)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin %s: %w", slug, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetPluginByID(id)
}

// GetPluginByID returns a plugin by id or sql.ErrNoRows.
func (s *Store) GetPluginByID(id int64) (*models.Plugin, error) {
	return scanPlugin(s.db.QueryRow("SELECT "+pluginColumns+" FROM plugins WHERE id = ?", id))
}

// GetPluginBySlug returns a plugin by slug or sql.ErrNoRows.
func (s *Store) GetPluginBySlug(slug string) (*models.Plugin, error) {
	return scanPlugin(s.db.QueryRow("SELECT "+pluginColumns+" FROM plugins WHERE slug = ?", slug))
}

// ListPlugins returns all plugins ordered by name.
func (s *Store) ListPlugins() ([]*models.Plugin, error) {
	rows, err := s.db.Query("SELECT " + pluginColumns + " FROM plugins ORDER BY name COLLATE NOCASE ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plugins []*models.Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

// UpdatePluginIdentity changes the display name and slug of a plugin.
func (s *Store) UpdatePluginIdentity(id int64, name, slug string) error {
	return s.execOne(`
		UPDATE plugins SET name = ?, slug = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, name, slug, id)
}

// TouchPlugin bumps the modification time of a plugin.
func (s *Store) TouchPlugin(id int64) error {
	return s.execOne("UPDATE plugins SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
}

// SetPluginStatus changes the lifecycle status of a plugin.
func (s *Store) SetPluginStatus(id int64, status models.Status) error {
	return s.execOne("UPDATE plugins SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
}

// DeletePlugin removes a plugin; its releases go with it.
func (s *Store) DeletePlugin(id int64) error {
	return s.execOne("DELETE FROM plugins WHERE id = ?", id)
}

// PluginSlugExists reports whether a plugin other than excludeID uses
// slug.
func (s *Store) PluginSlugExists(slug string, excludeID int64) (bool, error) {
	return exists(s.db.QueryRow("SELECT COUNT(*) FROM plugins WHERE slug = ? AND id != ?", slug, excludeID))
}

// execOne runs a statement that must affect exactly one row.
func (s *Store) execOne(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

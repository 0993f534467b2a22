package store

import (
	"fmt"
	"strings"

	"github.com/eHtmlu/peak-publisher/internal/models"
)

const releaseColumns = `id, plugin_id, version, normalized_version, slug, status, archive_path,
	plugin_basename, content_hash, payload, created_at, updated_at`

func scanRelease(row interface{ Scan(...any) error }) (*models.Release, error) {
	var r models.Release
	var payload string
	err := row.Scan(&r.ID, &r.PluginID, &r.Version, &r.NormalizedVersion, &r.Slug, &r.Status,
		&r.ArchivePath, &r.PluginBasename, &r.ContentHash, &payload, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Payload = []byte(payload)
	return &r, nil
}

// CreateRelease inserts r and returns the stored row.
func (s *Store) CreateRelease(r *models.Release) (*models.Release, error) {
	res, err := s.db.Exec(`
		INSERT INTO releases (plugin_id, version, normalized_version, slug, status, archive_path,
			plugin_basename, content_hash, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, r.PluginID, r.Version, r.NormalizedVersion, r.Slug, r.Status, r.ArchivePath,
		r.PluginBasename, r.ContentHash, payloadText(r.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create release %s: %w", r.Slug, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetReleaseByID(id)
}

// UpdateRelease overwrites every mutable field of the release with r.ID.
func (s *Store) UpdateRelease(r *models.Release) error {
	return s.execOne(`
		UPDATE releases SET version = ?, normalized_version = ?, slug = ?, status = ?, archive_path = ?,
			plugin_basename = ?, content_hash = ?, payload = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, r.Version, r.NormalizedVersion, r.Slug, r.Status, r.ArchivePath,
		r.PluginBasename, r.ContentHash, payloadText(r.Payload), r.ID)
}

func payloadText(p []byte) string {
	if len(p) == 0 {
		return "{}"
	}
	return string(p)
}

// GetReleaseByID returns a release by id or sql.ErrNoRows.
func (s *Store) GetReleaseByID(id int64) (*models.Release, error) {
	return scanRelease(s.db.QueryRow("SELECT "+releaseColumns+" FROM releases WHERE id = ?", id))
}

// ListReleasesByPlugin returns the releases of a plugin in creation
// order, optionally limited to the given statuses.
func (s *Store) ListReleasesByPlugin(pluginID int64, statuses ...models.Status) ([]*models.Release, error) {
	query := "SELECT " + releaseColumns + " FROM releases WHERE plugin_id = ?"
	args := []any{pluginID}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(statuses)-1) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []*models.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

// SetReleaseStatus changes the lifecycle status of a release.
func (s *Store) SetReleaseStatus(id int64, status models.Status) error {
	return s.execOne("UPDATE releases SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
}

// DeleteRelease removes a release record.
func (s *Store) DeleteRelease(id int64) error {
	return s.execOne("DELETE FROM releases WHERE id = ?", id)
}

// ReleaseSlugExists reports whether a release other than excludeID uses
// slug.
func (s *Store) ReleaseSlugExists(slug string, excludeID int64) (bool, error) {
	return exists(s.db.QueryRow("SELECT COUNT(*) FROM releases WHERE slug = ? AND id != ?", slug, excludeID))
}

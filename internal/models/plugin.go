package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state shared by plugins and releases.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Plugin is a distributable plugin. Its slug is derived from the
// folder name inside the uploaded archive.
type Plugin struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Release is one uploaded version of a plugin. At most one release
// exists per (PluginID, NormalizedVersion).
type Release struct {
	ID                int64           `json:"id"`
	PluginID          int64           `json:"plugin_id"`
	Version           string          `json:"version"`
	NormalizedVersion string          `json:"normalized_version"`
	Slug              string          `json:"slug"`
	Status            Status          `json:"status"`
	ArchivePath       string          `json:"archive_path"`
	PluginBasename    string          `json:"plugin_basename"`
	ContentHash       string          `json:"content_hash"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Ref returns the minimal reference used in version relations.
func (r *Release) Ref() ReleaseRef {
	return ReleaseRef{
		ReleaseID:         r.ID,
		Version:           r.Version,
		NormalizedVersion: r.NormalizedVersion,
		Basename:          r.PluginBasename,
	}
}

// UploadData decodes the stored ingestion document. A release without a
// payload yields an empty document.
func (r *Release) UploadData() (*UploadData, error) {
	var data UploadData
	if len(r.Payload) == 0 {
		return &data, nil
	}
	if err := json.Unmarshal(r.Payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// PluginSummary is the admin listing row for a plugin.
type PluginSummary struct {
	Plugin
	LatestVersion string `json:"latest_version"`
	ReleaseCount  int    `json:"release_count"`
}

// PluginDetails is a plugin together with all of its releases.
type PluginDetails struct {
	Plugin
	Releases []*Release `json:"releases"`
}

// ReleaseRef is a minimal pointer to a release.
type ReleaseRef struct {
	ReleaseID         int64  `json:"id"`
	Version           string `json:"version"`
	NormalizedVersion string `json:"normalized_version"`
	Basename          string `json:"plugin_basename"`
}

// VersionRelation places a candidate version among a plugin's releases.
type VersionRelation struct {
	Existing *ReleaseRef `json:"existing"`
	Previous *ReleaseRef `json:"previous"`
	Next     *ReleaseRef `json:"next"`
	Latest   *ReleaseRef `json:"latest"`
}

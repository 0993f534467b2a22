// Package catalog implements the administrative operations on published
// plugins and releases: listing, status changes and deletion together
// with their stored archives.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

var ErrInvalidStatus = errors.New("invalid status")

type Store interface {
	ListPlugins() ([]*models.Plugin, error)
	GetPluginByID(id int64) (*models.Plugin, error)
	SetPluginStatus(id int64, status models.Status) error
	DeletePlugin(id int64) error
	ListReleasesByPlugin(pluginID int64, statuses ...models.Status) ([]*models.Release, error)
	GetReleaseByID(id int64) (*models.Release, error)
	SetReleaseStatus(id int64, status models.Status) error
	DeleteRelease(id int64) error
}

type Service struct {
	store       Store
	storageRoot string
	logger      *zap.Logger
}

func NewService(store Store, storageRoot string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, storageRoot: storageRoot, logger: logger}
}

// PluginsDir is the root of all stored release archives.
func (s *Service) PluginsDir() string {
	return filepath.Join(s.storageRoot, "plugins")
}

// Summaries lists every plugin with its latest published version.
func (s *Service) Summaries() ([]models.PluginSummary, error) {
	plugins, err := s.store.ListPlugins()
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	out := make([]models.PluginSummary, 0, len(plugins))
	for _, p := range plugins {
		releases, err := s.store.ListReleasesByPlugin(p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list releases of %s: %w", p.Slug, err)
		}
		var published []string
		for _, r := range releases {
			if r.Status == models.StatusPublished {
				published = append(published, r.Version)
			}
		}
		sum := models.PluginSummary{Plugin: *p, ReleaseCount: len(releases)}
		if i := version.Highest(published); i >= 0 {
			sum.LatestVersion = published[i]
		}
		out = append(out, sum)
	}
	return out, nil
}

// Details returns a plugin with all of its releases. A missing plugin
// yields sql.ErrNoRows.
func (s *Service) Details(id int64) (*models.PluginDetails, error) {
	p, err := s.store.GetPluginByID(id)
	if err != nil {
		return nil, err
	}
	releases, err := s.store.ListReleasesByPlugin(id)
	if err != nil {
		return nil, err
	}
	if releases == nil {
		releases = []*models.Release{}
	}
	return &models.PluginDetails{Plugin: *p, Releases: releases}, nil
}

func (s *Service) SetPluginStatus(id int64, status models.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.store.SetPluginStatus(id, status)
}

func (s *Service) SetReleaseStatus(id int64, status models.Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.store.SetReleaseStatus(id, status)
}

// DeletePlugin removes the plugin, its releases and their archives.
func (s *Service) DeletePlugin(id int64) error {
	p, err := s.store.GetPluginByID(id)
	if err != nil {
		return err
	}
	releases, err := s.store.ListReleasesByPlugin(id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlugin(id); err != nil {
		return err
	}
	for _, r := range releases {
		s.removeArchive(r)
	}
	if err := util.RemoveAllSafely(filepath.Join(s.PluginsDir(), p.Slug)); err != nil {
		s.logger.Warn("failed to remove plugin storage", zap.String("plugin", p.Slug), zap.Error(err))
	}
	s.logger.Info("plugin deleted", zap.String("plugin", p.Slug), zap.Int("releases", len(releases)))
	return nil
}

// DeleteRelease removes one release and its archive.
func (s *Service) DeleteRelease(id int64) error {
	r, err := s.store.GetReleaseByID(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRelease(id); err != nil {
		return err
	}
	s.removeArchive(r)
	if _, err := util.RemoveEmptyDirs(s.PluginsDir()); err != nil {
		s.logger.Warn("failed to prune storage", zap.Error(err))
	}
	return nil
}

// ArchiveFile returns the absolute path of a release archive.
func (s *Service) ArchiveFile(r *models.Release) (string, error) {
	if r.ArchivePath == "" {
		return "", fs.ErrNotExist
	}
	return util.SafeJoin(s.storageRoot, r.ArchivePath)
}

// ReleaseArchive looks up a release and the path of its archive.
func (s *Service) ReleaseArchive(id int64) (*models.Release, string, error) {
	r, err := s.store.GetReleaseByID(id)
	if err != nil {
		return nil, "", err
	}
	p, err := s.ArchiveFile(r)
	if err != nil {
		return nil, "", err
	}
	return r, p, nil
}

// PruneStorage removes empty directories left in the archive storage.
func (s *Service) PruneStorage() (int, error) {
	n, err := util.RemoveEmptyDirs(s.PluginsDir())
	if err != nil {
		return 0, fmt.Errorf("failed to prune storage: %w", err)
	}
	return n, nil
}

func (s *Service) removeArchive(r *models.Release) {
	p, err := s.ArchiveFile(r)
	if err != nil {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove release archive", zap.String("path", p), zap.Error(err))
	}
}

// Package distribution answers the update-check, info and download
// requests of installed clients from the published catalog.
package distribution

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/metrics"
	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

// ErrNotFound is returned by the protocol operations when a plugin or
// release cannot be served.
var ErrNotFound = errors.New("plugin not found")

// Store is the read side of the catalog used for distribution.
type Store interface {
	GetPluginBySlug(slug string) (*models.Plugin, error)
	ListReleasesByPlugin(pluginID int64, statuses ...models.Status) ([]*models.Release, error)
}

// Resolution is a published plugin with the release selected for a
// request and every other published release.
type Resolution struct {
	Plugin   *models.Plugin
	Release  *models.Release
	Releases []*models.Release
}

// Manifest decodes the header fields stored with the selected release.
func (r *Resolution) Manifest() models.Manifest {
	data, err := r.Release.UploadData()
	if err != nil || data.PluginData == nil {
		return models.Manifest{}
	}
	return *data.PluginData
}

type Resolver struct {
	store       Store
	storageRoot string
	logger      *zap.Logger
	metrics     metrics.Recorder
}

func NewResolver(store Store, storageRoot string, logger *zap.Logger, rec metrics.Recorder) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Resolver{store: store, storageRoot: storageRoot, logger: logger, metrics: rec}
}

// Resolve selects the release of a published plugin to serve. With an
// empty requested version the highest published version wins, otherwise
// the release whose normalized version equals the request. A missing
// plugin or release reports found=false with a nil error.
func (r *Resolver) Resolve(slug, requested string) (*Resolution, bool, error) {
	if slug == "" {
		return nil, false, nil
	}
	p, err := r.store.GetPluginBySlug(slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up plugin %s: %w", slug, err)
	}
	if p.Status != models.StatusPublished {
		return nil, false, nil
	}

	releases, err := r.store.ListReleasesByPlugin(p.ID, models.StatusPublished)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list releases of %s: %w", slug, err)
	}
	if len(releases) == 0 {
		return nil, false, nil
	}

	refs := make([]models.ReleaseRef, len(releases))
	for i, rel := range releases {
		refs[i] = rel.Ref()
	}
	relation := version.Resolve(refs, requested)
	pick := relation.Latest
	if requested != "" {
		pick = relation.Existing
	}
	if pick == nil {
		return nil, false, nil
	}
	for _, rel := range releases {
		if rel.ID == pick.ReleaseID {
			return &Resolution{Plugin: p, Release: rel, Releases: releases}, true, nil
		}
	}
	return nil, false, nil
}

// Archive resolves a download request to the archive file on disk.
func (r *Resolver) Archive(slug, requested string) (*Resolution, string, error) {
	res, path, err := r.archive(slug, requested)
	r.metrics.ObserveDistribution("download", err == nil)
	return res, path, err
}

func (r *Resolver) archive(slug, requested string) (*Resolution, string, error) {
	res, found, err := r.Resolve(slug, requested)
	if err != nil {
		return nil, "", err
	}
	if !found || res.Release.ArchivePath == "" {
		return nil, "", ErrNotFound
	}
	path, err := util.SafeJoin(r.storageRoot, res.Release.ArchivePath)
	if err != nil {
		r.logger.Warn("release archive path escapes storage",
			zap.Int64("release", res.Release.ID), zap.String("path", res.Release.ArchivePath))
		return nil, "", ErrNotFound
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		r.logger.Warn("release archive missing", zap.Int64("release", res.Release.ID), zap.String("path", path))
		return nil, "", ErrNotFound
	}
	return res, path, nil
}

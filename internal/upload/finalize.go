package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/metrics"
	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

// CatalogWriter is the part of the plugin store that finalize writes to.
type CatalogWriter interface {
	Catalog
	GetReleaseByID(id int64) (*models.Release, error)
	ReleaseSlugExists(slug string, excludeID int64) (bool, error)
	PluginSlugExists(slug string, excludeID int64) (bool, error)
	CreatePlugin(name, slug string, status models.Status) (*models.Plugin, error)
	UpdatePluginIdentity(id int64, name, slug string) error
	TouchPlugin(id int64) error
	CreateRelease(r *models.Release) (*models.Release, error)
	UpdateRelease(r *models.Release) error
}

// Acknowledgements are the operator's overrides for failed checks.
type Acknowledgements struct {
	ReplaceRelease          bool `json:"replace_release"`
	AcceptOlderVersion      bool `json:"accept_older_version"`
	AcceptUnexpectedVersion bool `json:"accept_unexpected_version"`
	AcceptChangedBasename   bool `json:"accept_changed_basename"`
}

func (a Acknowledgements) covers(code string) bool {
	switch code {
	case CheckReleaseExists:
		return a.ReplaceRelease
	case CheckOlderVersion:
		return a.AcceptOlderVersion
	case CheckUnexpectedVersion:
		return a.AcceptUnexpectedVersion
	case CheckBasenameChanged:
		return a.AcceptChangedBasename
	}
	return false
}

type FinalizeRequest struct {
	UploadID         string           `json:"upload_id"`
	Acknowledgements Acknowledgements `json:"acknowledgements"`
}

type FinalizeResult struct {
	PluginID        int64 `json:"plugin_id"`
	ReleaseID       int64 `json:"release_id"`
	ReplacedRelease bool  `json:"replaced_release"`
}

// Finalizer commits analyzed uploads into the catalog and the archive
// storage.
type Finalizer struct {
	sessions    *SessionStore
	catalog     CatalogWriter
	storageRoot string
	logger      *zap.Logger
	metrics     metrics.Recorder
}

func NewFinalizer(sessions *SessionStore, catalog CatalogWriter, storageRoot string, logger *zap.Logger, rec metrics.Recorder) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Finalizer{sessions: sessions, catalog: catalog, storageRoot: storageRoot, logger: logger, metrics: rec}
}

// ArchivePath is where the archive of a release lives inside storage,
// relative to the storage root.
func ArchivePath(pluginSlug, normalizedVersion, zipName string) string {
	return path.Join("plugins", pluginSlug, util.Sanitize(normalizedVersion), zipName)
}

// Finalize commits the upload. On failure nothing is rolled back; the
// workspace is only disposed after both records were written.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	res, err := f.finalize(req)
	if err != nil {
		e := AsError(err, CodeCreateReleaseFailed)
		f.metrics.ObserveFinalize(e.Code)
		f.logger.Warn("finalize rejected", zap.String("upload_id", req.UploadID), zap.Error(e))
		return nil, e
	}
	f.metrics.ObserveFinalize(StatusOK)
	return res, nil
}

func (f *Finalizer) finalize(req FinalizeRequest) (*FinalizeResult, error) {
	if req.UploadID == "" {
		return nil, newError(CodeMissingUploadID, "Missing upload_id.", nil)
	}
	sess, err := f.sessions.Open(req.UploadID)
	if err != nil {
		return nil, err
	}
	state, err := f.sessions.LoadState(sess)
	if err != nil {
		return nil, err
	}
	zipPath := sess.ZipPath(state)
	if state.ZipPath == "" || !util.Exists(zipPath) {
		return nil, newError(CodeZipMissing, "ZIP file is missing.", nil)
	}
	if state.RebuildPending {
		return nil, newError(CodeRebuildPending, "The archive must be rebuilt before it can be published.", nil)
	}

	data := &state.Data
	info := data.PluginInfo
	if !data.PluginOK || !data.VersionOK || info == nil || data.PluginData == nil {
		return nil, newError(CodePluginOrVersionInvalid, "Plugin or version is invalid.", nil)
	}

	analyzedPlugin := data.ExistingPlugin
	if err := relateReleases(f.catalog, data); err != nil {
		return nil, newError(CodeCreateReleaseFailed, "Failed to look up existing releases.", err)
	}

	for _, c := range Checklist(data, "") {
		if c.OK || c.Informational {
			continue
		}
		if !c.Overridable {
			return nil, newError(CodePluginOrVersionInvalid, "Plugin or version is invalid.", nil)
		}
		if !req.Acknowledgements.covers(c.Code) {
			return nil, newError(c.Code, conflictMessage(c.Code), nil)
		}
	}

	if info.PluginSlug == "" || info.PluginSlug != util.Sanitize(info.PluginSlug) {
		return nil, newError(CodePluginSlugMismatch, "Plugin slug mismatch.", nil)
	}
	if info.ReleaseSlug == "" || info.ReleaseSlug != util.Sanitize(info.ReleaseSlug) {
		return nil, newError(CodeReleaseSlugMismatch, "Release slug mismatch.", nil)
	}

	if data.ExistingPlugin != analyzedPlugin {
		return nil, newError(CodePluginSlugConflict,
			"The plugin slug changed owner since the upload was analyzed. Analyze the upload again.", nil)
	}
	pluginTaken, err := f.catalog.PluginSlugExists(info.PluginSlug, data.ExistingPlugin)
	if err != nil {
		return nil, newError(CodeCreatePluginFailed, "Failed to check the plugin slug.", err)
	}
	if pluginTaken {
		return nil, newError(CodePluginSlugConflict, "Another plugin already uses this slug.", nil)
	}
	existing := data.RelatedReleases.Existing
	var existingID int64
	if existing != nil {
		existingID = existing.ReleaseID
	}
	taken, err := f.catalog.ReleaseSlugExists(info.ReleaseSlug, existingID)
	if err != nil {
		return nil, newError(CodeCreateReleaseFailed, "Failed to check the release slug.", err)
	}
	if taken {
		return nil, newError(CodeReleaseSlugConflict, "Another release already uses this slug.", nil)
	}

	if existing != nil {
		f.removeReplacedArchive(existing.ReleaseID)
	}

	zipName := path.Base(state.ZipPath)
	archivePath := ArchivePath(info.PluginSlug, info.NormalizedVersion, zipName)
	if err := util.MoveFile(zipPath, filepath.Join(f.storageRoot, filepath.FromSlash(archivePath))); err != nil {
		return nil, newError(CodeMoveZipFailed, "Failed to move ZIP to target directory.", err)
	}

	pluginID, err := f.savePlugin(data)
	if err != nil {
		return nil, newError(CodeCreatePluginFailed, "Failed to save the plugin.", err)
	}
	data.ExistingPlugin = pluginID

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, newError(CodeCreateReleaseFailed, "Failed to encode the release payload.", err)
	}
	release := &models.Release{
		ID:                existingID,
		PluginID:          pluginID,
		Version:           data.PluginData.Version,
		NormalizedVersion: info.NormalizedVersion,
		Slug:              info.ReleaseSlug,
		Status:            models.StatusPublished,
		ArchivePath:       archivePath,
		PluginBasename:    info.PluginBasename,
		ContentHash:       info.ContentHash,
		Payload:           payload,
	}
	if existingID > 0 {
		err = f.catalog.UpdateRelease(release)
	} else {
		release, err = f.catalog.CreateRelease(release)
	}
	if err != nil {
		return nil, newError(CodeCreateReleaseFailed, "Failed to save the release.", err)
	}

	if err := f.sessions.Dispose(sess.ID); err != nil {
		f.logger.Warn("failed to dispose finalized upload", zap.String("upload_id", sess.ID), zap.Error(err))
	}
	f.logger.Info("release published",
		zap.String("plugin", info.PluginSlug),
		zap.String("version", release.Version),
		zap.Int64("release_id", release.ID),
		zap.Bool("replaced", existingID > 0))
	return &FinalizeResult{PluginID: pluginID, ReleaseID: release.ID, ReplacedRelease: existingID > 0}, nil
}

// savePlugin creates the plugin or updates it. Name and slug only follow
// uploads that are at least as new as the latest known release.
func (f *Finalizer) savePlugin(data *models.UploadData) (int64, error) {
	name := data.PluginData.Name
	slug := data.PluginInfo.PluginSlug
	if data.ExistingPlugin == 0 {
		p, err := f.catalog.CreatePlugin(name, slug, models.StatusPublished)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	}

	latest := data.RelatedReleases.Latest
	if latest == nil || version.Compare(latest.Version, data.PluginData.Version) <= 0 {
		return data.ExistingPlugin, f.catalog.UpdatePluginIdentity(data.ExistingPlugin, name, slug)
	}
	return data.ExistingPlugin, f.catalog.TouchPlugin(data.ExistingPlugin)
}

func (f *Finalizer) removeReplacedArchive(releaseID int64) {
	r, err := f.catalog.GetReleaseByID(releaseID)
	if err != nil || r.ArchivePath == "" {
		return
	}
	p, err := util.SafeJoin(f.storageRoot, r.ArchivePath)
	if err != nil {
		f.logger.Warn("refusing to remove archive outside storage", zap.String("path", r.ArchivePath))
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Warn("failed to remove replaced archive", zap.String("path", p), zap.Error(err))
	}
}

// Discard throws the upload away. Discarding an upload that is already
// gone succeeds.
func (f *Finalizer) Discard(ctx context.Context, uploadID string) error {
	if uploadID == "" {
		return newError(CodeMissingUploadID, "Missing upload_id.", nil)
	}
	if err := f.sessions.Dispose(uploadID); err != nil {
		return AsError(err, CodeUploadNotFound)
	}
	f.logger.Info("upload discarded", zap.String("upload_id", uploadID))
	return nil
}

func conflictMessage(code string) string {
	switch code {
	case CheckReleaseExists:
		return "A release with this version already exists."
	case CheckOlderVersion:
		return "The version is older than the latest release."
	case CheckUnexpectedVersion:
		return "The version does not follow the previous release."
	case CheckBasenameChanged:
		return "The plugin basename differs from the previous release."
	}
	return "The upload needs confirmation."
}

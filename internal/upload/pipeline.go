// Package upload implements the resumable ingestion workflow for plugin
// archives: a workspace per upload, the phases that validate and
// normalize the archive, and the commit into the catalog.
package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/analyzer"
	"github.com/eHtmlu/peak-publisher/internal/archive"
	"github.com/eHtmlu/peak-publisher/internal/artifacts"
	"github.com/eHtmlu/peak-publisher/internal/config"
	"github.com/eHtmlu/peak-publisher/internal/metrics"
	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

// Phase names.
const (
	PhasePrepare = "prepare"
	PhaseUnpack  = "unpack"
	PhaseAnalyze = "analyze"
	PhaseRebuild = "rebuild_zip"
	PhaseResult  = "result"

	phasePrepareAlias = "upload_prepare"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Catalog is the read side of the plugin store used during analysis.
type Catalog interface {
	GetPluginBySlug(slug string) (*models.Plugin, error)
	ListReleasesByPlugin(pluginID int64, statuses ...models.Status) ([]*models.Release, error)
}

// PhaseRequest is one call into the pipeline. File and its metadata are
// only used by the prepare phase.
type PhaseRequest struct {
	UploadID       string
	Phase          string
	File           io.Reader
	FileName       string
	FileSize       int64
	MimeType       string
	BuiltInBrowser bool
}

// PhaseResponse is what a phase reports back. Data and Checks are only
// set by the result phase.
type PhaseResponse struct {
	Status   string             `json:"status"`
	Next     string             `json:"next,omitempty"`
	UploadID string             `json:"upload_id,omitempty"`
	Errors   []ErrorItem        `json:"errors,omitempty"`
	Data     *models.UploadData `json:"data,omitempty"`
	Checks   []Check            `json:"checks,omitempty"`
}

// Options configures a Pipeline.
type Options struct {
	Ingest    config.Ingest
	PublicURL string
}

// Pipeline runs the ingestion phases against upload workspaces.
type Pipeline struct {
	sessions *SessionStore
	catalog  Catalog
	archiver *archive.Archiver
	opts     Options
	logger   *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

func NewPipeline(sessions *SessionStore, catalog Catalog, archiver *archive.Archiver, opts Options, logger *zap.Logger, rec metrics.Recorder) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Pipeline{
		sessions: sessions,
		catalog:  catalog,
		archiver: archiver,
		opts:     opts,
		logger:   logger,
		metrics:  rec,
		now:      time.Now,
	}
}

type phaseFunc func(ctx context.Context, sess *Session, state *models.UploadState) (string, error)

// Run executes one phase. It never returns a Go error: every failure is
// described in the response.
func (p *Pipeline) Run(ctx context.Context, req PhaseRequest) *PhaseResponse {
	phase := req.Phase
	if phase == "" || phase == phasePrepareAlias {
		phase = PhasePrepare
	}
	start := p.now()

	var resp *PhaseResponse
	switch phase {
	case PhasePrepare:
		resp = p.prepare(ctx, req, start)
	case PhaseUnpack, PhaseAnalyze, PhaseRebuild, PhaseResult:
		resp = p.runPhase(ctx, phase, req.UploadID, start)
	default:
		resp = errorResponse(req.UploadID, newError(CodeInvalidPhase, fmt.Sprintf("Unknown phase %q.", req.Phase), nil))
		phase = "invalid"
	}

	p.metrics.ObservePhase(phase, resp.Status == StatusOK, p.now().Sub(start))
	return resp
}

func (p *Pipeline) runPhase(ctx context.Context, phase, uploadID string, start time.Time) *PhaseResponse {
	if uploadID == "" {
		return errorResponse("", newError(CodeMissingUploadID, "Missing upload_id.", nil))
	}
	sess, err := p.sessions.Open(uploadID)
	if err != nil {
		return errorResponse(uploadID, AsError(err, CodeUploadNotFound))
	}
	state, err := p.sessions.LoadState(sess)
	if err != nil {
		return errorResponse(uploadID, AsError(err, CodeUploadNotFound))
	}

	if phase == PhaseResult {
		return &PhaseResponse{
			Status:   StatusOK,
			UploadID: uploadID,
			Data:     &state.Data,
			Checks:   Checklist(&state.Data, p.opts.PublicURL),
		}
	}

	fn := map[string]phaseFunc{
		PhaseUnpack:  p.unpack,
		PhaseAnalyze: p.analyze,
		PhaseRebuild: p.rebuild,
	}[phase]

	next, phaseErr := fn(ctx, sess, state)
	p.recordTiming(state, phase, start)
	if err := p.sessions.SaveState(sess, state); err != nil && phaseErr == nil {
		phaseErr = newError(fallbackCode(phase), "Failed to save upload state.", err)
	}
	if phaseErr != nil {
		e := AsError(phaseErr, fallbackCode(phase))
		p.logger.Warn("upload phase failed",
			zap.String("upload_id", uploadID), zap.String("phase", phase), zap.Error(e))
		return errorResponse(uploadID, e)
	}
	return &PhaseResponse{Status: StatusOK, Next: next, UploadID: uploadID}
}

func fallbackCode(phase string) string {
	switch phase {
	case PhaseUnpack:
		return CodeUnzipFailed
	case PhaseRebuild:
		return CodeRebuildFailed
	case PhasePrepare:
		return CodeUploadFailed
	}
	return CodeAnalyzeFailed
}

func (p *Pipeline) recordTiming(state *models.UploadState, phase string, start time.Time) {
	end := p.now()
	state.Data.Phases[phase] = models.PhaseTiming{
		TimeStart: start,
		TimeEnd:   end,
		Duration:  end.Sub(start).Seconds(),
	}
}

func errorResponse(uploadID string, e *Error) *PhaseResponse {
	return &PhaseResponse{Status: StatusError, UploadID: uploadID, Errors: []ErrorItem{e.Item()}}
}

// prepare stores the uploaded archive in a new workspace.
func (p *Pipeline) prepare(ctx context.Context, req PhaseRequest, start time.Time) *PhaseResponse {
	if req.File == nil {
		return errorResponse("", newError(CodeNoFile, "No file uploaded.", nil))
	}

	if n, err := p.sessions.Sweep(); err != nil {
		p.logger.Warn("opportunistic sweep failed", zap.Error(err))
	} else {
		p.metrics.ObserveSweep(n)
	}

	sess, err := p.sessions.Create()
	if err != nil {
		return errorResponse("", newError(CodeUploadFailed, "Failed to create upload workspace.", err))
	}

	name := util.SanitizeFileName(filepath.Base(filepath.FromSlash(req.FileName)))
	if name == "" {
		name = "plugin.zip"
	}
	if !strings.EqualFold(path.Ext(name), ".zip") {
		name += ".zip"
	}

	size, err := writeUpload(filepath.Join(sess.FileDir(), name), req.File)
	if err != nil {
		if derr := p.sessions.Dispose(sess.ID); derr != nil {
			p.logger.Warn("failed to dispose broken upload", zap.String("upload_id", sess.ID), zap.Error(derr))
		}
		return errorResponse("", newError(CodeUploadFailed, "Failed to store uploaded file.", err))
	}

	state := &models.UploadState{
		ZipPath: path.Join(fileDir, name),
		Data: models.UploadData{
			Phases: make(map[string]models.PhaseTiming),
			OriginalZip: &models.ZipInfo{
				Name:           name,
				Size:           size,
				MimeType:       req.MimeType,
				BuiltInBrowser: req.BuiltInBrowser,
			},
			RelatedReleases: &models.VersionRelation{},
		},
	}
	p.recordTiming(state, PhasePrepare, start)
	if err := p.sessions.SaveState(sess, state); err != nil {
		if derr := p.sessions.Dispose(sess.ID); derr != nil {
			p.logger.Warn("failed to dispose broken upload", zap.String("upload_id", sess.ID), zap.Error(derr))
		}
		return errorResponse("", newError(CodeUploadFailed, "Failed to save upload state.", err))
	}

	p.logger.Info("upload prepared",
		zap.String("upload_id", sess.ID), zap.String("file", name), zap.Int64("size", size))
	return &PhaseResponse{Status: StatusOK, Next: PhaseUnpack, UploadID: sess.ID}
}

func writeUpload(dst string, r io.Reader) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// unpack extracts the working archive into the workspace tree.
func (p *Pipeline) unpack(ctx context.Context, sess *Session, state *models.UploadState) (string, error) {
	zipPath := sess.ZipPath(state)
	if state.ZipPath == "" || !util.Exists(zipPath) {
		return "", newError(CodeZipMissing, "ZIP file is missing.", nil)
	}

	entries, err := p.archiver.List(ctx, zipPath)
	if err != nil {
		return "", newError(CodeUnzipFailed, "Failed to read the archive.", err)
	}
	if len(entries) == 0 {
		return "", newError(CodeEmptyArchive, "The archive is empty.", nil)
	}

	state.Unpacked = false
	if err := p.extract(ctx, sess, zipPath); err != nil {
		return "", err
	}
	state.Unpacked = true
	state.TreeModified = false
	state.RebuildPending = false
	return PhaseAnalyze, nil
}

// extract replaces the workspace tree with the contents of zipPath.
func (p *Pipeline) extract(ctx context.Context, sess *Session, zipPath string) error {
	if err := util.RemoveAllSafely(sess.UnpackedDir()); err != nil {
		return newError(CodeUnzipFailed, "Failed to clear the previous extraction.", err)
	}
	if err := p.archiver.Extract(ctx, zipPath, sess.UnpackedDir()); err != nil {
		return newError(CodeUnzipFailed, "Failed to extract the archive.", err)
	}
	return nil
}

// located is the outcome of the root and manifest search.
type located struct {
	root         string
	manifestPath string
	manifest     *models.Manifest
}

func (p *Pipeline) locate(fsys fs.FS) (located, error) {
	root, err := analyzer.DetectRoot(fsys)
	if err != nil {
		return located{}, err
	}
	mp, m, err := analyzer.FindManifest(fsys, root, p.opts.Ingest.ManifestMaxDepth)
	if err != nil {
		return located{}, err
	}
	return located{root: root, manifestPath: mp, manifest: m}, nil
}

// analyze inspects the extracted tree, cleans it up according to the
// ingest settings and builds the validation report. A repeated analyze
// starts again from the working archive, so it reaches the same verdict.
func (p *Pipeline) analyze(ctx context.Context, sess *Session, state *models.UploadState) (string, error) {
	treeRoot := sess.UnpackedDir()
	if !state.Unpacked {
		return "", newError(CodeAnalyzeFailed, "The archive has not been unpacked.", nil)
	}
	if state.TreeModified || !util.Exists(treeRoot) {
		zipPath := sess.ZipPath(state)
		if !util.Exists(zipPath) {
			return "", newError(CodeZipMissing, "ZIP file is missing.", nil)
		}
		if err := p.extract(ctx, sess, zipPath); err != nil {
			return "", err
		}
	}
	// Until analyze completes, the working archive may not match the tree.
	state.TreeModified = true
	state.RebuildPending = true

	ingest := p.opts.Ingest
	data := &state.Data
	fsys := os.DirFS(treeRoot)

	loc, err := p.locate(fsys)
	if err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to inspect the archive.", err)
	}
	hadFolder := loc.root != "."

	sizeBefore, countBefore, err := analyzer.SizeAndCount(fsys, loc.root)
	if err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to measure the archive.", err)
	}

	fixed := false
	if !hadFolder {
		fixed, err = analyzer.EnsureTopLevelFolder(treeRoot, loc.manifestPath, ingest.AutoAddTopLevelFolder)
		if err != nil {
			return "", newError(CodeAnalyzeFailed, "Failed to add a top-level folder.", err)
		}
		if fixed {
			if loc, err = p.locate(fsys); err != nil {
				return "", newError(CodeAnalyzeFailed, "Failed to inspect the archive.", err)
			}
		}
	}

	report, err := artifacts.Scan(fsys, artifacts.NewMatcher(ingest.ArtifactPatterns))
	if err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to scan for workspace artifacts.", err)
	}
	if ingest.AutoRemoveWorkspaceArtifacts && len(report) > 0 {
		report = artifacts.Purge(treeRoot, report, p.logger)
	}
	if report == nil {
		report = models.CleanupReport{}
	}

	sizeAfter, countAfter, err := analyzer.SizeAndCount(fsys, loc.root)
	if err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to measure the archive.", err)
	}

	zipName := path.Base(state.ZipPath)
	if data.OriginalZip != nil && data.OriginalZip.BuiltInBrowser && loc.manifest != nil && !hadFolder {
		renamed, err := renameToMainFile(sess, state, loc.manifestPath)
		if err != nil {
			return "", newError(CodeAnalyzeFailed, "Failed to rename the archive.", err)
		}
		zipName = renamed
	}

	folder := loc.root
	if folder == "." {
		folder = strings.TrimSuffix(zipName, path.Ext(zipName))
	}

	data.CleanupInfo = &models.CleanupInfo{
		HasTopLevelFolder:       hadFolder,
		FixedTopLevelFolder:     fixed,
		FoundWorkspaceArtifacts: report,
		SizeBeforeCleanup:       sizeBefore,
		SizeAfterCleanup:        sizeAfter,
		EntryCountBeforeCleanup: countBefore,
		EntryCountAfterCleanup:  countAfter,
		SettingsOnUpload:        ingest.Settings(),
	}
	data.PluginData = loc.manifest
	data.PluginOK = loc.manifest != nil
	data.VersionOK = loc.manifest != nil && version.Normalize(loc.manifest.Version) != ""

	info := &models.PluginInfo{PluginSlug: util.Sanitize(folder)}
	if loc.manifest != nil {
		mainFile := loc.manifestPath
		if loc.root != "." {
			mainFile = strings.TrimPrefix(mainFile, loc.root+"/")
		}
		info.MainFile = mainFile
		info.PluginBasename = folder + "/" + mainFile
		info.NormalizedVersion = version.Normalize(loc.manifest.Version)
		info.ReleaseSlug = util.Sanitize(info.PluginSlug + "_" + info.NormalizedVersion)
		info.Semver = version.IsSemver(loc.manifest.Version)
	}
	rootFS, err := fs.Sub(fsys, loc.root)
	if err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to fingerprint the archive.", err)
	}
	if info.ContentHash, err = analyzer.ContentFingerprint(rootFS); err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to fingerprint the archive.", err)
	}
	data.PluginInfo = info

	if err := relateReleases(p.catalog, data); err != nil {
		return "", newError(CodeAnalyzeFailed, "Failed to look up existing releases.", err)
	}

	zipInfo, err := os.Stat(sess.ZipPath(state))
	if err != nil {
		return "", newError(CodeZipMissing, "ZIP file is missing.", err)
	}
	data.ResultZip = &models.ZipInfo{Name: zipName, Size: zipInfo.Size()}

	if data.PluginOK && (fixed || report.AnyDeleted()) {
		return PhaseRebuild, nil
	}
	state.RebuildPending = false
	return PhaseResult, nil
}

// renameToMainFile names a browser-assembled archive after the plugin's
// main file.
func renameToMainFile(sess *Session, state *models.UploadState, manifestPath string) (string, error) {
	base := path.Base(manifestPath)
	name := strings.TrimSuffix(base, path.Ext(base)) + ".zip"
	current := path.Base(state.ZipPath)
	if name == current {
		return current, nil
	}
	if err := os.Rename(sess.ZipPath(state), filepath.Join(sess.FileDir(), name)); err != nil {
		return "", err
	}
	state.ZipPath = path.Join(fileDir, name)
	return name, nil
}

// relateReleases fills the existing plugin, the release relations and
// the release classification of data from the catalog.
func relateReleases(catalog Catalog, data *models.UploadData) error {
	info := data.PluginInfo
	data.ExistingPlugin = 0
	data.RelatedReleases = &models.VersionRelation{}
	info.IdenticalRelease = nil

	var releases []*models.Release
	if info.PluginSlug != "" {
		plugin, err := catalog.GetPluginBySlug(info.PluginSlug)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			data.ExistingPlugin = plugin.ID
			if releases, err = catalog.ListReleasesByPlugin(plugin.ID); err != nil {
				return err
			}
		}
	}

	refs := make([]models.ReleaseRef, 0, len(releases))
	for _, r := range releases {
		refs = append(refs, r.Ref())
		if info.IdenticalRelease == nil && info.ContentHash != "" && r.ContentHash == info.ContentHash {
			ref := r.Ref()
			info.IdenticalRelease = &ref
		}
	}

	if !data.VersionOK {
		info.ReleaseKind = string(version.KindUnknown)
		info.NaturalSuccessor = false
		info.ExpectedSuccessors = nil
		return nil
	}

	candidate := data.PluginData.Version
	rel := version.Resolve(refs, candidate)
	data.RelatedReleases = &rel

	previous := ""
	if rel.Previous != nil {
		previous = rel.Previous.Version
	}
	info.ReleaseKind = string(version.Classify(previous, candidate))
	info.ExpectedSuccessors = version.ExpectedSuccessors(previous, candidate)
	info.NaturalSuccessor = previous == "" || version.IsNaturalSuccessor(previous, candidate)
	return nil
}

// rebuild writes a fresh archive from the cleaned tree and makes it the
// working archive.
func (p *Pipeline) rebuild(ctx context.Context, sess *Session, state *models.UploadState) (string, error) {
	if state.Data.PluginInfo == nil {
		return "", newError(CodeRebuildFailed, "The archive has not been analyzed.", nil)
	}
	treeRoot := sess.UnpackedDir()
	if !util.Exists(treeRoot) {
		return "", newError(CodeRebuildFailed, "The unpacked archive is missing.", nil)
	}

	zipName := path.Base(state.ZipPath)
	newDir := sess.RebuildDir()
	if err := util.RemoveAllSafely(newDir); err != nil {
		return "", newError(CodeRebuildFailed, "Failed to clear the rebuild directory.", err)
	}
	writer, err := p.archiver.Create(ctx, filepath.Join(newDir, zipName), treeRoot)
	if err != nil {
		return "", newError(CodeRebuildFailed, "Failed to rebuild the archive.", err)
	}

	old := sess.FileDir() + "_old"
	if err := os.Rename(sess.FileDir(), old); err != nil {
		return "", newError(CodeRebuildFailed, "Failed to replace the archive.", err)
	}
	if err := os.Rename(newDir, sess.FileDir()); err != nil {
		if rerr := os.Rename(old, sess.FileDir()); rerr != nil {
			p.logger.Error("failed to restore the original archive",
				zap.String("upload_id", sess.ID), zap.Error(rerr))
		}
		return "", newError(CodeRebuildFailed, "Failed to replace the archive.", err)
	}
	state.ZipPath = path.Join(fileDir, zipName)
	if err := util.RemoveAllSafely(old); err != nil {
		p.logger.Warn("failed to remove replaced archive", zap.String("upload_id", sess.ID), zap.Error(err))
	}
	if err := util.RemoveAllSafely(treeRoot); err != nil {
		p.logger.Warn("failed to remove unpacked tree", zap.String("upload_id", sess.ID), zap.Error(err))
	}

	fi, err := os.Stat(sess.ZipPath(state))
	if err != nil {
		return "", newError(CodeRebuildFailed, "The rebuilt archive is missing.", err)
	}
	state.Data.ResultZip = &models.ZipInfo{Name: zipName, Size: fi.Size(), RebuiltOnServer: writer}
	state.RebuildPending = false
	p.logger.Info("archive rebuilt",
		zap.String("upload_id", sess.ID), zap.String("writer", writer), zap.Int64("size", fi.Size()))
	return PhaseResult, nil
}

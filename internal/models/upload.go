package models

import "time"

// UploadState is the document persisted as cache.json in a session
// workspace. ZipPath is relative to the workspace directory.
type UploadState struct {
	ZipPath string `json:"zip_path"`
	// Unpacked is set once the working archive was extracted.
	Unpacked bool `json:"unpacked,omitempty"`
	// TreeModified marks the extracted tree as changed by analyze. The
	// next analyze extracts the working archive again before it looks.
	TreeModified bool `json:"tree_modified,omitempty"`
	// RebuildPending is set while analyze's request for rebuild_zip is
	// unfulfilled.
	RebuildPending bool       `json:"rebuild_pending,omitempty"`
	Data           UploadData `json:"data"`
}

// UploadData accumulates the output of every phase run so far. The same
// document is stored as the release payload on finalize.
type UploadData struct {
	Phases          map[string]PhaseTiming `json:"phases"`
	OriginalZip     *ZipInfo               `json:"original_zip,omitempty"`
	ResultZip       *ZipInfo               `json:"result_zip,omitempty"`
	ExistingPlugin  int64                  `json:"existing_plugin"`
	PluginOK        bool                   `json:"plugin_ok"`
	VersionOK       bool                   `json:"version_ok"`
	RelatedReleases *VersionRelation       `json:"related_releases"`
	PluginInfo      *PluginInfo            `json:"plugin_info,omitempty"`
	CleanupInfo     *CleanupInfo           `json:"cleanup_info,omitempty"`
	PluginData      *Manifest              `json:"plugin_data"`
}

// PhaseTiming records when a phase ran.
type PhaseTiming struct {
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
	Duration  float64   `json:"duration"`
}

// ZipInfo describes an archive before or after server-side processing.
type ZipInfo struct {
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	MimeType        string `json:"mime_type,omitempty"`
	BuiltInBrowser  bool   `json:"built_in_browser,omitempty"`
	RebuiltOnServer string `json:"rebuilt_on_server,omitempty"`
}

// PluginInfo is what analyze derived about the plugin and its version.
type PluginInfo struct {
	NormalizedVersion  string   `json:"normalized_version"`
	ReleaseSlug        string   `json:"release_slug"`
	MainFile           string   `json:"main_file"`
	PluginBasename     string   `json:"plugin_basename"`
	PluginSlug         string   `json:"plugin_slug"`
	ContentHash        string   `json:"content_hash"`
	ReleaseKind        string   `json:"release_kind"`
	NaturalSuccessor   bool     `json:"natural_successor"`
	ExpectedSuccessors []string `json:"expected_successors,omitempty"`
	Semver             bool     `json:"semver"`
	// IdenticalRelease is an earlier release of the plugin with the same
	// content hash.
	IdenticalRelease *ReleaseRef `json:"identical_release,omitempty"`
}

// CleanupInfo records how the uploaded tree was restructured and cleaned.
type CleanupInfo struct {
	HasTopLevelFolder       bool           `json:"has_top_level_folder"`
	FixedTopLevelFolder     bool           `json:"fixed_top_level_folder"`
	FoundWorkspaceArtifacts CleanupReport  `json:"found_workspace_artifacts"`
	SizeBeforeCleanup       int64          `json:"size_before_cleanup"`
	SizeAfterCleanup        int64          `json:"size_after_cleanup"`
	EntryCountBeforeCleanup int64          `json:"entry_count_before_cleanup"`
	EntryCountAfterCleanup  int64          `json:"entry_count_after_cleanup"`
	SettingsOnUpload        IngestSettings `json:"settings_on_upload"`
}

// IngestSettings snapshots the ingest options that applied to an upload.
type IngestSettings struct {
	AutoAddTopLevelFolder        bool     `json:"auto_add_top_level_folder"`
	AutoRemoveWorkspaceArtifacts bool     `json:"auto_remove_workspace_artifacts"`
	ArtifactPatterns             []string `json:"artifact_patterns"`
}

package upload

import (
	"net/url"
	"strings"

	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

// Check codes reported by the result phase.
const (
	CheckPluginOK          = "plugin_ok"
	CheckVersionOK         = "version_ok"
	CheckReleaseExists     = "release_exists"
	CheckOlderVersion      = "older_version"
	CheckUnexpectedVersion = "unexpected_version"
	CheckBasenameChanged   = "basename_changed"
	CheckUpdateURIDiffers  = "update_uri_differs"
	CheckIdenticalContent  = "identical_content"
)

// Check is one entry of the operator checklist. A failed check blocks
// finalize unless it is informational or overridden by an
// acknowledgement.
type Check struct {
	Code          string `json:"code"`
	OK            bool   `json:"ok"`
	Overridable   bool   `json:"overridable"`
	Informational bool   `json:"informational,omitempty"`
}

// Checklist evaluates the report of an analyzed upload.
func Checklist(data *models.UploadData, publicURL string) []Check {
	rel := data.RelatedReleases
	if rel == nil {
		rel = &models.VersionRelation{}
	}
	info := data.PluginInfo
	if info == nil {
		info = &models.PluginInfo{}
	}
	candidate := ""
	updateURI := ""
	if data.PluginData != nil {
		candidate = data.PluginData.Version
		updateURI = data.PluginData.UpdateURI
	}

	olderOK := true
	if data.VersionOK && rel.Latest != nil {
		olderOK = version.Compare(candidate, rel.Latest.Version) >= 0
	}
	// The basename is held against the release this upload follows.
	basenameOK := true
	if data.VersionOK && rel.Previous != nil {
		basenameOK = rel.Previous.Basename == "" || rel.Previous.Basename == info.PluginBasename
	}

	return []Check{
		{Code: CheckPluginOK, OK: data.PluginOK},
		{Code: CheckVersionOK, OK: data.VersionOK},
		{Code: CheckReleaseExists, OK: rel.Existing == nil, Overridable: true},
		{Code: CheckOlderVersion, OK: olderOK, Overridable: true},
		{Code: CheckUnexpectedVersion, OK: !data.VersionOK || info.NaturalSuccessor, Overridable: true},
		{Code: CheckBasenameChanged, OK: basenameOK, Overridable: true},
		{Code: CheckUpdateURIDiffers, OK: updateURIMatches(updateURI, publicURL), Informational: true},
		{Code: CheckIdenticalContent, OK: info.IdenticalRelease == nil, Informational: true},
	}
}

// updateURIMatches reports whether the plugin's Update URI points at this
// server. Without an Update URI or a known public URL there is nothing to
// compare.
func updateURIMatches(updateURI, publicURL string) bool {
	if updateURI == "" || publicURL == "" {
		return true
	}
	u, err := url.Parse(updateURI)
	if err != nil {
		return false
	}
	pub, err := url.Parse(publicURL)
	if err != nil {
		return true
	}
	host := u.Host
	if host == "" {
		// Update URIs are often written without a scheme.
		host, _, _ = strings.Cut(u.Path, "/")
	}
	return strings.EqualFold(host, pub.Host)
}

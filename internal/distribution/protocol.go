package distribution

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
)

// InstalledPlugin is what a client reports about one installed plugin.
type InstalledPlugin struct {
	Version string `json:"Version"`
}

// UpdateCheckRequest is keyed by plugin basename ("slug/main.php").
type UpdateCheckRequest struct {
	Plugins map[string]InstalledPlugin `json:"plugins"`
}

type Update struct {
	Slug            string   `json:"slug"`
	Plugin          string   `json:"plugin"`
	Version         string   `json:"version"`
	Package         string   `json:"package"`
	Requires        string   `json:"requires,omitempty"`
	RequiresPHP     string   `json:"requires_php,omitempty"`
	RequiresPlugins []string `json:"requires_plugins,omitempty"`
}

type UpdateCheckResponse struct {
	Plugins      map[string]Update `json:"plugins"`
	Translations []any             `json:"translations"`
}

// Info is the plugin_information document.
type Info struct {
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Version          string            `json:"version"`
	Author           string            `json:"author"`
	AuthorProfile    string            `json:"author_profile"`
	Requires         string            `json:"requires,omitempty"`
	RequiresPHP      string            `json:"requires_php,omitempty"`
	RequiresPlugins  []string          `json:"requires_plugins"`
	Homepage         string            `json:"homepage"`
	ShortDescription string            `json:"short_description"`
	DownloadLink     string            `json:"download_link"`
	StableTag        string            `json:"stable_tag"`
	Versions         map[string]string `json:"versions"`
	LastUpdated      string            `json:"last_updated"`
	Added            string            `json:"added"`
}

// DownloadURL builds the package link for a release. An empty version
// links to the latest release.
func DownloadURL(baseURL, slug, ver string) string {
	u := strings.TrimSuffix(baseURL, "/") + "/api/v1/plugins/download/" + url.PathEscape(slug)
	if ver != "" {
		u += "/" + url.PathEscape(ver)
	}
	return u
}

// UpdateCheck reports the latest published release of every plugin in
// the request that this service distributes. The slug is the first
// path segment of each basename.
func (r *Resolver) UpdateCheck(baseURL string, req UpdateCheckRequest) (*UpdateCheckResponse, error) {
	resp := &UpdateCheckResponse{Plugins: map[string]Update{}, Translations: []any{}}

	basenames := make([]string, 0, len(req.Plugins))
	for b := range req.Plugins {
		basenames = append(basenames, b)
	}
	sort.Strings(basenames)

	for _, basename := range basenames {
		slug, _, _ := strings.Cut(basename, "/")
		res, found, err := r.Resolve(slug, "")
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		m := res.Manifest()
		plugin := res.Release.PluginBasename
		if plugin == "" {
			plugin = basename
		}
		resp.Plugins[basename] = Update{
			Slug:            res.Plugin.Slug,
			Plugin:          plugin,
			Version:         res.Release.Version,
			Package:         DownloadURL(baseURL, res.Plugin.Slug, res.Release.Version),
			Requires:        m.RequiresWP,
			RequiresPHP:     m.RequiresPHP,
			RequiresPlugins: splitList(m.RequiresPlugins),
		}
	}
	r.metrics.ObserveDistribution("update_check", len(resp.Plugins) > 0)
	return resp, nil
}

// Info describes the latest published release of a plugin and links to
// every published version.
func (r *Resolver) Info(baseURL, slug string) (*Info, error) {
	info, err := r.info(baseURL, slug)
	r.metrics.ObserveDistribution("info", err == nil)
	return info, err
}

func (r *Resolver) info(baseURL, slug string) (*Info, error) {
	res, found, err := r.Resolve(slug, "")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	m := res.Manifest()
	latest := res.Release

	name := m.Name
	if name == "" {
		name = res.Plugin.Name
	}
	author := m.Author
	if m.AuthorURI != "" {
		author = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(m.AuthorURI), html.EscapeString(m.Author))
	}
	requires := splitList(m.RequiresPlugins)
	if requires == nil {
		requires = []string{}
	}

	versions := make(map[string]string, len(res.Releases)+1)
	for _, rel := range res.Releases {
		versions[rel.Version] = DownloadURL(baseURL, res.Plugin.Slug, rel.Version)
	}
	versions["trunk"] = DownloadURL(baseURL, res.Plugin.Slug, "")

	return &Info{
		Name:             name,
		Slug:             res.Plugin.Slug,
		Version:          latest.Version,
		Author:           author,
		AuthorProfile:    m.AuthorURI,
		Requires:         m.RequiresWP,
		RequiresPHP:      m.RequiresPHP,
		RequiresPlugins:  requires,
		Homepage:         m.PluginURI,
		ShortDescription: m.Description,
		DownloadLink:     DownloadURL(baseURL, res.Plugin.Slug, latest.Version),
		StableTag:        latest.Version,
		Versions:         versions,
		LastUpdated:      latest.UpdatedAt.UTC().Format("2006-01-02 3:04pm") + " GMT",
		Added:            res.Plugin.CreatedAt.UTC().Format("2006-01-02"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

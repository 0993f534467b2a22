package analyzer

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/util"
)

// ManifestExt is the extension of files that may carry a plugin header.
const ManifestExt = ".php"

// headerReadLimit bounds how much of a file is searched for headers.
const headerReadLimit = 8 * 1024

type headerField struct {
	label string
	re    *regexp.Regexp
	set   func(m *models.Manifest, v string)
}

func field(label string, set func(m *models.Manifest, v string)) headerField {
	re := regexp.MustCompile(`(?mi)^(?:[ \t]*<\?php)?[ \t/*#@]*` + regexp.QuoteMeta(label) + `:(.*)$`)
	return headerField{label: label, re: re, set: set}
}

var headerFields = []headerField{
	field("Plugin Name", func(m *models.Manifest, v string) { m.Name = v }),
	field("Plugin URI", func(m *models.Manifest, v string) { m.PluginURI = v }),
	field("Version", func(m *models.Manifest, v string) { m.Version = v }),
	field("Description", func(m *models.Manifest, v string) { m.Description = v }),
	field("Author", func(m *models.Manifest, v string) { m.Author = v }),
	field("Author URI", func(m *models.Manifest, v string) { m.AuthorURI = v }),
	field("Text Domain", func(m *models.Manifest, v string) { m.TextDomain = v }),
	field("Domain Path", func(m *models.Manifest, v string) { m.DomainPath = v }),
	field("Network", func(m *models.Manifest, v string) { m.Network = v }),
	field("Requires at least", func(m *models.Manifest, v string) { m.RequiresWP = v }),
	field("Requires PHP", func(m *models.Manifest, v string) { m.RequiresPHP = v }),
	field("Update URI", func(m *models.Manifest, v string) { m.UpdateURI = v }),
	field("Requires Plugins", func(m *models.Manifest, v string) { m.RequiresPlugins = v }),
}

// Closing comment or PHP tag, and everything after it.
var headerTrailer = regexp.MustCompile(`\s*(?:\*/|\?>).*`)

// ParseManifest reads the plugin header from the start of r. Missing
// headers are left empty.
func ParseManifest(r io.Reader) (*models.Manifest, error) {
	buf, err := io.ReadAll(io.LimitReader(r, headerReadLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read header block: %w", err)
	}
	text := string(bytes.ReplaceAll(buf, []byte("\r"), []byte("\n")))

	m := &models.Manifest{}
	for _, f := range headerFields {
		match := f.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		f.set(m, strings.TrimSpace(headerTrailer.ReplaceAllString(match[1], "")))
	}
	return m, nil
}

// FindManifest searches breadth-first from root, at most maxDepth levels
// below it, for a file carrying a plugin header with a non-empty name.
// Entries of a directory are visited in natural name order. It returns
// the slash-separated path of the first match, or "" when there is none.
func FindManifest(fsys fs.FS, root string, maxDepth int) (string, *models.Manifest, error) {
	level := []string{root}
	for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
		var next []string
		for _, dir := range level {
			entries, err := fs.ReadDir(fsys, dir)
			if err != nil {
				return "", nil, fmt.Errorf("failed to read %s: %w", dir, err)
			}
			sort.Slice(entries, func(i, j int) bool {
				return util.NaturalLess(entries[i].Name(), entries[j].Name())
			})

			for _, e := range entries {
				p := path.Join(dir, e.Name())
				if e.IsDir() {
					next = append(next, p)
					continue
				}
				if !e.Type().IsRegular() || !strings.EqualFold(path.Ext(e.Name()), ManifestExt) {
					continue
				}
				m, err := parseManifestFile(fsys, p)
				if err != nil {
					return "", nil, err
				}
				if m.Name != "" {
					return p, m, nil
				}
			}
		}
		level = next
	}
	return "", nil, nil
}

func parseManifestFile(fsys fs.FS, name string) (*models.Manifest, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	return ParseManifest(f)
}

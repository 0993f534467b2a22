// Package artifacts finds and removes workspace leftovers such as VCS
// metadata, editor folders and OS cruft in an uploaded plugin tree.
package artifacts

import (
	"path"
	"strings"

	"github.com/ryanuber/go-glob"
)

// DefaultPatterns are the artifact patterns used when none are configured.
var DefaultPatterns = []string{
	".git", ".gitignore", ".gitattributes", ".github", ".svn",
	".idea", ".vscode",
	"node_modules", "npm-debug.log", "yarn.lock", "package-lock.json",
	"composer.lock", "composer.json",
	"Thumbs.db", "desktop.ini", "__MACOSX",
	".env", ".env.*",
	"*.log", "*.tmp", "*.bak", "*.orig",
	".DS_Store*", "._*",
}

// Matcher matches base names against glob patterns. Only "*" is a
// wildcard and matching is case-sensitive.
type Matcher struct {
	patterns []string
}

// SanitizePatterns reduces every pattern to its trimmed base name and
// drops empty and duplicate entries.
func SanitizePatterns(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
		p = strings.TrimRight(p, "/")
		if p == "" {
			continue
		}
		p = path.Base(p)
		if p == "." || p == "/" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// NewMatcher builds a Matcher from raw configured patterns.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: SanitizePatterns(patterns)}
}

// Patterns returns the sanitized patterns in use.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether name matches any pattern.
func (m *Matcher) Match(name string) bool {
	for _, p := range m.patterns {
		if glob.Glob(p, name) {
			return true
		}
	}
	return false
}

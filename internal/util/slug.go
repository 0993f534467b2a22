package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	slugInvalid  = regexp.MustCompile(`[^a-z0-9_-]+`)
	slugRepeated = regexp.MustCompile(`-{2,}`)
)

// Sanitize turns a title into a URL-safe slug: accents are folded,
// letters lowercased, and every run of characters other than a-z, 0-9,
// "_" and "-" becomes a single "-". Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(fold, title)
	if err != nil {
		s = title
	}
	s = strings.ToLower(htmlTags.ReplaceAllString(s, ""))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugRepeated.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var (
	fileNameControl = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	fileNameInvalid = regexp.MustCompile(`[\\/:*?"<>|]+`)
)

// SanitizeFileName makes an uploaded file name safe to use as a single
// path component. An empty result means no usable name was given.
func SanitizeFileName(name string) string {
	name = fileNameControl.ReplaceAllString(name, "")
	name = fileNameInvalid.ReplaceAllString(name, "-")
	name = strings.Trim(name, " .-")
	if name == "" || name == ".." {
		return ""
	}
	return name
}

// Package version canonicalizes free-form plugin version strings and
// orders them.
package version

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	separators  = strings.NewReplacer("-", ".", "_", ".", "+", ".")
	letterRun   = regexp.MustCompile(`([^.\d]+)`)
	repeatedDot = regexp.MustCompile(`\.{2,}`)
)

// Normalize returns the canonical dotted form of a raw version string.
// "1.0.0-beta1" becomes "1.0.0.beta.1". Normalize never fails and is
// idempotent.
func Normalize(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return ""
	}
	v = separators.Replace(v)
	v = letterRun.ReplaceAllString(v, ".$1.")
	v = repeatedDot.ReplaceAllString(v, ".")
	return strings.TrimFunc(v, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

// Compare orders two version strings by their normalized forms and
// returns -1, 0 or 1. It returns 0 only when both normalize to the same
// string.
//
// Segments are compared left to right. Numeric segments compare
// numerically. Pre-release words rank below numbers in the order
// dev < alpha (a) < beta (b) < rc, "pl" (p) ranks above numbers, and
// any other word ranks below dev and compares lexically. A missing
// segment ranks just below 0, so 1.0 < 1.0.0 and 1.0.0.beta < 1.0.0.
func Compare(a, b string) int {
	return compareNormalized(Normalize(a), Normalize(b))
}

func compareNormalized(a, b string) int {
	if a == b {
		return 0
	}
	sa, sb := segments(a), segments(b)
	for i := 0; i < max(len(sa), len(sb)); i++ {
		if c := compareSegment(segmentAt(sa, i), segmentAt(sb, i)); c != 0 {
			return c
		}
	}
	// Equivalent segments spelled differently, like "01" and "1".
	return strings.Compare(a, b)
}

func segments(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, ".")
}

const (
	rankWord = iota
	rankDev
	rankAlpha
	rankBeta
	rankRC
	rankNumber
	rankPatchLevel
)

var wordRanks = map[string]int{
	"dev":   rankDev,
	"alpha": rankAlpha,
	"a":     rankAlpha,
	"beta":  rankBeta,
	"b":     rankBeta,
	"rc":    rankRC,
	"pl":    rankPatchLevel,
	"p":     rankPatchLevel,
}

type segment struct {
	rank    int
	missing bool
	value   string
}

func segmentAt(segs []string, i int) segment {
	if i >= len(segs) {
		return segment{rank: rankNumber, missing: true}
	}
	s := segs[i]
	if isDigits(s) {
		trimmed := strings.TrimLeft(s, "0")
		return segment{rank: rankNumber, value: trimmed}
	}
	if r, ok := wordRanks[s]; ok {
		return segment{rank: r}
	}
	return segment{rank: rankWord, value: s}
}

func compareSegment(x, y segment) int {
	if x.rank != y.rank {
		return sign(x.rank - y.rank)
	}
	switch x.rank {
	case rankNumber:
		if x.missing || y.missing {
			switch {
			case x.missing && y.missing:
				return 0
			case x.missing:
				return -1
			default:
				return 1
			}
		}
		// Digits only, so longer means larger once leading zeros are gone.
		if len(x.value) != len(y.value) {
			return sign(len(x.value) - len(y.value))
		}
		return strings.Compare(x.value, y.value)
	case rankWord:
		return strings.Compare(x.value, y.value)
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

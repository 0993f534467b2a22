package version

import (
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ReleaseKind classifies a candidate against the previous release.
type ReleaseKind string

const (
	KindMajor   ReleaseKind = "major"
	KindMinor   ReleaseKind = "minor"
	KindPatch   ReleaseKind = "patch"
	KindUnknown ReleaseKind = "unknown"
)

// numericSegments maps each normalized segment to an int. Words become
// -1 so that incrementing them yields 0.
func numericSegments(v string) []int {
	segs := segments(Normalize(v))
	out := make([]int, len(segs))
	for i, s := range segs {
		n, err := strconv.Atoi(s)
		if err != nil {
			n = -1
		}
		out[i] = n
	}
	return out
}

func padded(segs []int, n int) []int {
	if len(segs) >= n {
		return segs
	}
	out := make([]int, n)
	copy(out, segs)
	return out
}

func join(segs []int) string {
	parts := make([]string, len(segs))
	for i, n := range segs {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// ExpectedSuccessors lists the natural next versions after previous:
// for every position, previous with that segment incremented and all
// later segments zeroed. Both versions are zero-padded to the same
// segment count first, so the candidate's length shapes the result.
// "1.2.0" yields 2.0.0, 1.3.0 and 1.2.1.
func ExpectedSuccessors(previous, candidate string) []string {
	prev := numericSegments(previous)
	if len(prev) == 0 {
		return nil
	}
	n := max(len(prev), len(numericSegments(candidate)))
	prev = padded(prev, n)

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		next := make([]int, n)
		copy(next, prev[:i])
		next[i] = prev[i] + 1
		out = append(out, join(next))
	}
	return out
}

// IsNaturalSuccessor reports whether candidate is one of the expected
// successors of previous.
func IsNaturalSuccessor(previous, candidate string) bool {
	prev, cand := numericSegments(previous), numericSegments(candidate)
	if len(prev) == 0 || len(cand) == 0 {
		return false
	}
	cand = padded(cand, max(len(prev), len(cand)))
	return slices.Contains(ExpectedSuccessors(previous, candidate), join(cand))
}

// Classify reports whether candidate is a new major, minor or patch
// release relative to previous. Without a previous release the shape of
// candidate alone decides: x.0.0 is major, x.y.0 minor, x.y.z patch.
func Classify(previous, candidate string) ReleaseKind {
	cand := padded(numericSegments(candidate), 3)
	if Normalize(previous) == "" {
		switch {
		case cand[1] == 0 && cand[2] == 0:
			return KindMajor
		case cand[1] > 0 && cand[2] == 0:
			return KindMinor
		case cand[2] > 0:
			return KindPatch
		}
		return KindUnknown
	}

	prev := padded(numericSegments(previous), 3)
	switch {
	case cand[0] > prev[0]:
		return KindMajor
	case cand[0] == prev[0] && cand[1] > prev[1]:
		return KindMinor
	case cand[0] == prev[0] && cand[1] == prev[1] && cand[2] > prev[2]:
		return KindPatch
	}
	return KindUnknown
}

// IsSemver reports whether raw is a strict semantic version.
func IsSemver(raw string) bool {
	_, err := semver.StrictNewVersion(strings.TrimSpace(raw))
	return err == nil
}

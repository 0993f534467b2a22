package version

import "github.com/eHtmlu/peak-publisher/internal/models"

// Resolve places candidate among the releases of one plugin in a single
// pass. Previous is the highest release strictly below the candidate,
// Next the lowest strictly above, Latest the highest overall (the
// existing release included) and Existing the release whose normalized
// version equals the candidate. Releases with equal normalized versions
// are never ordered against each other; the first one seen is kept.
func Resolve(releases []models.ReleaseRef, candidate string) models.VersionRelation {
	var rel models.VersionRelation
	cand := Normalize(candidate)

	for _, r := range releases {
		ref := r
		ref.NormalizedVersion = Normalize(r.Version)
		v := ref.NormalizedVersion

		switch c := compareNormalized(v, cand); {
		case c == 0:
			if rel.Existing == nil {
				rel.Existing = &ref
			}
		case c < 0:
			if rel.Previous == nil || compareNormalized(v, rel.Previous.NormalizedVersion) > 0 {
				rel.Previous = &ref
			}
		default:
			if rel.Next == nil || compareNormalized(v, rel.Next.NormalizedVersion) < 0 {
				rel.Next = &ref
			}
		}

		if rel.Latest == nil || compareNormalized(v, rel.Latest.NormalizedVersion) > 0 {
			rel.Latest = &ref
		}
	}
	return rel
}

// Highest returns the index of the release with the highest normalized
// version, or -1 for an empty slice.
func Highest(versions []string) int {
	best := -1
	var bestNorm string
	for i, v := range versions {
		n := Normalize(v)
		if best == -1 || compareNormalized(n, bestNorm) > 0 {
			best, bestNorm = i, n
		}
	}
	return best
}

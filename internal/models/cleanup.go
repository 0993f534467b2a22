package models

// ArtifactKind distinguishes file matches from whole-directory matches.
type ArtifactKind string

const (
	ArtifactFile ArtifactKind = "file"
	ArtifactDir  ArtifactKind = "dir"
)

// ArtifactEntry is one workspace artifact found in an upload tree.
type ArtifactEntry struct {
	Path    string       `json:"path"`
	Kind    ArtifactKind `json:"type"`
	Bytes   int64        `json:"bytes"`
	Count   int64        `json:"count"`
	Deleted bool         `json:"deleted"`
}

// CleanupReport lists artifact matches in walk order.
type CleanupReport []ArtifactEntry

// AnyDeleted reports whether at least one entry was removed.
func (r CleanupReport) AnyDeleted() bool {
	for _, e := range r {
		if e.Deleted {
			return true
		}
	}
	return false
}

package domain

import (
	"context"
	"io"
	"sort"
	"time"
)

// Storage persists compressed artifacts and prunes old ones.
type Storage interface {
	Name() string
	Upload(ctx context.Context, artifactPath string, database string, engine Engine) error
	ApplyRetention(ctx context.Context, cutoff time.Time, scope RetentionScope) (int, error)
}

// ArtifactSource is implemented by storages that restores can read from.
type ArtifactSource interface {
	Latest(ctx context.Context, database string, engine Engine) (*StoredArtifact, error)
	Open(ctx context.Context, artifact *StoredArtifact) (io.ReadCloser, error)
}

// StoredArtifact describes an artifact as listed by a storage backend.
type StoredArtifact struct {
	Key        string
	Name       string
	Size       int64
	ModifiedAt time.Time
	// ID is a backend-specific handle, e.g. a Drive file ID.
	ID string
}

// NewestArtifact picks the most recently modified candidate. Candidates with
// an identical modification time are ordered by name and the greatest wins.
func NewestArtifact(candidates []StoredArtifact) *StoredArtifact {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]StoredArtifact, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ModifiedAt.UTC(), sorted[j].ModifiedAt.UTC()
		if !a.Equal(b) {
			return a.After(b)
		}
		return sorted[i].Name > sorted[j].Name
	})
	newest := sorted[0]
	return &newest
}

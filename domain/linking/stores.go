// Package linking decides when a library should be linked and runs the
// LINK_LIBRARY handler: embedding-similarity candidate generation,
// bounded-concurrency LLM labeling and per-batch persistence with
// resumable progress.
package linking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/extracts"
)

// LibraryStore is the slice of library persistence linking needs.
type LibraryStore interface {
	PaperIDs(ctx context.Context, libraryID uuid.UUID) ([]uuid.UUID, error)
	AddedAt(ctx context.Context, libraryID uuid.UUID) (map[uuid.UUID]time.Time, error)
}

// ExtractStore is the slice of extract persistence linking needs.
type ExtractStore interface {
	LatestByLibrary(ctx context.Context, libraryID uuid.UUID, types []extracts.Type) ([]*extracts.Extract, error)
	VectorsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error)
	CreateLinks(ctx context.Context, links []*extracts.ExtractLink) (int, error)
}

// unlinkedClaims returns the claims not yet covered by a previous
// LINK_LIBRARY run. With no cutoff every claim is new. With a cutoff, a
// claim counts when it was created after the cutoff or when its paper
// joined the library after the cutoff; the latter covers a paper moving
// in with pre-existing extracts.
func unlinkedClaims(claims []*extracts.Extract, addedAt map[uuid.UUID]time.Time, cutoff *time.Time) []*extracts.Extract {
	if cutoff == nil {
		return claims
	}

	out := make([]*extracts.Extract, 0, len(claims))
	for _, c := range claims {
		if c.CreatedAt.After(*cutoff) || addedAt[c.PaperID].After(*cutoff) {
			out = append(out, c)
		}
	}
	return out
}

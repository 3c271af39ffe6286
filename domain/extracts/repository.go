package extracts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/litgraph/litgraph/pkg/logger"
)

// Repository persists extracts, vectors and links.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates the extracts repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("extracts.repo")),
	}
}

func (r *Repository) CreateMany(ctx context.Context, items []*Extract) error {
	if len(items) == 0 {
		return nil
	}
	if _, err := r.db.NewInsert().Model(&items).Exec(ctx); err != nil {
		return fmt.Errorf("create extracts: %w", err)
	}
	return nil
}

func (r *Repository) CreateVectors(ctx context.Context, vectors []*ExtractVector) error {
	if len(vectors) == 0 {
		return nil
	}
	if _, err := r.db.NewInsert().Model(&vectors).Exec(ctx); err != nil {
		return fmt.Errorf("create vectors: %w", err)
	}
	return nil
}

// CountByJobID counts extracts attributed to a job, the idempotency
// check for retried extraction runs.
func (r *Repository) CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().Model((*Extract)(nil)).
		Where("job_id = ?", jobID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count extracts by job: %w", err)
	}
	return count, nil
}

// LatestByLibrary returns the latest-run extracts of the given types
// across all papers in the library. The newest-job-per-(paper,type)
// filter runs in Go so the rule lives in one tested place.
func (r *Repository) LatestByLibrary(ctx context.Context, libraryID uuid.UUID, types []Type) ([]*Extract, error) {
	var all []*Extract
	err := r.db.NewSelect().Model(&all).
		Join("JOIN library_papers AS lp ON lp.paper_id = e.paper_id").
		Where("lp.library_id = ?", libraryID).
		Where("e.type IN (?)", bun.In(types)).
		OrderExpr("e.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest extracts by library: %w", err)
	}
	return LatestPerPaperType(all), nil
}

// VectorsFor loads embeddings for the given extract IDs.
func (r *Repository) VectorsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]float32{}, nil
	}

	var vectors []*ExtractVector
	err := r.db.NewSelect().Model(&vectors).
		Where("extract_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	out := make(map[uuid.UUID][]float32, len(vectors))
	for _, v := range vectors {
		out[v.ExtractID] = v.Embedding
	}
	return out, nil
}

// CreateLinks inserts links, silently ignoring (from_id, to_id)
// duplicates. Returns the number actually created.
func (r *Repository) CreateLinks(ctx context.Context, links []*ExtractLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	res, err := r.db.NewInsert().Model(&links).
		On("CONFLICT (from_id, to_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("create links: %w", err)
	}

	created, _ := res.RowsAffected()
	if int(created) < len(links) {
		r.log.Debug("duplicate links ignored",
			slog.Int("proposed", len(links)),
			slog.Int64("created", created),
		)
	}
	return int(created), nil
}

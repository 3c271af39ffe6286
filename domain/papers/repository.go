package papers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/litgraph/litgraph/pkg/apperror"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Repository persists papers.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates the papers repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("papers.repo")),
	}
}

func (r *Repository) Create(ctx context.Context, paper *Paper) error {
	if _, err := r.db.NewInsert().Model(paper).Exec(ctx); err != nil {
		return fmt.Errorf("create paper: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Paper, error) {
	paper := &Paper{}
	err := r.db.NewSelect().Model(paper).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("paper", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return paper, nil
}

// GetBySHA256 returns nil without error when no paper matches.
func (r *Repository) GetBySHA256(ctx context.Context, sha256 string) (*Paper, error) {
	paper := &Paper{}
	err := r.db.NewSelect().Model(paper).Where("sha256 = ?", sha256).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get paper by sha256: %w", err)
	}
	return paper, nil
}

// SetParsed records the parse output; setting the same parsed_path
// twice is a no-op by construction.
func (r *Repository) SetParsed(ctx context.Context, id uuid.UUID, parsedPath, title string, metadata Metadata) error {
	q := r.db.NewUpdate().Model((*Paper)(nil)).
		Set("parsed_path = ?", parsedPath).
		Set("metadata = metadata || ?", metadata).
		Where("id = ?", id)
	if title != "" {
		q = q.Set("title = ?", title)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("set parsed: %w", err)
	}
	return nil
}

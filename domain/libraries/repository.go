package libraries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/litgraph/litgraph/pkg/apperror"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Repository persists libraries and their paper memberships.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates the libraries repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("libraries.repo")),
	}
}

func (r *Repository) Create(ctx context.Context, library *Library) error {
	if _, err := r.db.NewInsert().Model(library).Exec(ctx); err != nil {
		return fmt.Errorf("create library: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Library, error) {
	library := &Library{}
	err := r.db.NewSelect().Model(library).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("library", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get library: %w", err)
	}
	return library, nil
}

// AddPapers inserts memberships, keeping the original added_at for
// papers already in the library. Returns the IDs actually added.
func (r *Repository) AddPapers(ctx context.Context, libraryID uuid.UUID, paperIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]*LibraryPaper, 0, len(paperIDs))
	for _, paperID := range paperIDs {
		rows = append(rows, &LibraryPaper{
			LibraryID: libraryID,
			PaperID:   paperID,
			AddedAt:   now,
		})
	}

	var added []uuid.UUID
	err := r.db.NewInsert().Model(&rows).
		On("CONFLICT (library_id, paper_id) DO NOTHING").
		Returning("paper_id").
		Scan(ctx, &added)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("add papers to library: %w", err)
	}
	return added, nil
}

// PaperIDs returns every paper in the library.
func (r *Repository) PaperIDs(ctx context.Context, libraryID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().Model((*LibraryPaper)(nil)).
		Column("paper_id").
		Where("library_id = ?", libraryID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("library paper ids: %w", err)
	}
	return ids, nil
}

// AddedAt returns when each paper joined the library.
func (r *Repository) AddedAt(ctx context.Context, libraryID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	var rows []*LibraryPaper
	err := r.db.NewSelect().Model(&rows).
		Where("library_id = ?", libraryID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("library added_at: %w", err)
	}

	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, row := range rows {
		out[row.PaperID] = row.AddedAt
	}
	return out, nil
}

// LibrariesForPaper returns every library containing the paper.
func (r *Repository) LibrariesForPaper(ctx context.Context, paperID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().Model((*LibraryPaper)(nil)).
		Column("library_id").
		Where("paper_id = ?", paperID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("libraries for paper: %w", err)
	}
	return ids, nil
}

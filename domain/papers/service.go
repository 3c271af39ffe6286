package papers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/internal/storage"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Service handles paper upload and lookup. Uploads are deduplicated by
// content hash: identical bytes return the existing paper and enqueue
// nothing.
type Service struct {
	repo        *Repository
	storage     *storage.Service
	jobs        jobs.Store
	maxAttempts int
	log         *slog.Logger
}

// NewService creates the papers service.
func NewService(repo *Repository, store *storage.Service, jobStore jobs.Store, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		storage:     store,
		jobs:        jobStore,
		maxAttempts: cfg.Worker.MaxAttempts,
		log:         log.With(logger.Scope("papers")),
	}
}

// Upload stores a PDF and enqueues parsing. Returns the paper and
// whether it was newly created.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*Paper, bool, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	existing, err := s.repo.GetBySHA256(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.log.Info("duplicate upload collapsed",
			slog.String("paper_id", existing.ID.String()),
			slog.String("filename", filename),
		)
		return existing, false, nil
	}

	paper := &Paper{
		ID:       uuid.New(),
		Title:    filename,
		Filename: filename,
		SHA256:   digest,
		Metadata: Metadata{},
	}
	paper.StoragePath = storage.PaperKey(paper.ID.String(), filename)

	if err := s.storage.Upload(ctx, paper.StoragePath, data, "application/pdf"); err != nil {
		return nil, false, err
	}

	if err := s.repo.Create(ctx, paper); err != nil {
		// A concurrent upload of the same bytes may have won the
		// sha256 uniqueness race.
		if winner, lookupErr := s.repo.GetBySHA256(ctx, digest); lookupErr == nil && winner != nil {
			return winner, false, nil
		}
		return nil, false, err
	}

	if _, err := s.jobs.Enqueue(ctx, jobs.KindParsePaper, jobs.JSONMap{
		jobs.PayloadPaperID: paper.ID.String(),
	}, s.maxAttempts); err != nil {
		return nil, false, fmt.Errorf("enqueue parse job: %w", err)
	}

	s.log.Info("paper uploaded",
		slog.String("paper_id", paper.ID.String()),
		slog.String("filename", filename),
		slog.Int("size", len(data)),
	)
	return paper, true, nil
}

// Get fetches a paper by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Paper, error) {
	return s.repo.GetByID(ctx, id)
}

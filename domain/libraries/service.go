package libraries

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/pkg/logger"
)

// LinkTrigger is the coordination entry point: it decides whether a
// library is ready for a LINK_LIBRARY job and enqueues one if so.
type LinkTrigger interface {
	MaybeEnqueue(ctx context.Context, libraryID uuid.UUID, excludeJobID *uuid.UUID) (bool, string, error)
}

// Service handles library CRUD, membership and processing status.
type Service struct {
	repo    *Repository
	jobs    jobs.Store
	trigger LinkTrigger
	log     *slog.Logger
}

// NewService creates the libraries service.
func NewService(repo *Repository, jobStore jobs.Store, trigger LinkTrigger, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		jobs:    jobStore,
		trigger: trigger,
		log:     log.With(logger.Scope("libraries")),
	}
}

// Create makes a new, empty library.
func (s *Service) Create(ctx context.Context, title string, ownerID *string) (*Library, error) {
	library := &Library{
		ID:      uuid.New(),
		Title:   title,
		OwnerID: ownerID,
	}
	if err := s.repo.Create(ctx, library); err != nil {
		return nil, err
	}
	s.log.Info("library created", slog.String("library_id", library.ID.String()))
	return library, nil
}

// Get fetches a library by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Library, error) {
	return s.repo.GetByID(ctx, id)
}

// AddPapers adds papers to the library and asks coordination whether
// linking should run. Papers already extracted elsewhere make the
// library linkable immediately, so the trigger fires here as well as
// at extraction completion.
func (s *Service) AddPapers(ctx context.Context, libraryID uuid.UUID, paperIDs []uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.repo.GetByID(ctx, libraryID); err != nil {
		return nil, err
	}

	added, err := s.repo.AddPapers(ctx, libraryID, paperIDs)
	if err != nil {
		return nil, err
	}
	s.log.Info("papers added to library",
		slog.String("library_id", libraryID.String()),
		slog.Int("added", len(added)),
	)

	if len(added) > 0 {
		queued, reason, err := s.trigger.MaybeEnqueue(ctx, libraryID, nil)
		if err != nil {
			s.log.Error("link trigger failed", logger.Error(err))
		} else if !queued {
			s.log.Debug("link not queued", slog.String("reason", reason))
		}
	}
	return added, nil
}

// ProcessingStatus reports how many of the library's papers still have
// active parse/extract jobs, and whether a link job is in flight.
func (s *Service) ProcessingStatus(ctx context.Context, libraryID uuid.UUID) (*ProcessingStatus, error) {
	paperIDs, err := s.repo.PaperIDs(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(paperIDs))
	for i, id := range paperIDs {
		values[i] = id.String()
	}

	processing, err := s.jobs.ActiveSubjects(ctx, jobs.ExtractionKinds, jobs.PayloadPaperID, values, nil)
	if err != nil {
		return nil, err
	}

	linking, err := s.jobs.HasActiveForSubject(ctx, []jobs.Kind{jobs.KindLinkLibrary}, jobs.PayloadLibraryID, libraryID.String(), nil)
	if err != nil {
		return nil, err
	}

	return &ProcessingStatus{
		PapersProcessing: len(processing),
		LibraryLinking:   linking,
	}, nil
}

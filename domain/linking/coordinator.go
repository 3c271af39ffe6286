package linking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Skip reasons returned by MaybeEnqueue.
const (
	ReasonQueued           = "queued"
	ReasonPapersProcessing = "papers_processing"
	ReasonRecentlyQueued   = "recently_queued"
	ReasonNothingToDo      = "nothing_to_do"
)

// linkCutoffStatuses define which previous LINK_LIBRARY runs move the
// cutoff forward: completed runs did the work, running runs are about
// to. Pending runs have no claimed_at yet.
var linkCutoffStatuses = []jobs.Status{jobs.StatusCompleted, jobs.StatusRunning}

// Coordinator gates LINK_LIBRARY. It is called after extraction
// finishes for a paper and after the API adds papers to a library.
type Coordinator struct {
	jobs      jobs.Store
	libraries LibraryStore
	extracts  ExtractStore
	cfg       *config.Config
	log       *slog.Logger
}

// NewCoordinator creates the linking coordinator.
func NewCoordinator(jobStore jobs.Store, libraryStore LibraryStore, extractStore ExtractStore, cfg *config.Config, log *slog.Logger) *Coordinator {
	return &Coordinator{
		jobs:      jobStore,
		libraries: libraryStore,
		extracts:  extractStore,
		cfg:       cfg,
		log:       log.With(logger.Scope("linking.coordinator")),
	}
}

// MaybeEnqueue runs the three gating checks in order and enqueues a
// LINK_LIBRARY job when they all pass. Returns whether a job was
// queued and, if not, why.
//
// The debounce check looks only at pending jobs: a running link job on
// the same library is acceptable because each run respects its own
// cutoff.
func (c *Coordinator) MaybeEnqueue(ctx context.Context, libraryID uuid.UUID, excludeJobID *uuid.UUID) (bool, string, error) {
	paperIDs, err := c.libraries.PaperIDs(ctx, libraryID)
	if err != nil {
		return false, "", err
	}
	values := make([]string, len(paperIDs))
	for i, id := range paperIDs {
		values[i] = id.String()
	}

	processing, err := c.jobs.ActiveSubjects(ctx, jobs.ExtractionKinds, jobs.PayloadPaperID, values, excludeJobID)
	if err != nil {
		return false, "", err
	}
	if len(processing) > 0 {
		return false, ReasonPapersProcessing, nil
	}

	recent, err := c.jobs.RecentPendingForSubject(ctx, jobs.KindLinkLibrary, jobs.PayloadLibraryID, libraryID.String(), c.cfg.Linking.DebounceWindow)
	if err != nil {
		return false, "", err
	}
	if recent {
		return false, ReasonRecentlyQueued, nil
	}

	cutoff, err := c.jobs.LastClaimedAtForSubject(ctx, jobs.KindLinkLibrary, jobs.PayloadLibraryID, libraryID.String(), linkCutoffStatuses)
	if err != nil {
		return false, "", err
	}

	hasWork, err := c.hasUnlinked(ctx, libraryID, cutoff)
	if err != nil {
		return false, "", err
	}
	if !hasWork {
		return false, ReasonNothingToDo, nil
	}

	payload := jobs.JSONMap{jobs.PayloadLibraryID: libraryID.String()}
	if cutoff != nil {
		payload[jobs.PayloadCutoff] = cutoff.UTC().Format(time.RFC3339Nano)
	}

	job, err := c.jobs.Enqueue(ctx, jobs.KindLinkLibrary, payload, c.cfg.Worker.MaxAttempts)
	if err != nil {
		return false, "", err
	}

	c.log.Info("link job queued",
		slog.String("library_id", libraryID.String()),
		slog.String("job_id", job.ID.String()),
		slog.Any("cutoff", cutoff),
	)
	return true, ReasonQueued, nil
}

// hasUnlinked reports whether the library has linking work left. A
// library never linked before needs at least one claim and one
// observation; after a prior run, any claim newer than the cutoff or
// belonging to a paper added after the cutoff qualifies.
func (c *Coordinator) hasUnlinked(ctx context.Context, libraryID uuid.UUID, cutoff *time.Time) (bool, error) {
	latest, err := c.extracts.LatestByLibrary(ctx, libraryID, []extracts.Type{extracts.TypeClaim, extracts.TypeObservation})
	if err != nil {
		return false, err
	}

	var claims []*extracts.Extract
	observations := 0
	for _, e := range latest {
		switch e.Type {
		case extracts.TypeClaim:
			claims = append(claims, e)
		case extracts.TypeObservation:
			observations++
		}
	}

	if cutoff == nil {
		return len(claims) > 0 && observations > 0, nil
	}

	addedAt, err := c.libraries.AddedAt(ctx, libraryID)
	if err != nil {
		return false, err
	}
	return len(unlinkedClaims(claims, addedAt, cutoff)) > 0, nil
}

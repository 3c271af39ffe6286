// Package extraction runs the EXTRACT_ELEMENTS stage: pull claims,
// methods and observations out of a parsed paper with the LLM, embed
// the embeddable ones and notify library coordination.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/domain/libraries"
	"github.com/litgraph/litgraph/domain/papers"
	"github.com/litgraph/litgraph/domain/parsing"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/pkg/embeddings"
	"github.com/litgraph/litgraph/pkg/llm"
	"github.com/litgraph/litgraph/pkg/logger"
)

// PaperStore is the slice of the papers repository this handler reads.
type PaperStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*papers.Paper, error)
}

// ExtractStore persists extracted elements and their vectors.
type ExtractStore interface {
	CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error)
	CreateMany(ctx context.Context, items []*extracts.Extract) error
	CreateVectors(ctx context.Context, vectors []*extracts.ExtractVector) error
}

// LibraryStore lists the libraries a paper belongs to.
type LibraryStore interface {
	LibrariesForPaper(ctx context.Context, paperID uuid.UUID) ([]uuid.UUID, error)
}

// ObjectStore fetches the stored TEI.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Handler processes EXTRACT_ELEMENTS jobs.
type Handler struct {
	papers    PaperStore
	extracts  ExtractStore
	libraries LibraryStore
	storage   ObjectStore
	extractor *Extractor
	embedder  embeddings.Client
	trigger   libraries.LinkTrigger
	log       *slog.Logger
}

// NewHandler creates the extraction handler.
func NewHandler(
	paperRepo PaperStore,
	extractRepo ExtractStore,
	libraryRepo LibraryStore,
	store ObjectStore,
	provider llm.Provider,
	embedder embeddings.Client,
	trigger libraries.LinkTrigger,
	cfg *config.Config,
	log *slog.Logger,
) *Handler {
	return &Handler{
		papers:    paperRepo,
		extracts:  extractRepo,
		libraries: libraryRepo,
		storage:   store,
		extractor: NewExtractor(provider, cfg.LLM.MaxOutputTokens),
		embedder:  embedder,
		trigger:   trigger,
		log:       log.With(logger.Scope("extraction")),
	}
}

func (h *Handler) Kind() jobs.Kind { return jobs.KindExtractElements }

// Handle extracts elements from the paper's TEI. Reruns of a job that
// already wrote extracts are skipped so retries after a crash between
// persistence and completion do not duplicate elements.
func (h *Handler) Handle(ctx context.Context, job *jobs.Job) (jobs.JSONMap, error) {
	paperID, err := uuid.Parse(job.Payload.String(jobs.PayloadPaperID))
	if err != nil {
		return nil, fmt.Errorf("invalid paper_id in payload: %w", err)
	}

	paper, err := h.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if !paper.Parsed() {
		return nil, fmt.Errorf("paper %s has not been parsed", paperID)
	}

	existing, err := h.extracts.CountByJobID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		h.log.Info("extraction already ran for this job, skipping",
			slog.String("job_id", job.ID.String()),
			slog.Int("existing", existing),
		)
		return jobs.JSONMap{
			"paper_id": paperID.String(),
			"skipped":  true,
			"reason":   "already_ran",
		}, nil
	}

	tei, err := h.storage.Download(ctx, *paper.ParsedPath)
	if err != nil {
		return nil, fmt.Errorf("download tei: %w", err)
	}
	doc, err := parsing.ParseTEI(tei)
	if err != nil {
		return nil, err
	}
	text := doc.FullText()
	if text == "" {
		return nil, fmt.Errorf("paper %s has no extractable text", paperID)
	}

	var usage llm.Usage

	claims, u, err := h.extractor.Claims(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	usage.Add(u)

	methods, u, err := h.extractor.Methods(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract methods: %w", err)
	}
	usage.Add(u)

	observations, u, err := h.extractor.Observations(ctx, text, methods)
	if err != nil {
		return nil, fmt.Errorf("extract observations: %w", err)
	}
	usage.Add(u)

	now := time.Now().UTC()
	rows := make([]*extracts.Extract, 0, len(claims)+len(methods)+len(observations))
	embeddable := make([]*extracts.Extract, 0, len(claims)+len(observations))

	for _, c := range claims {
		row := &extracts.Extract{
			ID:      uuid.New(),
			PaperID: paperID,
			JobID:   job.ID,
			Type:    extracts.TypeClaim,
			Content: extracts.JSONMap{
				extracts.ContentText:           c.Text,
				extracts.ContentRephrasedClaim: c.RephrasedClaim,
			},
			CreatedAt: now,
		}
		rows = append(rows, row)
		embeddable = append(embeddable, row)
	}

	// Observations reference methods by the short id the model
	// assigned; translate to the stored method's UUID.
	methodIDs := make(map[string]uuid.UUID, len(methods))
	for _, m := range methods {
		row := &extracts.Extract{
			ID:      uuid.New(),
			PaperID: paperID,
			JobID:   job.ID,
			Type:    extracts.TypeMethod,
			Content: extracts.JSONMap{
				extracts.ContentName:          m.Name,
				extracts.ContentMethodSummary: m.MethodSummary,
			},
			CreatedAt: now,
		}
		rows = append(rows, row)
		if m.ID != "" {
			methodIDs[m.ID] = row.ID
		}
	}

	observationsSkipped := 0
	for _, o := range observations {
		content := extracts.JSONMap{extracts.ContentText: o.Text}
		if o.MethodReference != "" {
			methodID, ok := methodIDs[o.MethodReference]
			if !ok {
				observationsSkipped++
				continue
			}
			content[extracts.ContentMethodReference] = methodID.String()
		}
		row := &extracts.Extract{
			ID:        uuid.New(),
			PaperID:   paperID,
			JobID:     job.ID,
			Type:      extracts.TypeObservation,
			Content:   content,
			CreatedAt: now,
		}
		rows = append(rows, row)
		embeddable = append(embeddable, row)
	}

	vectors, err := h.embed(ctx, embeddable)
	if err != nil {
		return nil, err
	}

	if err := h.extracts.CreateMany(ctx, rows); err != nil {
		return nil, err
	}
	if err := h.extracts.CreateVectors(ctx, vectors); err != nil {
		return nil, err
	}

	h.notifyLibraries(ctx, paperID, job.ID)

	h.log.Info("elements extracted",
		slog.String("paper_id", paperID.String()),
		slog.Int("claims", len(claims)),
		slog.Int("methods", len(methods)),
		slog.Int("observations", len(observations)-observationsSkipped),
		slog.Int("observations_skipped", observationsSkipped),
	)

	return jobs.JSONMap{
		"job_id":               job.ID.String(),
		"paper_id":             paperID.String(),
		"claims_count":         len(claims),
		"methods_count":        len(methods),
		"observations_count":   len(observations) - observationsSkipped,
		"observations_skipped": observationsSkipped,
		"usage":                usage,
	}, nil
}

// embed embeds claims and observations in one batch. A missing
// embeddings configuration degrades to no vectors rather than failing
// extraction; linking then sees no candidates for this paper.
func (h *Handler) embed(ctx context.Context, rows []*extracts.Extract) ([]*extracts.ExtractVector, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if !h.embedder.IsConfigured() {
		h.log.Warn("embeddings not configured, skipping vectors")
		return nil, nil
	}

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Text()
	}

	vectors, err := h.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed extracts: %w", err)
	}

	out := make([]*extracts.ExtractVector, len(rows))
	for i, row := range rows {
		out[i] = &extracts.ExtractVector{ExtractID: row.ID, Embedding: vectors[i]}
	}
	return out, nil
}

// notifyLibraries asks coordination to consider each library containing
// the paper, excluding this job from the papers-processing check.
// Trigger failures are logged, not fatal: extraction succeeded.
func (h *Handler) notifyLibraries(ctx context.Context, paperID, jobID uuid.UUID) {
	libraryIDs, err := h.libraries.LibrariesForPaper(ctx, paperID)
	if err != nil {
		h.log.Error("list libraries for paper", logger.Error(err))
		return
	}

	for _, libraryID := range libraryIDs {
		queued, reason, err := h.trigger.MaybeEnqueue(ctx, libraryID, &jobID)
		if err != nil {
			h.log.Error("link trigger failed",
				slog.String("library_id", libraryID.String()),
				logger.Error(err),
			)
			continue
		}
		if !queued {
			h.log.Debug("link not queued",
				slog.String("library_id", libraryID.String()),
				slog.String("reason", reason),
			)
		}
	}
}

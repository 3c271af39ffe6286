// Package parsing runs the PARSE_PAPER stage: fetch the PDF, convert
// it to TEI through GROBID, persist the parse output and queue element
// extraction.
package parsing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/papers"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/internal/storage"
	"github.com/litgraph/litgraph/pkg/grobid"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Handler processes PARSE_PAPER jobs.
type Handler struct {
	papers  *papers.Repository
	storage *storage.Service
	grobid  *grobid.Client
	jobs    jobs.Store
	cfg     *config.Config
	log     *slog.Logger
}

// NewHandler creates the parse handler.
func NewHandler(
	paperRepo *papers.Repository,
	store *storage.Service,
	grobidClient *grobid.Client,
	jobStore jobs.Store,
	cfg *config.Config,
	log *slog.Logger,
) *Handler {
	return &Handler{
		papers:  paperRepo,
		storage: store,
		grobid:  grobidClient,
		jobs:    jobStore,
		cfg:     cfg,
		log:     log.With(logger.Scope("parsing")),
	}
}

func (h *Handler) Kind() jobs.Kind { return jobs.KindParsePaper }

// Handle downloads the paper's PDF, parses it with GROBID, stores the
// TEI, records title and metadata on the paper row and enqueues
// EXTRACT_ELEMENTS for the same paper.
func (h *Handler) Handle(ctx context.Context, job *jobs.Job) (jobs.JSONMap, error) {
	paperID, err := uuid.Parse(job.Payload.String(jobs.PayloadPaperID))
	if err != nil {
		return nil, fmt.Errorf("invalid paper_id in payload: %w", err)
	}

	paper, err := h.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, err
	}

	pdf, err := h.storage.Download(ctx, paper.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("download pdf: %w", err)
	}

	tei, err := h.grobid.ProcessFulltext(ctx, paper.Filename, pdf)
	if err != nil {
		return nil, fmt.Errorf("grobid parse: %w", err)
	}

	doc, err := ParseTEI(tei)
	if err != nil {
		return nil, err
	}

	parsedPath := storage.ParsedKey(paperID.String())
	if err := h.storage.Upload(ctx, parsedPath, tei, "application/xml"); err != nil {
		return nil, fmt.Errorf("store tei: %w", err)
	}

	metadata := papers.Metadata{
		"abstract":         doc.Abstract,
		"references_count": doc.ReferencesCount,
		"figure_count":     doc.FigureCount,
	}
	if err := h.papers.SetParsed(ctx, paperID, parsedPath, doc.Title, metadata); err != nil {
		return nil, err
	}

	next, err := h.jobs.Enqueue(ctx, jobs.KindExtractElements,
		jobs.JSONMap{jobs.PayloadPaperID: paperID.String()},
		h.cfg.Worker.MaxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue extraction: %w", err)
	}

	h.log.Info("paper parsed",
		slog.String("paper_id", paperID.String()),
		slog.String("title", doc.Title),
		slog.Int("tei_size", len(tei)),
		slog.String("next_job_id", next.ID.String()),
	)

	return jobs.JSONMap{
		"paper_id":          paperID.String(),
		"parsed_path":       parsedPath,
		"tei_size":          len(tei),
		"title":             doc.Title,
		"references_count":  doc.ReferencesCount,
		"figures_extracted": doc.FigureCount,
		"extraction_job":    next.ID.String(),
	}, nil
}

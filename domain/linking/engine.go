package linking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
	"github.com/litgraph/litgraph/pkg/llm"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Handler processes LINK_LIBRARY jobs.
type Handler struct {
	jobs      jobs.Store
	libraries LibraryStore
	extracts  ExtractStore
	provider  llm.Provider
	cfg       *config.Config
	log       *slog.Logger
}

// NewHandler creates the linking handler.
func NewHandler(jobStore jobs.Store, libraryStore LibraryStore, extractStore ExtractStore, provider llm.Provider, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		jobs:      jobStore,
		libraries: libraryStore,
		extracts:  extractStore,
		provider:  provider,
		cfg:       cfg,
		log:       log.With(logger.Scope("linking.engine")),
	}
}

func (h *Handler) Kind() jobs.Kind { return jobs.KindLinkLibrary }

// materialized is the engine's working set for one run.
type materialized struct {
	inputs          []*extracts.Extract // unlinked claims with embeddings
	claimIDs        []uuid.UUID         // every claim in the library
	claimByID       map[uuid.UUID]*extracts.Extract
	claimSet        map[uuid.UUID]bool
	obsSet          map[uuid.UUID]bool
	obsByPaper      map[uuid.UUID][]*extracts.Extract
	obsByMethod     map[uuid.UUID][]*extracts.Extract
	methods         []*extracts.Extract
	methodSummaries map[uuid.UUID]string
	vectors         map[uuid.UUID][]float32
}

// Handle links a library's new claims against its claims and
// observations. Work is checkpointed per batch into the job's progress
// so a retried attempt resumes instead of repeating LLM calls.
func (h *Handler) Handle(ctx context.Context, job *jobs.Job) (jobs.JSONMap, error) {
	libraryID, err := uuid.Parse(job.Payload.String(jobs.PayloadLibraryID))
	if err != nil {
		return nil, fmt.Errorf("invalid library_id in payload: %w", err)
	}

	var cutoff *time.Time
	if s := job.Payload.String(jobs.PayloadCutoff); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid cutoff in payload: %w", err)
		}
		cutoff = &t
	}

	workerID := ""
	if job.ClaimedBy != nil {
		workerID = *job.ClaimedBy
	}

	m, err := h.materialize(ctx, libraryID, cutoff)
	if err != nil {
		return nil, err
	}

	rawProgress, err := h.jobs.GetProgress(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	progress := ParseProgress(rawProgress)

	var usage llm.Usage

	c2cFound, c2cCreated, err := h.claimToClaim(ctx, job.ID, workerID, m, progress, &usage)
	if err != nil {
		return nil, err
	}

	c2oFound, c2oCreated, dropped, err := h.claimToObservation(ctx, job.ID, workerID, m, progress, &usage)
	if err != nil {
		return nil, err
	}

	h.log.Info("library linked",
		slog.String("library_id", libraryID.String()),
		slog.Int("claims_processed", len(m.inputs)),
		slog.Int("c2c_links_created", c2cCreated),
		slog.Int("c2o_links_created", c2oCreated),
	)

	return jobs.JSONMap{
		"library_id":        libraryID.String(),
		"claims_processed":  len(m.inputs),
		"c2c_links_found":   c2cFound,
		"c2c_links_created": c2cCreated,
		"c2o_links_found":   c2oFound,
		"c2o_links_created": c2oCreated,
		"invalid_dropped":   dropped,
		"status":            "complete",
		"usage":             usage,
	}, nil
}

// materialize builds the run's working set: the latest extracts per
// paper and type, the unlinked input claims, and their embeddings.
// Claims without an embedding cannot generate candidates and are
// dropped with a warning.
func (h *Handler) materialize(ctx context.Context, libraryID uuid.UUID, cutoff *time.Time) (*materialized, error) {
	latest, err := h.extracts.LatestByLibrary(ctx, libraryID,
		[]extracts.Type{extracts.TypeClaim, extracts.TypeObservation, extracts.TypeMethod})
	if err != nil {
		return nil, err
	}

	m := &materialized{
		claimByID:       map[uuid.UUID]*extracts.Extract{},
		claimSet:        map[uuid.UUID]bool{},
		obsSet:          map[uuid.UUID]bool{},
		obsByPaper:      map[uuid.UUID][]*extracts.Extract{},
		obsByMethod:     map[uuid.UUID][]*extracts.Extract{},
		methodSummaries: map[uuid.UUID]string{},
	}

	var claims []*extracts.Extract
	for _, e := range latest {
		switch e.Type {
		case extracts.TypeClaim:
			claims = append(claims, e)
			m.claimIDs = append(m.claimIDs, e.ID)
			m.claimByID[e.ID] = e
			m.claimSet[e.ID] = true
		case extracts.TypeObservation:
			m.obsSet[e.ID] = true
			m.obsByPaper[e.PaperID] = append(m.obsByPaper[e.PaperID], e)
			if ref := e.Content.String(extracts.ContentMethodReference); ref != "" {
				if methodID, err := uuid.Parse(ref); err == nil {
					m.obsByMethod[methodID] = append(m.obsByMethod[methodID], e)
				}
			}
		case extracts.TypeMethod:
			m.methods = append(m.methods, e)
			m.methodSummaries[e.ID] = e.Content.String(extracts.ContentMethodSummary)
		}
	}

	var addedAt map[uuid.UUID]time.Time
	if cutoff != nil {
		addedAt, err = h.libraries.AddedAt(ctx, libraryID)
		if err != nil {
			return nil, err
		}
	}
	unlinked := unlinkedClaims(claims, addedAt, cutoff)

	m.vectors, err = h.extracts.VectorsFor(ctx, m.claimIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range unlinked {
		if _, ok := m.vectors[c.ID]; !ok {
			h.log.Warn("claim has no embedding, skipping",
				slog.String("claim_id", c.ID.String()),
			)
			continue
		}
		m.inputs = append(m.inputs, c)
	}
	return m, nil
}

// pairResult carries one labeled pair back from the fan-out.
type pairResult struct {
	pair    candidatePair
	verdict pairVerdict
	usage   llm.Usage
}

// claimToClaim runs Phase B: candidate pairs by cosine similarity, one
// LLM call per pair under a concurrency cap, links persisted per input
// batch with a progress checkpoint.
func (h *Handler) claimToClaim(ctx context.Context, jobID uuid.UUID, workerID string, m *materialized, progress *Progress, usage *llm.Usage) (found, created int, err error) {
	pending := make([]*extracts.Extract, 0, len(m.inputs))
	for _, c := range m.inputs {
		if !progress.C2CDone[c.ID] {
			pending = append(pending, c)
		}
	}

	seen := map[pairKey]bool{}
	for _, batch := range batches(pending, h.cfg.Linking.BatchSize) {
		if err := ctx.Err(); err != nil {
			return found, created, err
		}

		var pairs []candidatePair
		for _, claim := range batch {
			pairs = append(pairs,
				candidatePairs(claim.ID, m.vectors, m.claimIDs, h.cfg.Linking.SimilarityThreshold, seen)...)
		}

		results := make([]pairResult, len(pairs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(h.cfg.Linking.C2CConcurrency)
		for i, pair := range pairs {
			g.Go(func() error {
				text1 := m.claimByID[pair.A].Text()
				text2 := m.claimByID[pair.B].Text()
				verdict, u, err := labelPair(gctx, h.provider, h.cfg.LLM.MaxOutputTokens, text1, text2)
				if err != nil {
					h.log.Warn("pairwise call failed, treating as none", logger.Error(err))
					verdict = pairVerdict{Label: labelNone}
				}
				results[i] = pairResult{pair: pair, verdict: verdict, usage: u}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return found, created, err
		}

		var links []*extracts.ExtractLink
		for _, r := range results {
			usage.Add(r.usage)
			link := h.pairLink(jobID, m, r)
			if link != nil {
				links = append(links, link)
			}
		}

		found += len(links)
		n, err := h.extracts.CreateLinks(ctx, links)
		if err != nil {
			return found, created, err
		}
		created += n

		for _, claim := range batch {
			progress.C2CDone[claim.ID] = true
		}
		if err := h.jobs.PutProgress(ctx, jobID, workerID, progress.ToMap()); err != nil {
			return found, created, err
		}
	}
	return found, created, nil
}

// pairLink converts a pair verdict into a link row, or nil for "none".
// Symmetric labels get their endpoints ordered by ID so re-runs and
// the reverse pairing collapse onto one row; premise links keep the
// premise first.
func (h *Handler) pairLink(jobID uuid.UUID, m *materialized, r pairResult) *extracts.ExtractLink {
	from, to := r.pair.A, r.pair.B
	linkType := r.verdict.Label

	switch r.verdict.Label {
	case labelNone:
		return nil
	case labelDuplicate, labelVariant, labelContradiction:
		key := newPairKey(from, to)
		from, to = key.lo, key.hi
	case labelPremise1to2:
		linkType = extracts.LinkPremise
	case labelPremise2to1:
		linkType = extracts.LinkPremise
		from, to = to, from
	}

	if !m.claimSet[from] || !m.claimSet[to] {
		h.log.Warn("pair link endpoint outside library, dropping",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		return nil
	}

	return &extracts.ExtractLink{
		ID:     uuid.New(),
		FromID: from,
		ToID:   to,
		Content: extracts.JSONMap{
			extracts.ContentLinkCategory: extracts.CategoryClaimToClaim,
			extracts.ContentLinkType:     linkType,
			extracts.ContentReasoning:    r.verdict.Reasoning,
		},
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
	}
}

// claimResult carries one claim's evidence verdicts back from the
// fan-out.
type claimResult struct {
	claim   *extracts.Extract
	links   []evidenceLink
	dropped int
	usage   llm.Usage
}

// claimToObservation runs Phase C: per input claim, method preselection
// then one grouped evidence call, links persisted per batch with a
// progress checkpoint. Per-claim LLM failures degrade to no links for
// that claim; they never fail the job.
func (h *Handler) claimToObservation(ctx context.Context, jobID uuid.UUID, workerID string, m *materialized, progress *Progress, usage *llm.Usage) (found, created, dropped int, err error) {
	pending := make([]*extracts.Extract, 0, len(m.inputs))
	for _, c := range m.inputs {
		if !progress.C2ODone[c.ID] {
			pending = append(pending, c)
		}
	}

	for _, batch := range batches(pending, h.cfg.Linking.BatchSize) {
		if err := ctx.Err(); err != nil {
			return found, created, dropped, err
		}

		results := make([]claimResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(h.cfg.Linking.C2OConcurrency)
		for i, claim := range batch {
			g.Go(func() error {
				results[i] = h.evidenceForClaim(gctx, m, claim)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return found, created, dropped, err
		}

		var links []*extracts.ExtractLink
		for _, r := range results {
			usage.Add(r.usage)
			dropped += r.dropped
			for _, ev := range r.links {
				links = append(links, &extracts.ExtractLink{
					ID:     uuid.New(),
					FromID: r.claim.ID,
					ToID:   ev.ObservationID,
					Content: extracts.JSONMap{
						extracts.ContentLinkCategory: extracts.CategoryClaimToObservation,
						extracts.ContentLinkType:     ev.LinkType,
						extracts.ContentReasoning:    ev.Reasoning,
					},
					JobID:     jobID,
					CreatedAt: time.Now().UTC(),
				})
			}
		}

		found += len(links)
		n, err := h.extracts.CreateLinks(ctx, links)
		if err != nil {
			return found, created, dropped, err
		}
		created += n

		for _, claim := range batch {
			progress.C2ODone[claim.ID] = true
		}
		if err := h.jobs.PutProgress(ctx, jobID, workerID, progress.ToMap()); err != nil {
			return found, created, dropped, err
		}
	}
	return found, created, dropped, nil
}

// evidenceForClaim preselects methods for one claim and labels its
// candidate observations. Candidates are the observations of the
// selected methods plus everything from the claim's own paper, which
// is always relevant regardless of method selection.
func (h *Handler) evidenceForClaim(ctx context.Context, m *materialized, claim *extracts.Extract) claimResult {
	result := claimResult{claim: claim}

	selected, u, err := selectMethods(ctx, h.provider, h.cfg.LLM.MaxOutputTokens, claim.Text(), m.methods)
	result.usage.Add(u)
	if err != nil {
		h.log.Warn("method preselection failed, using same-paper observations only",
			slog.String("claim_id", claim.ID.String()),
			logger.Error(err),
		)
		selected = nil
	}

	samePaper := m.obsByPaper[claim.PaperID]
	inSamePaper := make(map[uuid.UUID]bool, len(samePaper))
	for _, o := range samePaper {
		inSamePaper[o.ID] = true
	}

	var general []*extracts.Extract
	generalSeen := map[uuid.UUID]bool{}
	for _, methodID := range selected {
		for _, o := range m.obsByMethod[methodID] {
			if inSamePaper[o.ID] || generalSeen[o.ID] {
				continue
			}
			generalSeen[o.ID] = true
			general = append(general, o)
		}
	}

	links, dropped, u, err := labelEvidence(ctx, h.provider, h.cfg.LLM.MaxOutputTokens,
		claim.Text(), samePaper, general, m.methodSummaries, m.obsSet)
	result.usage.Add(u)
	if err != nil {
		h.log.Warn("evidence call failed, no links for claim",
			slog.String("claim_id", claim.ID.String()),
			logger.Error(err),
		)
		return result
	}

	result.links = links
	result.dropped = dropped
	return result
}

// batches splits items into slices of at most size.
func batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

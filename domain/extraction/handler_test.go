package extraction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/domain/papers"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/internal/jobs"
)

const handlerTEI = `<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <fileDesc><titleStmt><title>Sleep and Recall</title></titleStmt></fileDesc>
    <profileDesc><abstract><div><p>Sleep loss impairs recall.</p></div></abstract></profileDesc>
  </teiHeader>
  <text><body><div><p>We measured free recall after 24 hours awake.</p></div></body></text>
</TEI>`

type fakePaperStore struct {
	paper *papers.Paper
}

func (f *fakePaperStore) GetByID(_ context.Context, _ uuid.UUID) (*papers.Paper, error) {
	return f.paper, nil
}

type fakeExtractStore struct {
	mu      sync.Mutex
	rows    []*extracts.Extract
	vectors []*extracts.ExtractVector
}

func (f *fakeExtractStore) CountByJobID(_ context.Context, jobID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if row.JobID == jobID {
			count++
		}
	}
	return count, nil
}

func (f *fakeExtractStore) CreateMany(_ context.Context, items []*extracts.Extract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, items...)
	return nil
}

func (f *fakeExtractStore) CreateVectors(_ context.Context, vectors []*extracts.ExtractVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = append(f.vectors, vectors...)
	return nil
}

type fakeLibraryStore struct {
	libraries []uuid.UUID
}

func (f *fakeLibraryStore) LibrariesForPaper(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.libraries, nil
}

type fakeObjectStore struct {
	data []byte
}

func (f *fakeObjectStore) Download(_ context.Context, _ string) ([]byte, error) {
	return f.data, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int     { return 3 }
func (fakeEmbedder) IsConfigured() bool { return true }

type fakeTrigger struct {
	calls []uuid.UUID
}

func (f *fakeTrigger) MaybeEnqueue(_ context.Context, libraryID uuid.UUID, _ *uuid.UUID) (bool, string, error) {
	f.calls = append(f.calls, libraryID)
	return true, "queued", nil
}

func newHandlerFixture(provider *fakeProvider) (*Handler, *fakeExtractStore, *fakeTrigger, uuid.UUID) {
	paperID := uuid.New()
	parsedPath := "papers/" + paperID.String() + "/parsed.xml"
	cfg := &config.Config{}
	cfg.LLM.MaxOutputTokens = 1024

	extractStore := &fakeExtractStore{}
	trigger := &fakeTrigger{}
	h := NewHandler(
		&fakePaperStore{paper: &papers.Paper{
			ID:          paperID,
			Filename:    "paper.pdf",
			StoragePath: "papers/" + paperID.String() + "/paper.pdf",
			ParsedPath:  &parsedPath,
		}},
		extractStore,
		&fakeLibraryStore{libraries: []uuid.UUID{uuid.New()}},
		&fakeObjectStore{data: []byte(handlerTEI)},
		provider,
		fakeEmbedder{},
		trigger,
		cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return h, extractStore, trigger, paperID
}

func TestHandler_RerunWithSameJobDoesNotDuplicate(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`[{"text": "sleep loss impairs recall", "rephrased_claim": "Sleep loss impairs recall in adults"}]`,
		`[{"id": "m1", "name": "Recall test", "method_summary": "Free recall after 24h awake"}]`,
		`[{"text": "recall dropped 20%", "method_reference": "m1"}]`,
	}}
	h, extractStore, trigger, paperID := newHandlerFixture(provider)

	job := &jobs.Job{
		ID:      uuid.New(),
		Kind:    jobs.KindExtractElements,
		Payload: jobs.JSONMap{jobs.PayloadPaperID: paperID.String()},
	}

	first, err := h.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID.String(), first["job_id"])
	assert.Equal(t, 1, first["claims_count"])
	require.Len(t, extractStore.rows, 3)
	require.Len(t, trigger.calls, 1)
	llmCalls := len(provider.prompts)

	second, err := h.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, true, second["skipped"])
	assert.Equal(t, "already_ran", second["reason"])

	// The skip happens before any LLM call, persistence or trigger.
	assert.Len(t, extractStore.rows, 3)
	assert.Len(t, provider.prompts, llmCalls)
	assert.Len(t, trigger.calls, 1)
}

func TestHandler_EmbedsClaimsAndObservations(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`[{"text": "a claim", "rephrased_claim": "a rephrased claim"}]`,
		`[]`,
		`[{"text": "an observation"}]`,
	}}
	h, extractStore, _, paperID := newHandlerFixture(provider)

	job := &jobs.Job{
		ID:      uuid.New(),
		Kind:    jobs.KindExtractElements,
		Payload: jobs.JSONMap{jobs.PayloadPaperID: paperID.String()},
	}

	_, err := h.Handle(context.Background(), job)
	require.NoError(t, err)

	// One claim and one observation, both embedded; no methods.
	require.Len(t, extractStore.rows, 2)
	assert.Len(t, extractStore.vectors, 2)
}

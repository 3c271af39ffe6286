package linking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/pkg/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{MaxAttempts: 3},
		LLM:    config.LLMConfig{MaxOutputTokens: 1024},
		Linking: config.LinkingConfig{
			SimilarityThreshold: 0.35,
			DebounceWindow:      3 * time.Minute,
			C2CConcurrency:      4,
			C2OConcurrency:      4,
			BatchSize:           20,
		},
	}
}

type fakeLibraryStore struct {
	papers  []uuid.UUID
	addedAt map[uuid.UUID]time.Time
}

func (f *fakeLibraryStore) PaperIDs(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.papers, nil
}

func (f *fakeLibraryStore) AddedAt(_ context.Context, _ uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return f.addedAt, nil
}

type fakeExtractStore struct {
	mu       sync.Mutex
	extracts []*extracts.Extract
	vectors  map[uuid.UUID][]float32
	links    map[string]*extracts.ExtractLink
}

func newFakeExtractStore() *fakeExtractStore {
	return &fakeExtractStore{
		vectors: map[uuid.UUID][]float32{},
		links:   map[string]*extracts.ExtractLink{},
	}
}

func (f *fakeExtractStore) LatestByLibrary(_ context.Context, _ uuid.UUID, types []extracts.Type) ([]*extracts.Extract, error) {
	wanted := map[extracts.Type]bool{}
	for _, t := range types {
		wanted[t] = true
	}
	var out []*extracts.Extract
	for _, e := range f.extracts {
		if wanted[e.Type] {
			out = append(out, e)
		}
	}
	return extracts.LatestPerPaperType(out), nil
}

func (f *fakeExtractStore) VectorsFor(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	out := map[uuid.UUID][]float32{}
	for _, id := range ids {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeExtractStore) CreateLinks(_ context.Context, links []*extracts.ExtractLink) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	created := 0
	for _, l := range links {
		key := fmt.Sprintf("%s|%s", l.FromID, l.ToID)
		if _, dup := f.links[key]; dup {
			continue
		}
		f.links[key] = l
		created++
	}
	return created, nil
}

func (f *fakeExtractStore) allLinks() []*extracts.ExtractLink {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*extracts.ExtractLink, 0, len(f.links))
	for _, l := range f.links {
		out = append(out, l)
	}
	return out
}

// scriptedProvider answers each prompt through fn and counts calls.
type scriptedProvider struct {
	mu    sync.Mutex
	fn    func(prompt string) (string, error)
	calls []string
}

func (p *scriptedProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req.Prompt)
	p.mu.Unlock()

	text, err := p.fn(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text, Usage: llm.Usage{InputTokens: 1, OutputTokens: 1}}, nil
}

func (p *scriptedProvider) IsConfigured() bool { return true }

func (p *scriptedProvider) callCount(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func newClaim(paperID, jobID uuid.UUID, text string, createdAt time.Time) *extracts.Extract {
	return &extracts.Extract{
		ID:        uuid.New(),
		PaperID:   paperID,
		JobID:     jobID,
		Type:      extracts.TypeClaim,
		Content:   extracts.JSONMap{extracts.ContentText: text},
		CreatedAt: createdAt,
	}
}

func newObservation(paperID, jobID uuid.UUID, text string, methodRef string, createdAt time.Time) *extracts.Extract {
	content := extracts.JSONMap{extracts.ContentText: text}
	if methodRef != "" {
		content[extracts.ContentMethodReference] = methodRef
	}
	return &extracts.Extract{
		ID:        uuid.New(),
		PaperID:   paperID,
		JobID:     jobID,
		Type:      extracts.TypeObservation,
		Content:   content,
		CreatedAt: createdAt,
	}
}

func newMethod(paperID, jobID uuid.UUID, name, summary string, createdAt time.Time) *extracts.Extract {
	return &extracts.Extract{
		ID:      uuid.New(),
		PaperID: paperID,
		JobID:   jobID,
		Type:    extracts.TypeMethod,
		Content: extracts.JSONMap{
			extracts.ContentName:          name,
			extracts.ContentMethodSummary: summary,
		},
		CreatedAt: createdAt,
	}
}

package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/litgraph/pkg/llm"
)

type fakeProvider struct {
	responses []string
	prompts   []string
}

func (f *fakeProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.prompts = append(f.prompts, req.Prompt)
	text := "[]"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &llm.Response{Text: text, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (f *fakeProvider) IsConfigured() bool { return true }

func TestExtractor_Claims(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"```json\n[{\"text\": \"we found X\", \"rephrased_claim\": \"X holds in adults\"}]\n```",
	}}
	e := NewExtractor(provider, 1024)

	claims, usage, err := e.Claims(context.Background(), "paper text")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "we found X", claims[0].Text)
	assert.Equal(t, "X holds in adults", claims[0].RephrasedClaim)
	assert.Equal(t, int64(10), usage.InputTokens)
}

func TestExtractor_ObservationsIncludesMethodList(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`[{"text": "recall dropped 20%", "method_reference": "m1"}]`,
	}}
	e := NewExtractor(provider, 1024)

	methods := []methodItem{{ID: "m1", Name: "Recall test", MethodSummary: "Free recall after 24h"}}
	obs, _, err := e.Observations(context.Background(), "paper text", methods)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "m1", obs[0].MethodReference)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "m1: Recall test")
}

func TestParseJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"plain array", `[{"text":"a","rephrased_claim":"b"}]`, 1, false},
		{"fenced", "```json\n[{\"text\":\"a\",\"rephrased_claim\":\"b\"}]\n```", 1, false},
		{"fenced without language", "```\n[]\n```", 0, false},
		{"prose around array", `Here you go: [{"text":"a","rephrased_claim":"b"}] hope that helps`, 1, false},
		{"empty array", "[]", 0, false},
		{"no array", "I cannot extract anything", 0, true},
		{"invalid json", "[{", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseJSONArray[claimItem](tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

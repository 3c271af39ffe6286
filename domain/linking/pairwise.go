package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/litgraph/litgraph/pkg/llm"
)

const linkingSystem = `You are an expert at analyzing relationships between scientific statements. Respond only with the requested JSON, no prose.`

const pairwisePrompt = `Compare these two scientific claims and classify their relationship.

Claim 1: %s

Claim 2: %s

Labels:
- "duplicate": the claims assert the same thing
- "variant": the claims assert overlapping findings with different scope or framing
- "contradiction": the claims cannot both be true
- "premise_1_to_2": claim 1 is a premise that claim 2 builds on
- "premise_2_to_1": claim 2 is a premise that claim 1 builds on
- "none": no meaningful relationship

Return a JSON object: {"label": "<one of the labels>", "reasoning": "<one sentence>"}`

// Pairwise labels. The premise labels are directional; the rest are
// symmetric.
const (
	labelNone          = "none"
	labelDuplicate     = "duplicate"
	labelVariant       = "variant"
	labelContradiction = "contradiction"
	labelPremise1to2   = "premise_1_to_2"
	labelPremise2to1   = "premise_2_to_1"
)

var validPairLabels = map[string]bool{
	labelNone:          true,
	labelDuplicate:     true,
	labelVariant:       true,
	labelContradiction: true,
	labelPremise1to2:   true,
	labelPremise2to1:   true,
}

type pairVerdict struct {
	Label     string `json:"label"`
	Reasoning string `json:"reasoning"`
}

// labelPair asks the LLM to classify one claim pair. The texts go into
// the prompt, never the IDs; the model's answer is a label, not a
// reference.
func labelPair(ctx context.Context, provider llm.Provider, maxTokens int, text1, text2 string) (pairVerdict, llm.Usage, error) {
	resp, err := provider.Complete(ctx, &llm.Request{
		System:    linkingSystem,
		Prompt:    fmt.Sprintf(pairwisePrompt, text1, text2),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return pairVerdict{Label: labelNone}, llm.Usage{}, err
	}

	verdict, err := parsePairVerdict(resp.Text)
	if err != nil {
		return pairVerdict{Label: labelNone}, resp.Usage, err
	}
	return verdict, resp.Usage, nil
}

// parsePairVerdict decodes the model's JSON object; an unrecognized
// label is an error so the caller treats it as none.
func parsePairVerdict(text string) (pairVerdict, error) {
	cleaned := stripFences(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return pairVerdict{}, fmt.Errorf("no JSON object in model response")
	}

	var verdict pairVerdict
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &verdict); err != nil {
		return pairVerdict{}, fmt.Errorf("decode pair verdict: %w", err)
	}
	verdict.Label = strings.ToLower(strings.TrimSpace(verdict.Label))
	if !validPairLabels[verdict.Label] {
		return pairVerdict{}, fmt.Errorf("unknown pair label %q", verdict.Label)
	}
	return verdict, nil
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

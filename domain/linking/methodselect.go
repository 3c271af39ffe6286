package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/litgraph/litgraph/domain/extracts"
	"github.com/litgraph/litgraph/pkg/llm"
)

const methodSelectPrompt = `A scientific claim is being checked against the observations in a library. Select which of the library's methods could plausibly have produced observations that bear on this claim.

Claim: %s

Methods:
%s

Return a JSON array of the selected method ids, e.g. ["<id>", "<id>"]. Return [] if none apply.`

// selectMethods asks the LLM which methods could have produced
// observations relevant to the claim. The answer is validated against
// the real method set; anything else is dropped.
func selectMethods(ctx context.Context, provider llm.Provider, maxTokens int, claimText string, methods []*extracts.Extract) ([]uuid.UUID, llm.Usage, error) {
	if len(methods) == 0 {
		return nil, llm.Usage{}, nil
	}

	lines := make([]string, 0, len(methods))
	known := make(map[uuid.UUID]bool, len(methods))
	for _, m := range methods {
		known[m.ID] = true
		lines = append(lines, fmt.Sprintf("- %s: %s — %s",
			m.ID,
			m.Content.String(extracts.ContentName),
			m.Content.String(extracts.ContentMethodSummary),
		))
	}

	resp, err := provider.Complete(ctx, &llm.Request{
		System:    linkingSystem,
		Prompt:    fmt.Sprintf(methodSelectPrompt, claimText, strings.Join(lines, "\n")),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, llm.Usage{}, err
	}

	ids, err := parseMethodSelection(resp.Text, known)
	if err != nil {
		return nil, resp.Usage, err
	}
	return ids, resp.Usage, nil
}

func parseMethodSelection(text string, known map[uuid.UUID]bool) ([]uuid.UUID, error) {
	cleaned := stripFences(text)
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var raw []string
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode method selection: %w", err)
	}

	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil || !known[id] {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

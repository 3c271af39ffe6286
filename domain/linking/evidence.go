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

const evidencePrompt = `Determine which of the observations below bear on this claim, and how.

Claim: %s

%s

Link types:
- "supports": the observation is evidence for the claim
- "contradicts": the observation is evidence against the claim
- "contextualizes": the observation is relevant background without confirming or denying

Return a JSON array of objects: [{"observation_id": "<id>", "link_type": "<type>", "reasoning": "<one sentence>"}]. Only include observations that genuinely relate; return [] if none do.`

var validEvidenceTypes = map[string]bool{
	extracts.LinkSupports:       true,
	extracts.LinkContradicts:    true,
	extracts.LinkContextualizes: true,
}

type evidenceItem struct {
	ObservationID string `json:"observation_id"`
	LinkType      string `json:"link_type"`
	Reasoning     string `json:"reasoning"`
}

// evidenceLink is a validated claim-to-observation verdict.
type evidenceLink struct {
	ObservationID uuid.UUID
	LinkType      string
	Reasoning     string
}

// evidenceGroups formats candidate observations for the prompt:
// same-paper observations first, then the general literature, each
// grouped by the summary of the method that produced them.
func evidenceGroups(samePaper, general []*extracts.Extract, methodSummaries map[uuid.UUID]string) string {
	var b strings.Builder
	writeGroup := func(title string, obs []*extracts.Extract) {
		if len(obs) == 0 {
			return
		}
		b.WriteString(title)
		b.WriteString("\n")
		byMethod := map[string][]*extracts.Extract{}
		order := []string{}
		for _, o := range obs {
			summary := "unattributed"
			if ref := o.Content.String(extracts.ContentMethodReference); ref != "" {
				if id, err := uuid.Parse(ref); err == nil {
					if s := methodSummaries[id]; s != "" {
						summary = s
					}
				}
			}
			if _, seen := byMethod[summary]; !seen {
				order = append(order, summary)
			}
			byMethod[summary] = append(byMethod[summary], o)
		}
		for _, summary := range order {
			fmt.Fprintf(&b, "Method: %s\n", summary)
			for _, o := range byMethod[summary] {
				fmt.Fprintf(&b, "- %s: %s\n", o.ID, o.Content.String(extracts.ContentText))
			}
		}
		b.WriteString("\n")
	}

	writeGroup("Observations from the claim's own paper:", samePaper)
	writeGroup("Observations from the general literature:", general)
	return strings.TrimSpace(b.String())
}

// labelEvidence asks the LLM which candidate observations bear on the
// claim. Returned entries are validated: the ID must parse as a UUID
// and belong to the candidate/library observation set, the link type
// must be known. Invalid entries are dropped and counted.
func labelEvidence(
	ctx context.Context,
	provider llm.Provider,
	maxTokens int,
	claimText string,
	samePaper, general []*extracts.Extract,
	methodSummaries map[uuid.UUID]string,
	allowed map[uuid.UUID]bool,
) ([]evidenceLink, int, llm.Usage, error) {
	if len(samePaper)+len(general) == 0 {
		return nil, 0, llm.Usage{}, nil
	}

	resp, err := provider.Complete(ctx, &llm.Request{
		System:    linkingSystem,
		Prompt:    fmt.Sprintf(evidencePrompt, claimText, evidenceGroups(samePaper, general, methodSummaries)),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, 0, llm.Usage{}, err
	}

	links, dropped, err := parseEvidence(resp.Text, allowed)
	if err != nil {
		return nil, 0, resp.Usage, err
	}
	return links, dropped, resp.Usage, nil
}

func parseEvidence(text string, allowed map[uuid.UUID]bool) ([]evidenceLink, int, error) {
	cleaned := stripFences(text)
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, 0, fmt.Errorf("no JSON array in model response")
	}

	var items []evidenceItem
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		return nil, 0, fmt.Errorf("decode evidence: %w", err)
	}

	var (
		out     []evidenceLink
		dropped int
	)
	for _, item := range items {
		id, err := uuid.Parse(strings.TrimSpace(item.ObservationID))
		if err != nil || !allowed[id] {
			dropped++
			continue
		}
		linkType := strings.ToLower(strings.TrimSpace(item.LinkType))
		if !validEvidenceTypes[linkType] {
			dropped++
			continue
		}
		out = append(out, evidenceLink{
			ObservationID: id,
			LinkType:      linkType,
			Reasoning:     item.Reasoning,
		})
	}
	return out, dropped, nil
}

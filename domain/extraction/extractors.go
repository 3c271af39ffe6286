package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/litgraph/litgraph/pkg/llm"
)

const extractionSystem = `You are an expert at reading scientific papers and extracting structured knowledge elements. Respond only with the requested JSON, no prose.`

const claimsPrompt = `Extract the claims made by this paper: statements the authors assert as findings or conclusions.

For each claim provide:
- "text": the claim as stated in the paper
- "rephrased_claim": the claim rewritten as a standalone declarative sentence that makes sense without the paper's context (resolve pronouns, name the population and intervention)

Return a JSON array of objects with keys "text" and "rephrased_claim". Return [] if the paper makes no claims.

Paper:
%s`

const methodsPrompt = `Extract the methods used in this paper: experimental procedures, study designs, analysis techniques.

For each method provide:
- "id": a short identifier like "m1", "m2", unique within your answer
- "name": a short name for the method
- "method_summary": one or two sentences describing what was done

Return a JSON array of objects with keys "id", "name" and "method_summary". Return [] if no methods are described.

Paper:
%s`

const observationsPrompt = `Extract the observations reported in this paper: concrete empirical results, measurements and outcomes, as opposed to interpretations.

These methods were extracted from the paper:
%s

For each observation provide:
- "text": the observation as a standalone sentence, including magnitudes and conditions where given
- "method_reference": the "id" of the method that produced it, or "" if none applies

Return a JSON array of objects with keys "text" and "method_reference". Return [] if no observations are reported.

Paper:
%s`

type claimItem struct {
	Text           string `json:"text"`
	RephrasedClaim string `json:"rephrased_claim"`
}

type methodItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MethodSummary string `json:"method_summary"`
}

type observationItem struct {
	Text            string `json:"text"`
	MethodReference string `json:"method_reference"`
}

// Extractor runs the three element extractors against one paper text.
type Extractor struct {
	provider  llm.Provider
	maxTokens int
}

// NewExtractor creates an extractor on the given provider.
func NewExtractor(provider llm.Provider, maxTokens int) *Extractor {
	return &Extractor{provider: provider, maxTokens: maxTokens}
}

func (e *Extractor) Claims(ctx context.Context, paperText string) ([]claimItem, llm.Usage, error) {
	return runExtractor[claimItem](ctx, e, fmt.Sprintf(claimsPrompt, paperText))
}

func (e *Extractor) Methods(ctx context.Context, paperText string) ([]methodItem, llm.Usage, error) {
	return runExtractor[methodItem](ctx, e, fmt.Sprintf(methodsPrompt, paperText))
}

func (e *Extractor) Observations(ctx context.Context, paperText string, methods []methodItem) ([]observationItem, llm.Usage, error) {
	summary := make([]string, 0, len(methods))
	for _, m := range methods {
		summary = append(summary, fmt.Sprintf("%s: %s — %s", m.ID, m.Name, m.MethodSummary))
	}
	methodList := strings.Join(summary, "\n")
	if methodList == "" {
		methodList = "(none)"
	}
	return runExtractor[observationItem](ctx, e, fmt.Sprintf(observationsPrompt, methodList, paperText))
}

func runExtractor[T any](ctx context.Context, e *Extractor, prompt string) ([]T, llm.Usage, error) {
	resp, err := e.provider.Complete(ctx, &llm.Request{
		System:    extractionSystem,
		Prompt:    prompt,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return nil, llm.Usage{}, err
	}

	items, err := parseJSONArray[T](resp.Text)
	if err != nil {
		return nil, resp.Usage, err
	}
	return items, resp.Usage, nil
}

// parseJSONArray tolerates markdown fences and prose around the array.
func parseJSONArray[T any](text string) ([]T, error) {
	cleaned := stripFences(text)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in model response")
	}

	var items []T
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return items, nil
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

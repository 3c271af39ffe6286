// Package genai implements llm.Provider on the Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/pkg/llm"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Client calls the Gemini API for chat completions.
type Client struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

// NewClient creates a Gemini-backed completion client. An unset API
// key yields a client that reports IsConfigured() == false.
func NewClient(cfg *config.Config, log *slog.Logger) (*Client, error) {
	c := &Client{
		model:       cfg.LLM.Model,
		maxTokens:   int32(cfg.LLM.MaxOutputTokens),
		temperature: float32(cfg.LLM.Temperature),
		timeout:     cfg.LLM.Timeout,
		log:         log.With(logger.Scope("llm")),
	}

	if !cfg.LLM.IsEnabled() {
		c.log.Warn("llm not configured, completions disabled")
		return c, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.LLM.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client

	c.log.Info("llm client initialized", slog.String("model", cfg.LLM.Model))
	return c, nil
}

func (c *Client) IsConfigured() bool {
	return c.client != nil
}

func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if c.client == nil {
		return nil, errors.New("llm is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	out := &llm.Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	c.log.Debug("completion finished",
		slog.Duration("duration", time.Since(start)),
		slog.Int64("input_tokens", out.Usage.InputTokens),
		slog.Int64("output_tokens", out.Usage.OutputTokens),
	)
	return out, nil
}

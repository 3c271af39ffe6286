// Package genai implements embeddings.Client on the Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/pkg/logger"
)

// Client embeds text batches with the Gemini embedding models.
type Client struct {
	client    *genai.Client
	model     string
	dimension int
	log       *slog.Logger
}

// NewClient creates a Gemini-backed embedding client. An unset API key
// yields a client that reports IsConfigured() == false.
func NewClient(cfg *config.Config, log *slog.Logger) (*Client, error) {
	c := &Client{
		model:     cfg.Embeddings.Model,
		dimension: cfg.Embeddings.Dimension,
		log:       log.With(logger.Scope("embeddings")),
	}

	if !cfg.Embeddings.IsEnabled() {
		c.log.Warn("embeddings not configured, vectors disabled")
		return c, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.Embeddings.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client

	c.log.Info("embedding client initialized",
		slog.String("model", cfg.Embeddings.Model),
		slog.Int("dimension", cfg.Embeddings.Dimension),
	)
	return c, nil
}

func (c *Client) IsConfigured() bool {
	return c.client != nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if c.client == nil {
		return nil, errors.New("embeddings are not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	dim := int32(c.dimension)
	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}

	c.log.Debug("texts embedded", slog.Int("count", len(texts)))
	return out, nil
}

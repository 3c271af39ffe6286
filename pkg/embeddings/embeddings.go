// Package embeddings defines the text embedding client used to vector
// claims and observations for similarity-based candidate generation.
package embeddings

import "context"

// Client produces fixed-dimension embeddings for text batches.
type Client interface {
	// EmbedTexts embeds all texts in one API request where the backend
	// allows it. The result aligns with the input slice.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the vector length this client produces.
	Dimension() int
	// IsConfigured reports whether the client can make network calls.
	IsConfigured() bool
}

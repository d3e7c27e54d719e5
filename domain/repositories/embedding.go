package repositories

import "context"

// Embedder turns text into a fixed-length semantic vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector returned by Embed
	Dimension() int
}

// Package embedder provides the embedding service client and the gateway
// that serializes access to the accelerator behind it.
package embedder

import "context"

// Embedder converts a batch of texts into dense vector embeddings.
// The returned slice is parallel to the input slice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

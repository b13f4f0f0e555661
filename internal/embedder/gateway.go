package embedder

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"
)

// instructPrefix is prepended to query-mode texts. The model was trained in
// the instruct style: queries carry the task description, documents do not.
// The prefix must match training exactly, including the newline.
const instructPrefix = "Instruct: Given a database query, retrieve relevant FSNB entries\nQuery: "

// Batch sizes per encode mode. Queries are latency-sensitive and short;
// documents are throughput work during index rebuilds.
const (
	defaultQueryBatch = 2
	defaultIndexBatch = 128
)

// Gateway serializes access to the embedding accelerator. A single model
// instance on one GPU cannot absorb concurrent encode calls from the HTTP
// handlers and the indexer at once, so every Embed call passes through a
// weighted semaphore sized to the number of accelerator slots.
type Gateway struct {
	embedder   Embedder
	gate       *semaphore.Weighted
	dimensions int
	queryBatch int
	indexBatch int
}

// GatewayConfig holds the settings for constructing a Gateway.
type GatewayConfig struct {
	// Dimensions is the output vector size of the model.
	Dimensions int
	// Slots is the number of concurrent encode calls the accelerator can
	// absorb. Zero or negative means 1.
	Slots int
	// QueryBatch overrides the query-mode batch size.
	QueryBatch int
	// IndexBatch overrides the document-mode batch size.
	IndexBatch int
}

// NewGateway wraps an Embedder with accelerator gating and mode-aware
// batching.
func NewGateway(e Embedder, cfg GatewayConfig) *Gateway {
	slots := cfg.Slots
	if slots <= 0 {
		slots = 1
	}
	queryBatch := cfg.QueryBatch
	if queryBatch <= 0 {
		queryBatch = defaultQueryBatch
	}
	indexBatch := cfg.IndexBatch
	if indexBatch <= 0 {
		indexBatch = defaultIndexBatch
	}
	return &Gateway{
		embedder:   e,
		gate:       semaphore.NewWeighted(int64(slots)),
		dimensions: cfg.Dimensions,
		queryBatch: queryBatch,
		indexBatch: indexBatch,
	}
}

// Dimension returns the output vector size of the underlying model.
func (g *Gateway) Dimension() int {
	return g.dimensions
}

// EncodeQueries embeds free-form query texts. Each text gets the instruct
// prefix before encoding; the caller's texts are not mutated. The returned
// slice is parallel to texts.
func (g *Gateway) EncodeQueries(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = instructPrefix + strings.TrimSpace(t)
	}
	return g.encode(ctx, prefixed, g.queryBatch)
}

// EncodeDocuments embeds catalog item texts without the instruct prefix.
// The returned slice is parallel to texts.
func (g *Gateway) EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return g.encode(ctx, texts, g.indexBatch)
}

// encode splits texts into batches and runs each through the gated embedder.
// The gate is held per batch, not per call, so a large index rebuild cannot
// starve interactive queries for its whole duration.
func (g *Gateway) encode(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		if err := g.gate.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("embedder: acquire accelerator slot: %w", err)
		}
		vecs, err := g.embedder.Embed(ctx, batch)
		g.gate.Release(1)
		if err != nil {
			return nil, err
		}

		for _, v := range vecs {
			if g.dimensions > 0 && len(v) != g.dimensions {
				return nil, fmt.Errorf("embedder: vector dimension %d, expected %d", len(v), g.dimensions)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

package embedder

import (
	"fmt"

	"github.com/stroikit/fsnbmatch/internal/config"
)

// Defaults for the embedding backend.
const (
	defaultEndpoint = "http://localhost:11434"
	defaultModel    = "giga"

	// defaultDimensions is the output dimension of the giga model. Other
	// models differ — override with embedding.dimensions / EMBEDDING_DIMENSIONS.
	defaultDimensions = 1024
)

// NewGatewayFromConfig constructs the HTTP embedding client and wraps it in
// a Gateway, applying defaults for anything the config leaves unset.
func NewGatewayFromConfig(cfg config.EmbeddingConfig) (*Gateway, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = defaultDimensions
	}
	if dims < 0 {
		return nil, fmt.Errorf("embedder: invalid dimensions %d", dims)
	}

	client := NewHTTPEmbedder(&ClientConfig{
		Endpoint: endpoint,
		Model:    model,
	})
	return NewGateway(client, GatewayConfig{
		Dimensions: dims,
		Slots:      cfg.GPUSlots,
		QueryBatch: cfg.QueryBatch,
		IndexBatch: cfg.IndexBatch,
	}), nil
}

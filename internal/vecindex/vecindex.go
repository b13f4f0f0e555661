// Package vecindex provides the vector index over FSNB item embeddings.
package vecindex

import "context"

// Point is one item vector with the payload the index keeps alongside it.
type Point struct {
	// ID is the item's SQLite row id; the index uses it as the point id so
	// hits map straight back to the item store.
	ID int64
	// Vector is the document embedding of the item name.
	Vector []float32
	// Name is carried as payload for debugging in the Qdrant UI; lookups
	// hydrate from the item store, not from here.
	Name string
}

// Hit is one scored search result.
type Hit struct {
	ID    int64
	Score float32
}

// Index is the vector index contract used by the indexer and the matcher.
type Index interface {
	// Recreate drops and recreates the collection for the given vector
	// dimension. Destroys every stored point; only the index rebuild calls
	// it, and the rebuild must not run concurrently with itself.
	Recreate(ctx context.Context, dim int) error

	// UpsertBatch stores one batch of points.
	UpsertBatch(ctx context.Context, points []Point) error

	// SearchBatch runs one similarity search per query vector and returns
	// the top-k hits for each, parallel to vectors.
	SearchBatch(ctx context.Context, vectors [][]float32, topK int) ([][]Hit, error)

	// Ping reports whether the index backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

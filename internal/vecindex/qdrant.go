package vecindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/stroikit/fsnbmatch/internal/config"
)

// searchChunkSize bounds the number of query vectors per QueryBatch call so
// one oversized caption batch cannot produce an unbounded gRPC message.
const searchChunkSize = 64

// defaultCollection is the Qdrant collection holding the item embeddings.
const defaultCollection = "fsnb_giga"

// Qdrant implements Index backed by a Qdrant instance over gRPC.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to Qdrant and returns the index wrapper. The collection
// is not created here — Recreate owns collection lifecycle, and serving
// against a missing collection is a hard error the caller should see.
func NewQdrant(cfg config.QdrantConfig) (*Qdrant, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vecindex: create client: %w", err)
	}

	return &Qdrant{client: client, collection: collection}, nil
}

// Recreate drops the collection if present and creates it fresh with cosine
// distance at the given dimension.
func (q *Qdrant) Recreate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vecindex: invalid dimension %d", dim)
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("vecindex: check collection %q: %w", q.collection, err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("vecindex: drop collection %q: %w", q.collection, err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vecindex: create collection %q: %w", q.collection, err)
	}
	return nil
}

// UpsertBatch stores one batch of points keyed by item id.
func (q *Qdrant) UpsertBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qp := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if p.ID <= 0 {
			return fmt.Errorf("vecindex: point id %d is not a valid item id", p.ID)
		}
		qp = append(qp, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{"name": p.Name}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qp,
	})
	if err != nil {
		return fmt.Errorf("vecindex: upsert %d points: %w", len(qp), err)
	}
	return nil
}

// SearchBatch runs one query per vector, chunked so large caption batches
// stay within gRPC message limits. Results are parallel to vectors.
func (q *Qdrant) SearchBatch(ctx context.Context, vectors [][]float32, topK int) ([][]Hit, error) {
	if topK <= 0 {
		topK = 1
	}
	limit := uint64(topK)

	out := make([][]Hit, 0, len(vectors))
	for start := 0; start < len(vectors); start += searchChunkSize {
		end := min(start+searchChunkSize, len(vectors))
		chunk := vectors[start:end]

		queries := make([]*qdrant.QueryPoints, 0, len(chunk))
		for _, v := range chunk {
			queries = append(queries, &qdrant.QueryPoints{
				CollectionName: q.collection,
				Query:          qdrant.NewQuery(v...),
				Limit:          &limit,
			})
		}

		results, err := q.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
			CollectionName: q.collection,
			QueryPoints:    queries,
		})
		if err != nil {
			return nil, fmt.Errorf("vecindex: query batch of %d: %w", len(chunk), err)
		}
		if len(results) != len(chunk) {
			return nil, fmt.Errorf("vecindex: expected %d batch results, got %d", len(chunk), len(results))
		}

		for _, br := range results {
			hits := make([]Hit, 0, len(br.GetResult()))
			for _, sp := range br.GetResult() {
				hits = append(hits, Hit{
					ID:    int64(sp.GetId().GetNum()),
					Score: sp.GetScore(),
				})
			}
			out = append(out, hits)
		}
	}
	return out, nil
}

// Ping reports whether the Qdrant instance answers a health check.
func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vecindex: health check: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

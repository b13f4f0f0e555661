// Package indexer rebuilds the vector index from the item store.
package indexer

import (
	"context"
	"fmt"
	"iter"

	"github.com/stroikit/fsnbmatch/internal/logging"
	"github.com/stroikit/fsnbmatch/internal/store"
	"github.com/stroikit/fsnbmatch/internal/vecindex"
)

// encodeBatchSize is the number of items handed to the encoder per round.
// The encoder batches further internally for the accelerator.
const encodeBatchSize = 128

// progressEvery is how many indexed items pass between progress reports.
const progressEvery = 1000

// Encoder is the document-embedding surface the indexer needs.
type Encoder interface {
	EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ItemSource streams items out of the store in id order.
type ItemSource interface {
	StreamForIndex(ctx context.Context) iter.Seq2[store.IndexItem, error]
	CountItems(ctx context.Context) (int64, error)
}

// Indexer drives a full index rebuild: recreate the collection, stream every
// item, encode, upsert.
type Indexer struct {
	source  ItemSource
	encoder Encoder
	index   vecindex.Index

	// Progress, when set, is called with the running count of indexed items
	// roughly every progressEvery items and once at the end.
	Progress func(done, total int64)
}

// New constructs an Indexer.
func New(source ItemSource, encoder Encoder, index vecindex.Index) *Indexer {
	return &Indexer{source: source, encoder: encoder, index: index}
}

// Rebuild drops and recreates the collection at the encoder's dimension,
// then streams every item through encode and upsert. Returns the number of
// items indexed. A rebuild must not run concurrently with another rebuild
// on the same collection; searches during a rebuild see partial results,
// which the batch matching flow tolerates.
func (ix *Indexer) Rebuild(ctx context.Context) (int64, error) {
	log := logging.FromContext(ctx)

	total, err := ix.source.CountItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: count items: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("indexer: item store is empty, ingest a catalog first")
	}

	dim := ix.encoder.Dimension()
	if err := ix.index.Recreate(ctx, dim); err != nil {
		return 0, err
	}
	log.Info("indexer: collection recreated", "dimension", dim, "items", total)

	var (
		batch    []store.IndexItem
		done     int64
		reported int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.Name
		}
		vecs, err := ix.encoder.EncodeDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("indexer: encode batch at item %d: %w", done, err)
		}
		points := make([]vecindex.Point, len(batch))
		for i, it := range batch {
			points[i] = vecindex.Point{ID: it.ID, Vector: vecs[i], Name: it.Name}
		}
		if err := ix.index.UpsertBatch(ctx, points); err != nil {
			return err
		}
		done += int64(len(batch))
		batch = batch[:0]

		if done-reported >= progressEvery {
			reported = done
			log.Info("indexer: progress", "done", done, "total", total)
			if ix.Progress != nil {
				ix.Progress(done, total)
			}
		}
		return nil
	}

	for it, err := range ix.source.StreamForIndex(ctx) {
		if err != nil {
			return done, fmt.Errorf("indexer: stream items: %w", err)
		}
		batch = append(batch, it)
		if len(batch) >= encodeBatchSize {
			if err := flush(); err != nil {
				return done, err
			}
		}
	}
	if err := flush(); err != nil {
		return done, err
	}

	log.Info("indexer: rebuild complete", "indexed", done)
	if ix.Progress != nil {
		ix.Progress(done, total)
	}
	return done, nil
}

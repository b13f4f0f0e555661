// Package matcher maps free-form estimate captions to FSNB catalog items.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/stroikit/fsnbmatch/internal/store"
	"github.com/stroikit/fsnbmatch/internal/vecindex"
)

// QueryEncoder is the query-embedding surface the matcher needs.
type QueryEncoder interface {
	EncodeQueries(ctx context.Context, texts []string) ([][]float32, error)
}

// MetaSource hydrates item metadata onto search hits.
type MetaSource interface {
	FetchMetaByIDs(ctx context.Context, ids []int64) (map[int64]store.ItemMeta, error)
}

// Input is one caption to match, with the units and quantity carried
// through untouched for the report.
type Input struct {
	Caption string
	Units   string
	Qty     string
}

// Result is the best catalog match for one input. Item fields are empty
// when the index returned a hit whose item has since vanished from the
// store, or no hit at all; Score still records what the index reported.
type Result struct {
	Caption  string
	Units    string
	Qty      string
	ItemID   int64
	ItemName string
	ItemCode string
	ItemUnit string
	Score    float32
}

// Matcher glues encode, search and hydrate into the batch matching flow.
type Matcher struct {
	encoder QueryEncoder
	index   vecindex.Index
	meta    MetaSource
}

// New constructs a Matcher.
func New(encoder QueryEncoder, index vecindex.Index, meta MetaSource) *Matcher {
	return &Matcher{encoder: encoder, index: index, meta: meta}
}

// Match returns the single best catalog item per input. Inputs with blank
// captions come back as null matches without touching the encoder. The
// result slice is parallel to inputs.
func (m *Matcher) Match(ctx context.Context, inputs []Input) ([]Result, error) {
	hits, err := m.TopK(ctx, inputs, 1)
	if err != nil {
		return nil, err
	}

	// Collect ids across all inputs for one hydration round trip.
	var ids []int64
	for _, hs := range hits {
		for _, h := range hs {
			ids = append(ids, h.ID)
		}
	}
	meta, err := m.meta.FetchMetaByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Result, len(inputs))
	for i, in := range inputs {
		r := Result{Caption: in.Caption, Units: in.Units, Qty: in.Qty}
		if len(hits[i]) > 0 {
			best := hits[i][0]
			r.Score = best.Score
			if mm, ok := meta[best.ID]; ok {
				r.ItemID = best.ID
				r.ItemName = mm.Name
				r.ItemCode = mm.Code
				r.ItemUnit = mm.Unit
			}
		}
		out[i] = r
	}
	return out, nil
}

// TopK returns the raw top-k hits per input, parallel to inputs. Blank
// captions get an empty hit list and are skipped on the accelerator.
func (m *Matcher) TopK(ctx context.Context, inputs []Input, topK int) ([][]vecindex.Hit, error) {
	out := make([][]vecindex.Hit, len(inputs))

	// Compact out blank captions, remembering original positions.
	var texts []string
	var positions []int
	for i, in := range inputs {
		if strings.TrimSpace(in.Caption) == "" {
			continue
		}
		texts = append(texts, in.Caption)
		positions = append(positions, i)
	}
	if len(texts) == 0 {
		return out, nil
	}

	vecs, err := m.encoder.EncodeQueries(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("matcher: encode captions: %w", err)
	}
	hits, err := m.index.SearchBatch(ctx, vecs, topK)
	if err != nil {
		return nil, fmt.Errorf("matcher: search: %w", err)
	}
	if len(hits) != len(texts) {
		return nil, fmt.Errorf("matcher: expected %d hit lists, got %d", len(texts), len(hits))
	}

	for j, pos := range positions {
		out[pos] = hits[j]
	}
	return out, nil
}

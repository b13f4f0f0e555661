// Package review implements the human feedback loop: candidate preparation,
// review sessions, and the commit that turns decisions into training data.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/stroikit/fsnbmatch/internal/matcher"
	"github.com/stroikit/fsnbmatch/internal/store"
	"github.com/stroikit/fsnbmatch/internal/vecindex"
)

// Commit validation errors, mapped to HTTP statuses by the server.
var (
	// ErrSessionClosed means the target session is already closed.
	ErrSessionClosed = errors.New("review: session is closed")
	// ErrRowCountMismatch means the commit payload does not cover the
	// session's rows one-to-one.
	ErrRowCountMismatch = errors.New("review: commit row count does not match session")
	// ErrRowNotInSession means an explicit row id points outside the session.
	ErrRowNotInSession = errors.New("review: row does not belong to session")
)

// defaultTopK is the number of candidates shown per caption.
const defaultTopK = 10

// TopKer is the matching surface the review flow needs.
type TopKer interface {
	TopK(ctx context.Context, inputs []matcher.Input, topK int) ([][]vecindex.Hit, error)
}

// Candidate is one catalog item offered to the reviewer for a caption.
type Candidate struct {
	ItemID int64   `json:"item_id"`
	Name   string  `json:"name"`
	Code   string  `json:"code"`
	Unit   string  `json:"unit"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"`
}

// RowView is one session row together with its shown candidates and a
// pre-filled default decision: the top candidate selected and labelled gold,
// or none_match when the search came back empty. The reviewer overrides it
// where the default is wrong.
type RowView struct {
	RowID          int64       `json:"row_id"`
	Caption        string      `json:"caption"`
	Units          string      `json:"units,omitempty"`
	Qty            string      `json:"qty,omitempty"`
	Candidates     []Candidate `json:"candidates"`
	SelectedItemID *int64      `json:"selected_item_id,omitempty"`
	Label          string      `json:"label"`
}

// SessionView is the payload returned after creating a session.
type SessionView struct {
	SessionID int64     `json:"session_id"`
	Rows      []RowView `json:"rows"`
}

// Service drives the review flow over the matcher and the store.
type Service struct {
	matcher      TopKer
	store        *store.Store
	modelName    string
	modelVersion string
}

// New constructs a Service. modelName identifies which model produced the
// shown candidates in the feedback ledger.
func New(m TopKer, s *store.Store, modelName, modelVersion string) *Service {
	return &Service{matcher: m, store: s, modelName: modelName, modelVersion: modelVersion}
}

// metaSource lets candidate hydration run against the pool or inside a
// transaction.
type metaSource interface {
	FetchMetaByIDs(ctx context.Context, ids []int64) (map[int64]store.ItemMeta, error)
}

// Candidates computes the top-k candidates per input with item metadata
// hydrated, without persisting anything. Vanished items are dropped from the
// candidate list rather than shown as empty rows.
func (s *Service) Candidates(ctx context.Context, inputs []matcher.Input, topK int) ([][]Candidate, error) {
	return s.candidates(ctx, s.store, inputs, topK)
}

func (s *Service) candidates(ctx context.Context, meta metaSource, inputs []matcher.Input, topK int) ([][]Candidate, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	hits, err := s.matcher.TopK(ctx, inputs, topK)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, hs := range hits {
		for _, h := range hs {
			ids = append(ids, h.ID)
		}
	}
	metaByID, err := meta.FetchMetaByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([][]Candidate, len(inputs))
	for i, hs := range hits {
		cands := make([]Candidate, 0, len(hs))
		for _, h := range hs {
			m, ok := metaByID[h.ID]
			if !ok {
				continue
			}
			cands = append(cands, Candidate{
				ItemID: h.ID,
				Name:   m.Name,
				Code:   m.Code,
				Unit:   m.Unit,
				Score:  h.Score,
				Rank:   len(cands) + 1,
			})
		}
		out[i] = cands
	}
	return out, nil
}

// CreateSessionRequest is the input for CreateSession.
type CreateSessionRequest struct {
	SourceName string
	CreatedBy  string
	Rows       []store.NewRow
	TopK       int
}

// CreateSession opens a session, stores its rows, computes and persists the
// shown candidates, and returns the initial review view. Rows with blank
// captions are dropped before matching. The whole operation runs in one
// transaction: an embedding or index failure leaves no orphaned session
// behind for a client to commit against later.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (SessionView, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return SessionView{}, err
	}
	defer tx.Rollback()

	sess, err := tx.CreateSession(ctx, req.SourceName, req.CreatedBy)
	if err != nil {
		return SessionView{}, err
	}
	rows, err := tx.CreateRows(ctx, sess.ID, req.Rows, req.CreatedBy)
	if err != nil {
		return SessionView{}, err
	}
	if len(rows) == 0 {
		return SessionView{}, fmt.Errorf("review: no usable rows in session payload")
	}

	inputs := make([]matcher.Input, len(rows))
	for i, r := range rows {
		inputs[i] = matcher.Input{Caption: r.Caption, Units: r.UnitsIn, Qty: r.QtyIn}
	}
	cands, err := s.candidates(ctx, tx, inputs, req.TopK)
	if err != nil {
		return SessionView{}, err
	}

	var newCands []store.NewCandidate
	views := make([]RowView, len(rows))
	for i, r := range rows {
		views[i] = RowView{
			RowID:      r.ID,
			Caption:    r.Caption,
			Units:      r.UnitsIn,
			Qty:        r.QtyIn,
			Candidates: cands[i],
			Label:      string(store.LabelNoneMatch),
		}
		if len(cands[i]) > 0 {
			top := cands[i][0].ItemID
			views[i].SelectedItemID = &top
			views[i].Label = string(store.LabelGold)
		}
		for _, c := range cands[i] {
			newCands = append(newCands, store.NewCandidate{
				RowID:        r.ID,
				ItemID:       c.ItemID,
				ModelName:    s.modelName,
				ModelVersion: s.modelVersion,
				Score:        float64(c.Score),
				Rank:         c.Rank,
			})
		}
	}
	if _, err := tx.CreateCandidates(ctx, newCands); err != nil {
		return SessionView{}, err
	}
	if err := tx.Commit(); err != nil {
		return SessionView{}, err
	}

	return SessionView{SessionID: sess.ID, Rows: views}, nil
}

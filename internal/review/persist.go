package review

import (
	"context"
	"strings"

	"github.com/stroikit/fsnbmatch/internal/logging"
	"github.com/stroikit/fsnbmatch/internal/store"
)

// CommitRow is one review decision in a commit payload. Rows map to the
// session's rows positionally, in row id order; RowIdx may override the
// position (an index into the session's id-ordered rows) and RowID may pin
// a decision to a specific row, winning over both. Both overrides are
// validated against the session.
type CommitRow struct {
	RowIdx         *int    `json:"row_idx,omitempty"`
	RowID          *int64  `json:"row_id,omitempty"`
	Label          string  `json:"label"`
	SelectedItemID *int64  `json:"selected_item_id,omitempty"`
	Negatives      []int64 `json:"negatives,omitempty"`
	Note           string  `json:"note,omitempty"`
}

// CommitRequest is the input for Commit.
type CommitRequest struct {
	SessionID int64       `json:"session_id"`
	CreatedBy string      `json:"created_by,omitempty"`
	Trusted   bool        `json:"trusted"`
	Rows      []CommitRow `json:"rows"`
}

// CommitResult reports what a commit persisted.
type CommitResult struct {
	SessionID int64 `json:"session_id"`
	Labels    int   `json:"labels"`
	Replaced  int64 `json:"replaced"`
	Closed    bool  `json:"closed"`
}

// NormalizeCommitRows coerces a commit payload toward safe defaults rather
// than rejecting it: a missing label defaults to gold (the UI pre-selects
// the top candidate), the label string is coerced into the closed set,
// non-positive negative ids are collapsed, notes are trimmed, and a gold
// decision without a selected item is downgraded to ambiguous — gold
// asserts which item is correct, so gold without an item carries no
// training signal.
func NormalizeCommitRows(rows []CommitRow) []CommitRow {
	out := make([]CommitRow, len(rows))
	for i, r := range rows {
		if r.SelectedItemID != nil && *r.SelectedItemID <= 0 {
			r.SelectedItemID = nil
		}
		if strings.TrimSpace(r.Label) == "" {
			r.Label = string(store.LabelGold)
		}
		r.Label = string(store.ParseLabel(r.Label))
		if r.Label == string(store.LabelGold) && r.SelectedItemID == nil {
			r.Label = string(store.LabelAmbiguous)
		}
		negs := r.Negatives[:0:0]
		for _, id := range r.Negatives {
			if id > 0 {
				negs = append(negs, id)
			}
		}
		r.Negatives = negs
		r.Note = strings.TrimSpace(r.Note)
		out[i] = r
	}
	return out
}

// Commit persists a review decision set atomically and closes the session.
// The open→closed transition is one-way: a second commit against the same
// session fails with ErrSessionClosed. The whole operation runs in one
// transaction, so a failed commit leaves the session open with its previous
// labels intact.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	log := logging.FromContext(ctx)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	defer tx.Rollback()

	sess, err := tx.GetSession(ctx, req.SessionID)
	if err != nil {
		return CommitResult{}, err
	}
	if sess.Status == store.SessionClosed {
		return CommitResult{}, ErrSessionClosed
	}

	rows, err := tx.RowsForSession(ctx, req.SessionID)
	if err != nil {
		return CommitResult{}, err
	}
	if len(req.Rows) != len(rows) {
		return CommitResult{}, ErrRowCountMismatch
	}

	inSession := make(map[int64]bool, len(rows))
	for _, r := range rows {
		inSession[r.ID] = true
	}

	normalized := NormalizeCommitRows(req.Rows)
	labels := make([]store.NewLabel, 0, len(normalized))
	for i, cr := range normalized {
		idx := i
		if cr.RowIdx != nil {
			idx = *cr.RowIdx
			if idx < 0 || idx >= len(rows) {
				return CommitResult{}, ErrRowNotInSession
			}
		}
		rowID := rows[idx].ID
		if cr.RowID != nil {
			if !inSession[*cr.RowID] {
				return CommitResult{}, ErrRowNotInSession
			}
			rowID = *cr.RowID
		}
		labels = append(labels, store.NewLabel{
			RowID:          rowID,
			Label:          store.Label(cr.Label),
			SelectedItemID: cr.SelectedItemID,
			Negatives:      cr.Negatives,
			Note:           cr.Note,
			CreatedBy:      req.CreatedBy,
			IsTrusted:      req.Trusted,
		})
	}

	replaced, err := tx.DeleteLabelsForSession(ctx, req.SessionID)
	if err != nil {
		return CommitResult{}, err
	}
	inserted, err := tx.CreateLabels(ctx, labels)
	if err != nil {
		return CommitResult{}, err
	}
	if err := tx.MarkRowsTrusted(ctx, req.SessionID, req.Trusted, req.CreatedBy); err != nil {
		return CommitResult{}, err
	}
	if err := tx.CloseSession(ctx, req.SessionID); err != nil {
		return CommitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, err
	}

	log.Info("review: commit persisted",
		"session_id", req.SessionID,
		"labels", inserted,
		"replaced", replaced,
		"trusted", req.Trusted,
	)
	return CommitResult{
		SessionID: req.SessionID,
		Labels:    inserted,
		Replaced:  replaced,
		Closed:    true,
	}, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the feedback session lifecycle state.
type SessionStatus string

const (
	// SessionOpen accepts rows and a commit.
	SessionOpen SessionStatus = "open"
	// SessionClosed is terminal; no further rows or labels may be added.
	SessionClosed SessionStatus = "closed"
)

// Label is the closed set of human review decisions.
type Label string

const (
	// LabelGold marks the selected item as the correct match.
	LabelGold Label = "gold"
	// LabelNegative marks the shown candidates as wrong.
	LabelNegative Label = "negative"
	// LabelSkip excludes the row from training without judgement.
	LabelSkip Label = "skip"
	// LabelAmbiguous records that the reviewer could not decide.
	LabelAmbiguous Label = "ambiguous"
	// LabelNoneMatch records that no candidate fits the caption.
	LabelNoneMatch Label = "none_match"
)

// ParseLabel normalizes free-form input ("GOLD", " Gold ") to a Label,
// falling back to LabelSkip for anything outside the closed set.
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelGold:
		return LabelGold
	case LabelNegative:
		return LabelNegative
	case LabelSkip:
		return LabelSkip
	case LabelAmbiguous:
		return LabelAmbiguous
	case LabelNoneMatch:
		return LabelNoneMatch
	default:
		return LabelSkip
	}
}

// Session is one batch of captions under review.
type Session struct {
	ID         int64
	SourceName string
	CreatedBy  string
	CreatedAt  time.Time
	Status     SessionStatus
}

// Row is one caption within a session.
type Row struct {
	ID        int64
	SessionID int64
	Caption   string
	UnitsIn   string
	QtyIn     string
	CreatedBy string
	CreatedAt time.Time
	IsTrusted bool
}

// NewRow is the insert payload for one feedback row.
type NewRow struct {
	Caption string
	Units   string
	Qty     string
}

// NewCandidate is the insert payload for one shown candidate.
type NewCandidate struct {
	RowID        int64
	ItemID       int64
	ModelName    string
	ModelVersion string
	Score        float64
	Rank         int
}

// NewLabel is the insert payload for one review decision.
type NewLabel struct {
	RowID          int64
	Label          Label
	SelectedItemID *int64
	Negatives      []int64
	Note           string
	CreatedBy      string
	IsTrusted      bool
}

// LabelRecord is a persisted review decision.
type LabelRecord struct {
	ID             int64
	RowID          int64
	Label          Label
	SelectedItemID *int64
	Negatives      []int64
	Note           string
	CreatedBy      string
	CreatedAt      time.Time
	IsTrusted      bool
}

// CreateSession opens a new feedback session and returns it.
func (q *queries) CreateSession(ctx context.Context, sourceName, createdBy string) (Session, error) {
	now := time.Now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO feedback_sessions (source_name, created_by, created_at, status) VALUES (?, ?, ?, ?)`,
		nullIfEmpty(sourceName), nullIfEmpty(createdBy), now.Unix(), string(SessionOpen))
	if err != nil {
		return Session{}, fmt.Errorf("store: create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("store: create session id: %w", err)
	}
	return Session{
		ID:         id,
		SourceName: sourceName,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		Status:     SessionOpen,
	}, nil
}

// GetSession loads a session by id, returning ErrSessionNotFound when absent.
func (q *queries) GetSession(ctx context.Context, id int64) (Session, error) {
	var s Session
	var status string
	var ts int64
	var source, createdBy sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT id, source_name, created_by, created_at, status FROM feedback_sessions WHERE id = ?`, id).
		Scan(&s.ID, &source, &createdBy, &ts, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("store: get session %d: %w", id, err)
	}
	s.SourceName = source.String
	s.CreatedBy = createdBy.String
	s.CreatedAt = time.Unix(ts, 0)
	s.Status = SessionStatus(status)
	return s, nil
}

// CloseSession transitions a session to closed. The transition is one-way;
// callers check the current status first (GetSession) under a transaction.
func (q *queries) CloseSession(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE feedback_sessions SET status = ? WHERE id = ?`, string(SessionClosed), id)
	if err != nil {
		return fmt.Errorf("store: close session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CreateRows bulk-inserts feedback rows for a session and returns them with
// ids assigned, in input order. Rows with an empty caption are skipped:
// batches from free-form UI state routinely mix well-formed and malformed
// entries, and one bad row must not abort the batch.
func (q *queries) CreateRows(ctx context.Context, sessionID int64, rows []NewRow, createdBy string) ([]Row, error) {
	now := time.Now()
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Caption) == "" {
			continue
		}
		res, err := q.db.ExecContext(ctx,
			`INSERT INTO feedback_rows (session_id, caption, units_in, qty_in, created_by, created_at, is_trusted)
			 VALUES (?, ?, ?, ?, ?, ?, 0)`,
			sessionID, r.Caption, nullIfEmpty(r.Units), nullIfEmpty(r.Qty), nullIfEmpty(createdBy), now.Unix())
		if err != nil {
			return nil, fmt.Errorf("store: create row: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("store: create row id: %w", err)
		}
		out = append(out, Row{
			ID:        id,
			SessionID: sessionID,
			Caption:   r.Caption,
			UnitsIn:   r.Units,
			QtyIn:     r.Qty,
			CreatedBy: createdBy,
			CreatedAt: now,
		})
	}
	return out, nil
}

// RowsForSession returns every row of a session ordered by id ascending —
// the insertion order the commit path's positional mapping depends on.
func (q *queries) RowsForSession(ctx context.Context, sessionID int64) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, session_id, caption, COALESCE(units_in, ''), COALESCE(qty_in, ''),
		        COALESCE(created_by, ''), created_at, is_trusted
		   FROM feedback_rows WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: rows for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Caption, &r.UnitsIn, &r.QtyIn,
			&r.CreatedBy, &ts, &r.IsTrusted); err != nil {
			return nil, fmt.Errorf("store: rows for session scan: %w", err)
		}
		r.CreatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows for session rows: %w", err)
	}
	return out, nil
}

// MarkRowsTrusted stamps is_trusted and created_by on every row of a session.
// Trust is decided at commit time by the actor's role, not at upload time.
func (q *queries) MarkRowsTrusted(ctx context.Context, sessionID int64, trusted bool, createdBy string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE feedback_rows SET is_trusted = ?, created_by = ? WHERE session_id = ?`,
		trusted, nullIfEmpty(createdBy), sessionID)
	if err != nil {
		return fmt.Errorf("store: mark rows trusted: %w", err)
	}
	return nil
}

// CreateCandidates bulk-inserts shown candidates. Duplicate
// (row_id, item_id, model_name) entries are ignored per the table's unique
// constraint — a model may not submit the same item twice for one row.
// Entries missing row or item identity are skipped. Returns the number of
// entries submitted.
func (q *queries) CreateCandidates(ctx context.Context, cands []NewCandidate) (int, error) {
	now := time.Now().Unix()
	submitted := 0
	for _, c := range cands {
		if c.RowID <= 0 || c.ItemID <= 0 || c.ModelName == "" {
			continue
		}
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO feedback_candidates (row_id, item_id, model_name, model_version, score, rank, shown, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT(row_id, item_id, model_name) DO NOTHING`,
			c.RowID, c.ItemID, c.ModelName, nullIfEmpty(c.ModelVersion), c.Score, c.Rank, now)
		if err != nil {
			return submitted, fmt.Errorf("store: create candidate: %w", err)
		}
		submitted++
	}
	return submitted, nil
}

// CandidatesForRow returns the candidates shown for one row ordered by rank.
func (q *queries) CandidatesForRow(ctx context.Context, rowID int64) ([]NewCandidate, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT row_id, item_id, model_name, COALESCE(model_version, ''), COALESCE(score, 0), COALESCE(rank, 0)
		   FROM feedback_candidates WHERE row_id = ? ORDER BY rank`, rowID)
	if err != nil {
		return nil, fmt.Errorf("store: candidates for row %d: %w", rowID, err)
	}
	defer rows.Close()

	var out []NewCandidate
	for rows.Next() {
		var c NewCandidate
		if err := rows.Scan(&c.RowID, &c.ItemID, &c.ModelName, &c.ModelVersion, &c.Score, &c.Rank); err != nil {
			return nil, fmt.Errorf("store: candidates scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: candidates rows: %w", err)
	}
	return out, nil
}

// DeleteLabelsForSession removes every label attached to the session's rows.
// Used by the commit path's idempotent replace: a recommit must not
// accumulate duplicate label history. Returns the number deleted.
func (q *queries) DeleteLabelsForSession(ctx context.Context, sessionID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM feedback_labels
		  WHERE row_id IN (SELECT id FROM feedback_rows WHERE session_id = ?)`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("store: delete labels for session %d: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateLabels bulk-inserts review decisions. Entries missing row identity
// or a label are skipped rather than aborting the batch. The gold→ambiguous
// downgrade is the caller's concern (review.NormalizeCommitRows); this layer
// persists exactly what it is given, except that unknown label strings are
// coerced through ParseLabel.
func (q *queries) CreateLabels(ctx context.Context, labels []NewLabel) (int, error) {
	now := time.Now().Unix()
	inserted := 0
	for _, l := range labels {
		if l.RowID <= 0 || l.Label == "" {
			continue
		}
		negatives := l.Negatives
		if negatives == nil {
			negatives = []int64{}
		}
		negJSON, err := json.Marshal(negatives)
		if err != nil {
			return inserted, fmt.Errorf("store: marshal negatives: %w", err)
		}

		var selected any
		if l.SelectedItemID != nil {
			selected = *l.SelectedItemID
		}

		_, err = q.db.ExecContext(ctx,
			`INSERT INTO feedback_labels (row_id, label, selected_item_id, negatives, note, created_by, created_at, is_trusted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.RowID, string(ParseLabel(string(l.Label))), selected, string(negJSON),
			nullIfEmpty(l.Note), nullIfEmpty(l.CreatedBy), now, l.IsTrusted)
		if err != nil {
			return inserted, fmt.Errorf("store: create label: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// LabelsForRow returns the label history of one row, oldest first.
func (q *queries) LabelsForRow(ctx context.Context, rowID int64) ([]LabelRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, row_id, label, selected_item_id, negatives, COALESCE(note, ''),
		        COALESCE(created_by, ''), created_at, is_trusted
		   FROM feedback_labels WHERE row_id = ? ORDER BY created_at, id`, rowID)
	if err != nil {
		return nil, fmt.Errorf("store: labels for row %d: %w", rowID, err)
	}
	defer rows.Close()

	var out []LabelRecord
	for rows.Next() {
		var l LabelRecord
		var label, negJSON string
		var selected sql.NullInt64
		var ts int64
		if err := rows.Scan(&l.ID, &l.RowID, &label, &selected, &negJSON, &l.Note,
			&l.CreatedBy, &ts, &l.IsTrusted); err != nil {
			return nil, fmt.Errorf("store: labels scan: %w", err)
		}
		l.Label = Label(label)
		if selected.Valid {
			v := selected.Int64
			l.SelectedItemID = &v
		}
		if err := json.Unmarshal([]byte(negJSON), &l.Negatives); err != nil {
			return nil, fmt.Errorf("store: labels negatives: %w", err)
		}
		l.CreatedAt = time.Unix(ts, 0)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: labels rows: %w", err)
	}
	return out, nil
}

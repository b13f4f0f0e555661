package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses. running is the only non-terminal state.
const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)

// ErrRunNotFound is returned when a training run id does not exist.
var ErrRunNotFound = errors.New("store: training run not found")

// TrainingRun is one recorded training attempt over consumed feedback rows.
type TrainingRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    *time.Time
	Mode          string
	BaseModel     string
	DataSpec      string // JSON: filters and params of the dataset build
	ArtifactsPath string
	Metrics       string // JSON
	Status        string
	LogPath       string
	CreatedBy     string
}

// NewTrainingRun is the insert payload for a run start.
type NewTrainingRun struct {
	Mode      string
	BaseModel string
	DataSpec  string
	CreatedBy string
}

// RunResult is the terminal state recorded by FinishTrainingRun.
type RunResult struct {
	Status        string // RunStatusOK or RunStatusFailed
	ArtifactsPath string
	Metrics       string
	LogPath       string
}

// CreateTrainingRun records the start of a run in the running state.
func (q *queries) CreateTrainingRun(ctx context.Context, nr NewTrainingRun) (TrainingRun, error) {
	now := time.Now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO training_runs (started_at, mode, base_model, data_spec, status, created_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now.Unix(), nr.Mode, nr.BaseModel, nr.DataSpec, RunStatusRunning, nullIfEmpty(nr.CreatedBy))
	if err != nil {
		return TrainingRun{}, fmt.Errorf("store: create training run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TrainingRun{}, fmt.Errorf("store: create training run id: %w", err)
	}
	return TrainingRun{
		ID:        id,
		StartedAt: now,
		Mode:      nr.Mode,
		BaseModel: nr.BaseModel,
		DataSpec:  nr.DataSpec,
		Status:    RunStatusRunning,
		CreatedBy: nr.CreatedBy,
	}, nil
}

// FinishTrainingRun records the terminal state of a run. The schema rejects
// statuses outside running/ok/failed.
func (q *queries) FinishTrainingRun(ctx context.Context, id int64, r RunResult) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE training_runs
		    SET finished_at = ?, status = ?, artifacts_path = ?, metrics = ?, log_path = ?
		  WHERE id = ?`,
		time.Now().Unix(), r.Status, nullIfEmpty(r.ArtifactsPath),
		nullIfEmpty(r.Metrics), nullIfEmpty(r.LogPath), id)
	if err != nil {
		return fmt.Errorf("store: finish training run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetTrainingRun loads one run by id.
func (q *queries) GetTrainingRun(ctx context.Context, id int64) (TrainingRun, error) {
	var r TrainingRun
	var started int64
	var finished sql.NullInt64
	var artifacts, metrics, logPath, createdBy sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, mode, base_model, data_spec,
		        artifacts_path, metrics, status, log_path, created_by
		   FROM training_runs WHERE id = ?`, id).
		Scan(&r.ID, &started, &finished, &r.Mode, &r.BaseModel, &r.DataSpec,
			&artifacts, &metrics, &r.Status, &logPath, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return TrainingRun{}, ErrRunNotFound
	}
	if err != nil {
		return TrainingRun{}, fmt.Errorf("store: get training run %d: %w", id, err)
	}
	r.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		r.FinishedAt = &t
	}
	r.ArtifactsPath = artifacts.String
	r.Metrics = metrics.String
	r.LogPath = logPath.String
	r.CreatedBy = createdBy.String
	return r, nil
}

// LinkRunRows records which feedback rows a run consumed. The link table is
// append-only: links are never updated or removed, so the ledger stays an
// accurate history of what each artifact was trained on. Duplicate links
// are ignored via the composite primary key.
func (q *queries) LinkRunRows(ctx context.Context, runID int64, rowIDs []int64) error {
	now := time.Now().Unix()
	for _, rowID := range rowIDs {
		if rowID <= 0 {
			continue
		}
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO training_run_rows (run_id, row_id, added_at) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, row_id) DO NOTHING`, runID, rowID, now)
		if err != nil {
			return fmt.Errorf("store: link run %d row %d: %w", runID, rowID, err)
		}
	}
	return nil
}

// RowIDsForRun returns the feedback row ids a run consumed, ascending.
func (q *queries) RowIDsForRun(ctx context.Context, runID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT row_id FROM training_run_rows WHERE run_id = ? ORDER BY row_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: rows for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: rows for run scan: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows for run rows: %w", err)
	}
	return out, nil
}

// UnconsumedTrustedRows returns trusted feedback rows not yet linked to any
// successful run — the candidate training set for the next run.
func (q *queries) UnconsumedTrustedRows(ctx context.Context) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT r.id, r.session_id, r.caption, COALESCE(r.units_in, ''), COALESCE(r.qty_in, ''),
		        COALESCE(r.created_by, ''), r.created_at, r.is_trusted
		   FROM feedback_rows r
		  WHERE r.is_trusted = 1
		    AND NOT EXISTS (
		          SELECT 1 FROM training_run_rows trr
		          JOIN training_runs tr ON tr.id = trr.run_id
		         WHERE trr.row_id = r.id AND tr.status = ?)
		  ORDER BY r.id`, RunStatusOK)
	if err != nil {
		return nil, fmt.Errorf("store: unconsumed trusted rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Caption, &r.UnitsIn, &r.QtyIn,
			&r.CreatedBy, &ts, &r.IsTrusted); err != nil {
			return nil, fmt.Errorf("store: unconsumed trusted rows scan: %w", err)
		}
		r.CreatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: unconsumed trusted rows rows: %w", err)
	}
	return out, nil
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stroikit/fsnbmatch/internal/logging"
	"github.com/stroikit/fsnbmatch/internal/matcher"
	"github.com/stroikit/fsnbmatch/internal/review"
	"github.com/stroikit/fsnbmatch/internal/store"
)

// maxBatchRows bounds how many captions one request may carry. The
// accelerator is a shared resource; oversized batches belong in the CLI.
const maxBatchRows = 500

// handleMatch handles POST /api/match. With ?format=xlsx the response is the
// spreadsheet report instead of JSON.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	inputs, err := toInputs(req.Items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	results, err := s.matcher.Match(r.Context(), inputs)
	if err != nil {
		s.metrics.matchRequestsTotal.WithLabelValues("error").Inc()
		s.serviceError(w, r, "match", err)
		return
	}
	s.metrics.matchRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.matchDurationSeconds.Observe(time.Since(start).Seconds())
	s.metrics.matchCaptionsTotal.Add(float64(len(inputs)))

	if r.URL.Query().Get("format") == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="match.xlsx"`)
		if err := matcher.WriteReportXLSX(w, results); err != nil {
			logging.FromContext(r.Context()).Error("match report write failed", "error", err)
		}
		return
	}

	resp := matchResponse{Results: make([]matchResult, len(results))}
	for i, res := range results {
		resp.Results[i] = matchResult{
			Caption:  res.Caption,
			Units:    res.Units,
			Qty:      res.Qty,
			ItemID:   res.ItemID,
			ItemName: res.ItemName,
			ItemCode: res.ItemCode,
			ItemUnit: res.ItemUnit,
			Score:    res.Score,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleItemsSearch handles GET /api/items/search?q=...&limit=... for the
// review UI's manual item picker.
func (s *Server) handleItemsSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := s.items.SearchItems(r.Context(), q, limit)
	if err != nil {
		s.serviceError(w, r, "items search", err)
		return
	}

	resp := itemsSearchResponse{Items: make([]itemResult, len(items))}
	for i, it := range items {
		resp.Items[i] = itemResult{
			ID:   it.ID,
			Code: it.Code,
			Name: it.Name,
			Unit: it.Unit,
			Kind: string(it.Kind),
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleReviewCandidates handles POST /api/review/candidates: top-k
// candidates per caption with nothing persisted.
func (s *Server) handleReviewCandidates(w http.ResponseWriter, r *http.Request) {
	var req candidatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	inputs, err := toInputs(req.Items)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cands, err := s.review.Candidates(r.Context(), inputs, req.TopK)
	if err != nil {
		s.serviceError(w, r, "candidates", err)
		return
	}
	writeJSON(w, r, http.StatusOK, candidatesResponse{Candidates: cands})
}

// handleReviewCreate handles POST /api/review/create: open a session, store
// its rows and the candidates shown for each.
func (s *Server) handleReviewCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items are required", http.StatusBadRequest)
		return
	}
	if len(req.Items) > maxBatchRows {
		http.Error(w, fmt.Sprintf("too many items, max %d", maxBatchRows), http.StatusBadRequest)
		return
	}

	rows := make([]store.NewRow, len(req.Items))
	for i, rr := range req.Items {
		rows[i] = store.NewRow{Caption: rr.Caption, Units: rr.Units, Qty: rr.Qty}
	}
	view, err := s.review.CreateSession(r.Context(), review.CreateSessionRequest{
		SourceName: req.SourceName,
		CreatedBy:  req.CreatedBy,
		Rows:       rows,
		TopK:       req.TopK,
	})
	if err != nil {
		s.serviceError(w, r, "create session", err)
		return
	}
	s.metrics.sessionsCreatedTotal.Inc()
	writeJSON(w, r, http.StatusCreated, view)
}

// handleReviewCommit handles POST /api/review/commit: persist a decision set
// for a session atomically, close it, and respond with the final-decisions
// spreadsheet. With ?format=json the response is the commit summary instead.
func (s *Server) handleReviewCommit(w http.ResponseWriter, r *http.Request) {
	var req review.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID <= 0 {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	res, err := s.review.Commit(r.Context(), req)
	if err != nil {
		s.serviceError(w, r, "commit", err)
		return
	}
	s.metrics.commitLabelsTotal.Add(float64(res.Labels))

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, r, http.StatusOK, res)
		return
	}
	s.writeSessionReport(w, r, req.SessionID)
}

// handleReviewReport handles GET /api/review/report?session_id=...: the
// committed-session spreadsheet.
func (s *Server) handleReviewReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("session_id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid session_id", http.StatusBadRequest)
		return
	}

	s.writeSessionReport(w, r, id)
}

// writeSessionReport streams the VOR spreadsheet for a committed session.
func (s *Server) writeSessionReport(w http.ResponseWriter, r *http.Request, id int64) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="VOR_%d.xlsx"`, id))
	if err := s.review.WriteSessionXLSX(r.Context(), w, id); err != nil {
		// Headers may already be out; reset only works if nothing was
		// written, which holds for validation errors raised up front.
		w.Header().Del("Content-Disposition")
		s.serviceError(w, r, "session report", err)
		return
	}
}

// serviceError maps service-level errors to HTTP statuses: unknown sessions
// are 404, state conflicts (closed session, payload out of step with the
// session's rows) are 409, everything else is a 502 because the failing
// party is a backing dependency, not this server.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logging.FromContext(r.Context())

	var status int
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrSessionClosed),
		errors.Is(err, review.ErrRowCountMismatch),
		errors.Is(err, review.ErrRowNotInSession):
		status = http.StatusConflict
	default:
		status = http.StatusBadGateway
		log.Error(op+" failed", "error", err)
	}
	if status != http.StatusBadGateway {
		log.Warn(op+" rejected", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// toInputs validates and converts request items to matcher inputs.
func toInputs(rows []matchRow) ([]matcher.Input, error) {
	if len(rows) == 0 {
		return nil, errors.New("items are required")
	}
	if len(rows) > maxBatchRows {
		return nil, fmt.Errorf("too many items, max %d", maxBatchRows)
	}
	inputs := make([]matcher.Input, len(rows))
	for i, r := range rows {
		inputs[i] = matcher.Input{Caption: r.Caption, Units: r.Units, Qty: r.Qty}
	}
	return inputs, nil
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", "error", err)
	}
}

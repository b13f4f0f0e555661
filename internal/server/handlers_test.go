package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stroikit/fsnbmatch/internal/matcher"
	"github.com/stroikit/fsnbmatch/internal/review"
	"github.com/stroikit/fsnbmatch/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeMatcher returns one canned result per input, or a fixed error.
type fakeMatcher struct {
	err error
}

func (f *fakeMatcher) Match(ctx context.Context, inputs []matcher.Input) ([]matcher.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]matcher.Result, len(inputs))
	for i, in := range inputs {
		out[i] = matcher.Result{
			Caption:  in.Caption,
			Units:    in.Units,
			Qty:      in.Qty,
			ItemID:   int64(i + 1),
			ItemName: "Устройство стяжек",
			ItemCode: "ФЕР11-01-011-01",
			ItemUnit: "100 м2",
			Score:    0.9,
		}
	}
	return out, nil
}

// fakeReview records calls and returns canned values or a fixed error.
type fakeReview struct {
	err        error
	commitReq  review.CommitRequest
	created    review.CreateSessionRequest
	wroteXLSX  bool
	reportByID int64
}

func (f *fakeReview) Candidates(ctx context.Context, inputs []matcher.Input, topK int) ([][]review.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]review.Candidate, len(inputs))
	for i := range inputs {
		out[i] = []review.Candidate{{ItemID: 1, Name: "Щебень", Code: "ФССЦ-01.1.01.01", Score: 0.8, Rank: 1}}
	}
	return out, nil
}

func (f *fakeReview) CreateSession(ctx context.Context, req review.CreateSessionRequest) (review.SessionView, error) {
	if f.err != nil {
		return review.SessionView{}, f.err
	}
	f.created = req
	return review.SessionView{SessionID: 5}, nil
}

func (f *fakeReview) Commit(ctx context.Context, req review.CommitRequest) (review.CommitResult, error) {
	if f.err != nil {
		return review.CommitResult{}, f.err
	}
	f.commitReq = req
	return review.CommitResult{SessionID: req.SessionID, Labels: len(req.Rows), Closed: true}, nil
}

func (f *fakeReview) WriteSessionXLSX(ctx context.Context, w io.Writer, sessionID int64) error {
	if f.err != nil {
		return f.err
	}
	f.wroteXLSX = true
	f.reportByID = sessionID
	_, err := w.Write([]byte("PK"))
	return err
}

// fakeItems returns canned search hits.
type fakeItems struct {
	err error
}

func (f *fakeItems) SearchItems(ctx context.Context, query string, limit int) ([]store.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len([]rune(strings.TrimSpace(query))) < 2 {
		return nil, nil
	}
	return []store.Item{{ID: 3, Code: "ФЕР11-01-011-01", Name: "Устройство стяжек", Unit: "100 м2", Kind: "work"}}, nil
}

// newTestServer builds a Server over fakes, returning the fakes for
// assertions.
func newTestServer(t *testing.T) (*Server, *fakeMatcher, *fakeReview, *fakeItems) {
	t.Helper()
	fm := &fakeMatcher{}
	fr := &fakeReview{}
	fi := &fakeItems{}
	s, err := New(fm, fr, fi, &Config{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, fm, fr, fi
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/match
// ---------------------------------------------------------------------------

func TestHandleMatch_JSON(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/match", matchRequest{
		Items: []matchRow{{Caption: "устройство стяжки", Units: "м2", Qty: "120"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp matchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("want 1 result, got %d", len(resp.Results))
	}
	r := resp.Results[0]
	if r.ItemCode != "ФЕР11-01-011-01" || r.Score != 0.9 || r.Qty != "120" {
		t.Errorf("result mapping: %+v", r)
	}
}

func TestHandleMatch_EmptyRowsRejected(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/match", matchRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleMatch_BackendFailureIs502(t *testing.T) {
	t.Parallel()
	s, fm, _, _ := newTestServer(t)
	fm.err = errors.New("qdrant unreachable")

	w := doJSON(t, s, http.MethodPost, "/api/match", matchRequest{
		Items: []matchRow{{Caption: "стяжка"}},
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestHandleMatch_XLSXFormat(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/match?format=xlsx", matchRequest{
		Items: []matchRow{{Caption: "стяжка"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type: %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip container")
	}
}

// ---------------------------------------------------------------------------
// GET /api/items/search
// ---------------------------------------------------------------------------

func TestHandleItemsSearch_OK(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/items/search?q=%D1%81%D1%82%D1%8F%D0%B6%D0%BA%D0%B0&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp itemsSearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Kind != "work" {
		t.Errorf("items mapping: %+v", resp.Items)
	}
}

func TestHandleItemsSearch_BadLimit(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/items/search?q=ab&limit=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Review endpoints
// ---------------------------------------------------------------------------

func TestHandleReviewCreate_OK(t *testing.T) {
	t.Parallel()
	s, _, fr, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/review/create", createSessionRequest{
		SourceName: "смета.xlsx",
		Items:      []matchRow{{Caption: "стяжка"}},
		TopK:       3,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d — body: %s", w.Code, w.Body.String())
	}
	if fr.created.SourceName != "смета.xlsx" || fr.created.TopK != 3 {
		t.Errorf("request not forwarded: %+v", fr.created)
	}
}

func TestHandleReviewCommit_RespondsWithReport(t *testing.T) {
	t.Parallel()
	s, _, fr, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/review/commit", review.CommitRequest{
		SessionID: 9,
		Rows:      []review.CommitRow{{Label: "gold"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if !fr.wroteXLSX || fr.reportByID != 9 {
		t.Errorf("commit must stream the session report: wrote=%v id=%d", fr.wroteXLSX, fr.reportByID)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "VOR_9.xlsx") {
		t.Errorf("Content-Disposition: %q", cd)
	}
}

func TestHandleReviewCommit_JSONFormat(t *testing.T) {
	t.Parallel()
	s, _, fr, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/review/commit?format=json", review.CommitRequest{
		SessionID: 4,
		Rows:      []review.CommitRow{{Label: "gold"}, {Label: "skip"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if fr.wroteXLSX {
		t.Error("json format must not stream the report")
	}

	var res review.CommitResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.SessionID != 4 || res.Labels != 2 || !res.Closed {
		t.Errorf("commit result mapping: %+v", res)
	}
}

func TestHandleReviewCommit_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing session", store.ErrSessionNotFound, http.StatusNotFound},
		{"closed session", review.ErrSessionClosed, http.StatusConflict},
		{"row count mismatch", review.ErrRowCountMismatch, http.StatusConflict},
		{"foreign row", review.ErrRowNotInSession, http.StatusConflict},
		{"backend down", errors.New("sqlite: disk I/O error"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, _, fr, _ := newTestServer(t)
			fr.err = tc.err

			w := doJSON(t, s, http.MethodPost, "/api/review/commit", review.CommitRequest{
				SessionID: 1,
				Rows:      []review.CommitRow{{Label: "skip"}},
			})
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d — body: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleReviewCommit_RequiresSessionID(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/review/commit", review.CommitRequest{
		Rows: []review.CommitRow{{Label: "skip"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleReviewReport_OK(t *testing.T) {
	t.Parallel()
	s, _, fr, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/review/report?session_id=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !fr.wroteXLSX || fr.reportByID != 7 {
		t.Errorf("report not delegated: wrote=%v id=%d", fr.wroteXLSX, fr.reportByID)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "VOR_7.xlsx") {
		t.Errorf("Content-Disposition: %q", cd)
	}
}

func TestHandleReviewReport_BadID(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/review/report?session_id=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleReviewCandidates_OK(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/review/candidates", candidatesRequest{
		Items: []matchRow{{Caption: "щебень"}},
		TopK: 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp candidatesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0][0].Code != "ФССЦ-01.1.01.01" {
		t.Errorf("candidates mapping: %+v", resp.Candidates)
	}
}

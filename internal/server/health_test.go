package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(t *testing.T, pingers ...Pinger) *Server {
	t.Helper()
	s, _, _, _ := newTestServer(t)
	s.pingers = pingers
	return s
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d — body: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()
	s := newReadyTestServer(t,
		&fakePinger{name: "sqlite"},
		&fakePinger{name: "qdrant"},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("response: %+v", resp)
	}
}

func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()
	s := newReadyTestServer(t,
		&fakePinger{name: "sqlite"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Ready {
		t.Error("ready must be false when a probe fails")
	}
	if resp.Checks[1].OK || resp.Checks[1].Error == "" {
		t.Errorf("failed check not reported: %+v", resp.Checks[1])
	}
}

func TestNewPinger_WrapsProbe(t *testing.T) {
	t.Parallel()

	called := false
	p := NewPinger("sqlite", func(ctx context.Context) error {
		called = true
		return nil
	})
	if p.Name() != "sqlite" {
		t.Errorf("name: %q", p.Name())
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !called {
		t.Error("probe not invoked")
	}

	p = NewPinger("qdrant", func(ctx context.Context) error {
		return errors.New("boom")
	})
	if err := p.Ping(context.Background()); err == nil {
		t.Fatal("want wrapped error")
	}
}

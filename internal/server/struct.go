package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stroikit/fsnbmatch/internal/matcher"
	"github.com/stroikit/fsnbmatch/internal/review"
	"github.com/stroikit/fsnbmatch/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. Batch
	// match requests hold the accelerator for a while, so the default is
	// generous.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// matchService is the interface handleMatch calls. *matcher.Matcher
// satisfies it; tests inject a fake.
type matchService interface {
	Match(ctx context.Context, inputs []matcher.Input) ([]matcher.Result, error)
}

// reviewService is the interface the review handlers call.
// *review.Service satisfies it; tests inject a fake.
type reviewService interface {
	Candidates(ctx context.Context, inputs []matcher.Input, topK int) ([][]review.Candidate, error)
	CreateSession(ctx context.Context, req review.CreateSessionRequest) (review.SessionView, error)
	Commit(ctx context.Context, req review.CommitRequest) (review.CommitResult, error)
	WriteSessionXLSX(ctx context.Context, w io.Writer, sessionID int64) error
}

// itemSearcher is the interface handleItemsSearch calls. *store.Store
// satisfies it.
type itemSearcher interface {
	SearchItems(ctx context.Context, query string, limit int) ([]store.Item, error)
}

// Server is the HTTP server exposing matching and review over REST.
type Server struct {
	matcher matchService
	review  reviewService
	items   itemSearcher

	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus instruments owned by this instance.
	metrics *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// matchRow is one caption in the POST /api/match request body. Key matching
// is case-insensitive, so clients may send Caption/Units/Quantity as the
// estimate tooling produces them.
type matchRow struct {
	// Caption is the free-form estimate line text.
	Caption string `json:"caption"`
	// Units is the unit of measure as written in the estimate.
	Units string `json:"units,omitempty"`
	// Qty is the quantity as written in the estimate.
	Qty string `json:"quantity,omitempty"`
}

// matchRequest is the JSON body for POST /api/match.
type matchRequest struct {
	Items []matchRow `json:"items"`
}

// matchResult is one row of the POST /api/match JSON response.
type matchResult struct {
	Caption  string  `json:"caption"`
	Units    string  `json:"units,omitempty"`
	Qty      string  `json:"qty,omitempty"`
	ItemID   int64   `json:"item_id,omitempty"`
	ItemName string  `json:"item_name,omitempty"`
	ItemCode string  `json:"item_code,omitempty"`
	ItemUnit string  `json:"item_unit,omitempty"`
	Score    float32 `json:"score"`
}

// matchResponse is the JSON response for POST /api/match.
type matchResponse struct {
	Results []matchResult `json:"results"`
}

// candidatesRequest is the JSON body for POST /api/review/candidates.
type candidatesRequest struct {
	Items []matchRow `json:"items"`
	TopK  int        `json:"top_k,omitempty"`
}

// candidatesResponse is the JSON response for POST /api/review/candidates.
type candidatesResponse struct {
	// Candidates is parallel to the request rows.
	Candidates [][]review.Candidate `json:"candidates"`
}

// createSessionRequest is the JSON body for POST /api/review/create.
type createSessionRequest struct {
	SourceName string     `json:"source_name,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	Items      []matchRow `json:"items"`
	TopK       int        `json:"top_k,omitempty"`
}

// itemsSearchResponse is the JSON response for GET /api/items/search.
type itemsSearchResponse struct {
	Items []itemResult `json:"items"`
}

// itemResult is one item in the GET /api/items/search response.
type itemResult struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
	Kind string `json:"kind"`
}

package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stroikit/fsnbmatch/internal/config"
	"github.com/stroikit/fsnbmatch/internal/embedder"
	"github.com/stroikit/fsnbmatch/internal/logging"
	"github.com/stroikit/fsnbmatch/internal/matcher"
	"github.com/stroikit/fsnbmatch/internal/review"
	"github.com/stroikit/fsnbmatch/internal/server"
	"github.com/stroikit/fsnbmatch/internal/vecindex"
)

// NewServeCmd constructs the `fsnbmatch serve` command, which starts the
// HTTP server exposing the matching and review APIs.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fsnbmatch HTTP server",
		Long: `Start the HTTP server exposing caption matching, catalog search and the
review feedback loop.

The server needs a populated item store ('fsnbmatch ingest') and a built
vector index ('fsnbmatch index'); /api/ready reports whether both backing
services are reachable.

Examples:
  fsnbmatch serve
  fsnbmatch serve --port 9090
  FSNB_API_KEY=secret fsnbmatch serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := config.FromEnv()

			s, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer s.Close()

			gateway, err := embedder.NewGatewayFromConfig(cfg.Embedding)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			idx, err := vecindex.NewQdrant(cfg.Qdrant)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer idx.Close()

			m := matcher.New(gateway, idx, s)
			rev := review.New(m, s, modelName(cfg), "")

			host = firstNonEmpty(host, cfg.Server.Host)
			if port == 0 {
				port = cfg.Server.Port
			}

			log.Info("serve starting",
				slog.String("model", modelName(cfg)),
				slog.Int("dimensions", gateway.Dimension()),
			)

			srv, err := server.New(m, rev, s, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewPinger("sqlite", s.Ping),
					server.NewPinger("qdrant", idx.Ping),
				},
				APIKey:    cfg.Server.APIKey,
				RateLimit: float64(cfg.Server.RateLimit),
				RateBurst: cfg.Server.RateBurst,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: 8080)")

	return cmd
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

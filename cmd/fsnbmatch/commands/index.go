package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stroikit/fsnbmatch/internal/config"
	"github.com/stroikit/fsnbmatch/internal/embedder"
	"github.com/stroikit/fsnbmatch/internal/indexer"
	"github.com/stroikit/fsnbmatch/internal/logging"
	"github.com/stroikit/fsnbmatch/internal/vecindex"
)

// NewIndexCmd constructs the `fsnbmatch index` command, which rebuilds the
// Qdrant collection from the item store.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from the item store",
		Long: `Drop and recreate the Qdrant collection, then embed and upsert every
item from the SQLite store.

The rebuild streams items in id order and holds the accelerator for its
duration; do not run two rebuilds against the same collection at once.
Searches during a rebuild see partial results.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: fsnb_giga)
  EMBEDDING_ENDPOINT   Embedding server base URL
  EMBEDDING_MODEL      Embedding model name (default: giga)

Examples:
  fsnbmatch index
  QDRANT_HOST=vector.internal fsnbmatch index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := config.FromEnv()

			s, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer s.Close()

			gateway, err := embedder.NewGatewayFromConfig(cfg.Embedding)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			idx, err := vecindex.NewQdrant(cfg.Qdrant)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer idx.Close()

			ix := indexer.New(s, gateway, idx)
			ix.Progress = func(done, total int64) {
				fmt.Printf("\rIndexed %d/%d items", done, total)
			}

			done, err := ix.Rebuild(ctx)
			if err != nil {
				fmt.Println()
				return fmt.Errorf("index: %w", err)
			}

			fmt.Println()
			log.Info("index: rebuild finished", slog.Int64("items", done))
			fmt.Printf("Rebuilt index with %d items.\n", done)
			return nil
		},
	}

	return cmd
}

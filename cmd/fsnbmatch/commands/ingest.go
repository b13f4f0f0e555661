package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stroikit/fsnbmatch/internal/catalog"
	"github.com/stroikit/fsnbmatch/internal/config"
	"github.com/stroikit/fsnbmatch/internal/logging"
)

// ingestBatchSize bounds how many parsed records are held in memory before
// being flushed to SQLite.
const ingestBatchSize = 5000

// NewIngestCmd constructs the `fsnbmatch ingest` command, which parses the
// FSNB XML catalogs into the SQLite item store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest FSNB XML catalogs into the item store",
		Long: `Parse the FSNB catalog XML files from a directory and load them into
the SQLite item store.

Both catalog shapes are recognised: work collections (nested name groups
with coded work entries) and flat resource catalogs. Entries without a code
or name are skipped. Re-running against the same files is a no-op — items
are keyed by catalog code.

With --replace the item store is emptied first. That resets item ids, so a
full index rebuild ('fsnbmatch index') is required afterwards.

Examples:
  fsnbmatch ingest --dir ./fsnb-2022
  fsnbmatch ingest --dir ./fsnb-2022 --replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			cfg := config.FromEnv()
			if dir == "" {
				dir = cfg.Catalog.Dir
			}
			if dir == "" {
				return fmt.Errorf("ingest: catalog directory is required (--dir or FSNB_CATALOG_DIR)")
			}

			s, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer s.Close()

			if replace {
				if err := s.TruncateItems(ctx); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("ingest: item store emptied, reindex required")
			}

			records, err := catalog.Stream(dir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			var batch []catalog.Record
			submitted := 0
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				n, err := s.BulkUpsertItems(ctx, batch)
				if err != nil {
					return err
				}
				submitted += n
				batch = batch[:0]
				return nil
			}

			for rec, err := range records {
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				batch = append(batch, rec)
				if len(batch) >= ingestBatchSize {
					if err := flush(); err != nil {
						return fmt.Errorf("ingest: %w", err)
					}
				}
			}
			if err := flush(); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			total, err := s.CountItems(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("ingest: complete",
				slog.String("dir", dir),
				slog.Int("parsed", submitted),
				slog.Int64("items_total", total),
			)
			fmt.Printf("Ingested %d records, item store now holds %d items.\n", submitted, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory containing FSNB *.xml catalog files")
	cmd.Flags().BoolVar(&replace, "replace", false, "Empty the item store before ingesting (requires reindex)")

	return cmd
}

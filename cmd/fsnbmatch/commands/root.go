// Package commands defines all Cobra CLI commands for the fsnbmatch binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/stroikit/fsnbmatch/internal/audit"
	"github.com/stroikit/fsnbmatch/internal/config"
	"github.com/stroikit/fsnbmatch/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fsnbmatch",
		Short: "fsnbmatch — semantic matching of estimate lines to the FSNB catalog",
		Long: `fsnbmatch matches free-form construction estimate captions to FSNB
catalog entries using dense embeddings and a Qdrant vector index.

It ingests the FSNB XML catalogs into SQLite, rebuilds the vector index
from the item store, and serves matching and review APIs over HTTP. Review
decisions accumulate as training data for the next embedding model.

Configuration comes from environment variables or a YAML config file
(~/.fsnbmatch/config.yaml). See 'fsnbmatch --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.fsnbmatch/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewIndexCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}

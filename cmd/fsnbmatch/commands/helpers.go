package commands

import (
	"fmt"

	"github.com/stroikit/fsnbmatch/internal/config"
	"github.com/stroikit/fsnbmatch/internal/store"
)

// openStore opens the SQLite item store at the configured path, falling back
// to the default location under the user's home directory.
func openStore(cfg config.Config) (*store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// modelName returns the configured embedding model name, defaulting to the
// shipped model.
func modelName(cfg config.Config) string {
	if cfg.Embedding.Model != "" {
		return cfg.Embedding.Model
	}
	return "giga"
}

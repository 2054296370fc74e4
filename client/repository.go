package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/docsession/internal/config"
	"github.com/jmcleod/docsession/storage"
	bboltstorage "github.com/jmcleod/docsession/storage/bbolt"
	"github.com/jmcleod/docsession/storage/memory"
	"github.com/jmcleod/docsession/storage/postgres"
)

// OpenRepository opens the storage backend named by cfg.Store. The returned
// close function releases it.
func OpenRepository(ctx context.Context, cfg config.Config) (storage.Repository, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewRepository(), func() error { return nil }, nil

	case config.StorePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { repo.Close(); return nil }, nil

	case config.StoreBBolt, "":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data dir: %w", err)
		}
		// A second process holding the file lock fails fast instead of hanging.
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.SessionDBPath(), &bbolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

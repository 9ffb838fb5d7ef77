package storage

import (
	"context"
	"fmt"

	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/store"
	"github.com/chirality-ai/valley/pkg/store/memory"
	pgstore "github.com/chirality-ai/valley/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenGraphStore builds the gateway selected by GRAPH_STORE. For the
// postgres backend it also returns the pool so callers can share it with the
// lease lock; the pool is nil for the memory backend. Closing the gateway
// closes the pool.
func OpenGraphStore(ctx context.Context) (store.Gateway, *pgxpool.Pool, error) {
	switch kind := util.GetEnvString("GRAPH_STORE", "postgres"); kind {
	case "memory":
		logger.Warn("[Storage] Using in-memory graph store, data is lost on exit")
		return memory.New(), nil, nil
	case "postgres":
	default:
		return nil, nil, fmt.Errorf("unknown GRAPH_STORE %q", kind)
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres graph store")
	}

	if util.GetEnvBool("DB_MIGRATE", true) {
		if err := pgstore.Migrate(databaseURL); err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	gateway := pgstore.NewGraphDBStorageWithConnection(
		pool,
		pgstore.WithMaxTransactions(int64(util.GetEnvInt("DB_MAX_TX", 16))),
		pgstore.WithRetries(util.GetEnvInt("DB_TX_RETRIES", 3)),
	)
	return gateway, pool, nil
}

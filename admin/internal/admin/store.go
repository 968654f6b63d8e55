package admin

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/pg"
)

// openStore connects to the ledger database and builds a store with default
// tier bounds. Callers own the returned pool and must Close it.
func openStore(ctx context.Context, log *slog.Logger, connStr string) (*pgxpool.Pool, *ledger.Store, error) {
	pool, err := pg.NewPool(ctx, pg.Config{
		Logger:  log,
		ConnStr: connStr,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.NewStore(ledger.Config{
		Logger: log,
		Pool:   pool,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	return pool, store, nil
}

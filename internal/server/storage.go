package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/api"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/config"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/database"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/search"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/storage/cache"
	memoryStorage "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/hnx-restricted-tracker/internal/storage/sqlite"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
)

// warmPageSize is the page size used to seed an empty search index.
const warmPageSize = 100

type stores struct {
	stocks    stock.Store
	watchlist watchlist.Store
	runs      refresh.RunStore
	snapshots refresh.SnapshotLog
	ready     map[string]api.Check
}

func (a *App) setupStorage(ctx context.Context) (stores, error) {
	st := stores{ready: map[string]api.Check{}}
	var err error
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		err = a.setupPostgres(ctx, &st)
	case config.BackendSQLite:
		err = a.setupSQLite(ctx, &st)
	default:
		a.logger.Info("using in-memory storage backend")
		st.stocks = memoryStorage.NewStockStore()
		st.watchlist = memoryStorage.NewWatchlistStore()
		st.runs = memoryStorage.NewRunStore()
	}
	if err != nil {
		return stores{}, err
	}

	if a.cfg.Cache.Addr != "" {
		cached, err := cache.Dial(ctx, cache.Config{
			Addr:     a.cfg.Cache.Addr,
			Password: a.cfg.Cache.Password,
			DB:       a.cfg.Cache.DB,
			TTL:      a.cfg.Cache.TTL,
		}, st.stocks, a.logger.Named("cache"))
		if err != nil {
			return stores{}, fmt.Errorf("redis cache init failed: %w", err)
		}
		a.onClose("redis", func(context.Context) error { return cached.Close() })
		st.stocks = cached
		st.ready["redis"] = cached.Ping
		a.logger.Info("redis stock cache enabled", zap.String("addr", a.cfg.Cache.Addr), zap.Duration("ttl", a.cfg.Cache.TTL))
	}
	return st, nil
}

func (a *App) setupPostgres(ctx context.Context, st *stores) error {
	a.logger.Info("using postgres storage backend")
	if a.cfg.Storage.AutoMigrate {
		if err := Migrate(ctx, a.cfg, a.logger); err != nil {
			return err
		}
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Storage.DSN,
		MaxConns:        int32(a.cfg.Storage.MaxConns),
		MinConns:        int32(a.cfg.Storage.MinConns),
		MaxConnLifetime: a.cfg.Storage.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	if st.stocks, err = pgstore.NewStockStore(pool); err != nil {
		return err
	}
	if st.watchlist, err = pgstore.NewWatchlistStore(pool); err != nil {
		return err
	}
	if st.runs, err = pgstore.NewRunStore(pool); err != nil {
		return err
	}
	if st.snapshots, err = pgstore.NewSnapshotLog(pool); err != nil {
		return err
	}
	st.ready["postgres"] = pool.Ping
	return nil
}

func (a *App) setupSQLite(ctx context.Context, st *stores) error {
	a.logger.Info("using sqlite storage backend", zap.String("path", a.cfg.Storage.SQLitePath))
	db, err := database.Open(ctx, databaseConfig(a.cfg), a.logger.Named("database"))
	if err != nil {
		return fmt.Errorf("sqlite open failed: %w", err)
	}
	a.onClose("sqlite", func(context.Context) error { return db.Close() })
	if a.cfg.Storage.AutoMigrate {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("sqlite migrate failed: %w", err)
		}
	}
	if st.stocks, err = sqlitestore.NewStockStore(db.DB); err != nil {
		return err
	}
	if st.watchlist, err = sqlitestore.NewWatchlistStore(db.DB); err != nil {
		return err
	}
	if st.runs, err = sqlitestore.NewRunStore(db.DB); err != nil {
		return err
	}
	if st.snapshots, err = sqlitestore.NewSnapshotLog(db.DB); err != nil {
		return err
	}
	st.ready["sqlite"] = db.Health
	return nil
}

// setupSearch opens the index and seeds it from the store when it is empty.
func (a *App) setupSearch(ctx context.Context, stocks stock.Store) ([]stock.ServiceOption, error) {
	if !a.cfg.Search.Enabled {
		a.logger.Info("search index disabled, searching the store directly")
		return nil, nil
	}
	idx, err := search.Open(a.cfg.Search.IndexPath, a.logger.Named("search"))
	if err != nil {
		return nil, fmt.Errorf("search index init failed: %w", err)
	}
	a.onClose("search index", func(context.Context) error { return idx.Close() })

	count, err := idx.Count()
	if err != nil {
		return nil, fmt.Errorf("search index count: %w", err)
	}
	if count == 0 {
		seeded, err := warmIndex(ctx, idx, stocks)
		if err != nil {
			a.logger.Warn("search index warm-up failed", zap.Error(err))
		} else {
			a.logger.Info("search index seeded", zap.Int("stocks", seeded))
		}
	}
	return []stock.ServiceOption{stock.WithIndex(idx)}, nil
}

func warmIndex(ctx context.Context, idx stock.Index, stocks stock.Store) (int, error) {
	seeded := 0
	for page := 1; ; page++ {
		res, err := stocks.List(ctx, stock.ListQuery{Page: page, Limit: warmPageSize})
		if err != nil {
			return seeded, fmt.Errorf("list stocks: %w", err)
		}
		if err := idx.Index(ctx, res.Stocks); err != nil {
			return seeded, fmt.Errorf("index stocks: %w", err)
		}
		seeded += len(res.Stocks)
		if !res.HasMore || len(res.Stocks) == 0 {
			return seeded, nil
		}
	}
}

func databaseConfig(cfg config.Config) database.Config {
	if cfg.Storage.Backend == config.BackendSQLite {
		return database.Config{Driver: database.DriverSQLite, DSN: cfg.Storage.SQLitePath}
	}
	return database.Config{
		Driver:          database.DriverPostgres,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxConns,
		ConnMaxLifetime: cfg.Storage.MaxConnLifetime,
	}
}

// Migrate applies the embedded schema for the configured relational backend.
func Migrate(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	return withDatabase(ctx, cfg, logger, func(db *database.DB) error {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate %s: %w", db.Driver(), err)
		}
		return nil
	})
}

// Rollback reverts steps migrations on the configured relational backend.
func Rollback(ctx context.Context, cfg config.Config, steps int, logger *zap.Logger) error {
	return withDatabase(ctx, cfg, logger, func(db *database.DB) error {
		if err := db.Rollback(steps); err != nil {
			return fmt.Errorf("rollback %s: %w", db.Driver(), err)
		}
		return nil
	})
}

func withDatabase(ctx context.Context, cfg config.Config, logger *zap.Logger, fn func(*database.DB) error) error {
	if cfg.Storage.Backend == config.BackendMemory {
		return fmt.Errorf("storage.backend %q has no schema to migrate", cfg.Storage.Backend)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.Open(ctx, databaseConfig(cfg), logger.Named("database"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("database close failed", zap.Error(cerr))
		}
	}()
	return fn(db)
}

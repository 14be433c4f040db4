// Package application wires configuration into a running ledger service:
// the store, the cross-process commit lock and the core.Service on top.
// Both the HTTP server and the CLI start from Open.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/golab-ledger/internal/config"
	"github.com/JonMunkholm/golab-ledger/internal/core"
	_ "github.com/JonMunkholm/golab-ledger/internal/core/sheets" // register layouts
	"github.com/JonMunkholm/golab-ledger/internal/lock"
	"github.com/JonMunkholm/golab-ledger/internal/pgstore"
)

// App holds the service and the connections behind it.
type App struct {
	Service *core.Service
	Store   core.Store

	pool *pgxpool.Pool
	rdb  *redis.Client
}

// Open builds an App from cfg. With no database URL the ledger lives in
// memory for the lifetime of the process.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	threshold, err := cfg.Import.Threshold()
	if err != nil {
		return nil, fmt.Errorf("price threshold: %w", err)
	}

	app := &App{}
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, using in-memory ledger")
		app.Store = core.NewMemStore()
	} else {
		if cfg.Database.AutoMigrate {
			if err := pgstore.Migrate(cfg.Database.URL); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}
		pool, err := pgstore.Connect(ctx, pgstore.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		app.pool = pool
		app.Store = pgstore.New(pool)
		logger.Info("connected to database", "name", databaseName(cfg.Database.URL))
	}

	var locker core.Locker
	if cfg.Lock.Enabled() {
		rdb, err := lock.Connect(ctx, lock.ClientConfig{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		app.rdb = rdb
		locker = lock.NewRedisLocker(rdb, lock.Options{
			TTL:  cfg.Lock.TTL,
			Wait: cfg.Import.CommitWait,
		})
		logger.Info("commit lock enabled", "redis", cfg.Lock.RedisAddr)
	} else if app.pool != nil {
		locker = pgstore.NewAdvisoryLocker(app.pool, cfg.Import.CommitWait)
		logger.Info("commit lock enabled", "postgres", "advisory")
	}

	app.Service = core.NewService(app.Store, core.ServiceOptions{
		CommitWait:     cfg.Import.CommitWait,
		PriceThreshold: threshold,
		FirstBatchSize: cfg.Import.FirstBatchSize,
		Locker:         locker,
	})

	logger.Info("layouts registered", "count", core.LayoutCount())
	return app, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

func databaseName(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

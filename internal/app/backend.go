// Package app wires the stores, pipeline and notification service shared by
// the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/grc/internal/config"
	"github.com/JonMunkholm/grc/internal/core"
	_ "github.com/JonMunkholm/grc/internal/core/objects" // Register object types
	"github.com/JonMunkholm/grc/internal/database"
	"github.com/JonMunkholm/grc/internal/notification"
	"github.com/JonMunkholm/grc/internal/permissions"
)

// Store is everything the pipeline and the notification service need from
// persistence.
type Store interface {
	core.Store
	notification.Store
}

// App holds the wired components.
type App struct {
	Store         Store
	Pipeline      *core.Pipeline
	Notifications *notification.Service
	Limiter       *core.ImportLimiter
	Enforcer      *permissions.Enforcer
	Roles         *permissions.Registry

	// DB is nil when running in memory.
	DB   *database.Store
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, or builds an in-memory store when
// cfg.Database.InMemory is set, and wires the components on top.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Roles: permissions.Default()}

	var queue notification.Queue
	if cfg.Database.InMemory {
		a.Store = core.NewMemoryStore()
		queue = notification.NewMemoryQueue()
		slog.Warn("using in-memory store, nothing is persisted")
	} else {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		a.DB = database.NewStore(pool)
		a.Store = a.DB
		queue = notification.NewDBQueue(a.DB.Queries())
	}

	enf, err := permissions.NewEnforcer(a.Roles)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Enforcer = enf

	a.Notifications = notification.NewService(a.Store, queue, nil, notification.Config{
		Sender:            cfg.Notification.Sender,
		BaseURL:           cfg.Notification.BaseURL,
		CycleDueDays:      cfg.Notification.CycleDueDays,
		CycleStartingDays: cfg.Notification.CycleStartingDays,
	})
	a.Limiter = core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	a.Pipeline = core.NewPipeline(a.Store,
		core.WithAuthorizer(enf),
		core.WithNotifier(a.Notifications),
		core.WithLimiter(a.Limiter),
		core.WithMaxFileSize(cfg.Import.MaxFileSize),
	)

	slog.Info("object types registered", "count", len(core.All()), "importable", len(core.Importable()))
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// Open builds the store selected by cfg.Backend. The caller closes it.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (ingestion.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening store",
		slog.String("backend", string(cfg.Backend)),
		slog.String("target", cfg.Target()))

	switch cfg.Backend {
	case BackendSQLite:
		store, err := NewSQLiteStore(ctx, cfg.SQLitePath, WithSQLiteLogger(logger))
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendPostgres:
		conn, err := NewConnection(cfg)
		if err != nil {
			return nil, err
		}

		store, err := NewPostgresStore(conn,
			WithPostgresLogger(logger),
			WithOwnedConnection(),
			WithMigrationTable(cfg.MigrationTable),
		)
		if err != nil {
			_ = conn.Close()

			return nil, err
		}

		if cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()

				return nil, err
			}
		}

		return store, nil
	case BackendREST:
		store, err := NewRESTStore(cfg, WithRESTLogger(logger))
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

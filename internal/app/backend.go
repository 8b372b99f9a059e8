package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
	db "github.com/dealfanatics/rss-pipeline/internal/storage"
	"github.com/dealfanatics/rss-pipeline/internal/storage/memory"
)

// QueueStore is the live queue plus its dead-letter operations.
type QueueStore interface {
	ports.Queue
	ports.DeadLetterQueue
}

// Backend bundles the stores one process runs against.
type Backend struct {
	Sources ports.SourceAdmin
	Dedup   ports.DedupStore
	Queue   QueueStore
	Records ports.RecordStore
	Pinger  ports.Pinger

	// Database is nil for the memory backend.
	Database *db.DB
}

// OpenBackend connects the configured storage backend and applies migrations.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-process storage, state is lost on exit")

		return &Backend{
			Sources: memory.NewSourceStore(),
			Dedup:   memory.NewDedupStore(),
			Queue:   memory.NewQueue(cfg.Queue.Name, cfg.Queue.MaxReceiveCount),
			Records: memory.NewRecordStore(),
		}, nil
	case config.BackendPostgres:
		database, err := db.NewWithOptions(ctx, cfg.Database.PostgresDSN, db.PoolOptions{
			MaxConns:          cfg.Database.MaxConnections,
			MinConns:          cfg.Database.MinConnections,
			MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}

		if err := database.Migrate(ctx); err != nil {
			database.Close()

			return nil, fmt.Errorf("run migrations: %w", err)
		}

		return &Backend{
			Sources:  database.NewSourceStore(),
			Dedup:    database.NewDedupStore(),
			Queue:    database.NewQueue(cfg.Queue.Name, cfg.Queue.MaxReceiveCount),
			Records:  database.NewRecordStore(),
			Pinger:   database,
			Database: database,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.Database != nil {
		b.Database.Close()
	}
}

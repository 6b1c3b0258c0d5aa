package sink

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DefaultBatchSize bounds the rows queued per round trip.
const DefaultBatchSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertRepository = `
INSERT INTO repositories (id, data) VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`

// Postgres stores items in the repositories table. Rows already present are
// kept, so rerunning a fetch is idempotent.
type Postgres struct {
	pool      *pgxpool.Pool
	owned     bool
	batchSize int
	logger    zerolog.Logger

	inserted   atomic.Int64
	duplicates atomic.Int64
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := NewPostgres(pool, logger)
	p.owned = true
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres uses an existing pool. Close leaves the pool open.
func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) *Postgres {
	return &Postgres{
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    logger.With().Str("component", "sink").Logger(),
	}
}

// EnsureSchema creates the repositories table if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Write implements Sink.
func (p *Postgres) Write(ctx context.Context, items []search.Item) error {
	for start := 0; start < len(items); start += p.batchSize {
		end := min(start+p.batchSize, len(items))
		if err := p.writeBatch(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) writeBatch(ctx context.Context, items []search.Item) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(insertRepository, item.ID, string(item.Data))
	}

	results := p.pool.SendBatch(ctx, batch)
	var inserted int64
	for _, item := range items {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("insert repository %s: %w", item.ID, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	dups := int64(len(items)) - inserted
	p.inserted.Add(inserted)
	p.duplicates.Add(dups)
	p.logger.Debug().
		Int("rows", len(items)).
		Int64("inserted", inserted).
		Int64("duplicates", dups).
		Msg("Batch written")
	return nil
}

// Inserted returns the number of new rows written.
func (p *Postgres) Inserted() int64 {
	return p.inserted.Load()
}

// Duplicates returns the number of rows skipped because the id existed.
func (p *Postgres) Duplicates() int64 {
	return p.duplicates.Load()
}

// Close implements Sink.
func (p *Postgres) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, opts storage.Options, logger *observability.Logger) (storage.Repository, error) {
		return NewRepository(ctx, opts, logger)
	})
}

type Repository struct {
	pool           *pgxpool.Pool
	table          string
	commandTimeout time.Duration
	batchSize      int
	logger         *observability.Logger
}

func NewRepository(ctx context.Context, opts storage.Options, logger *observability.Logger) (*Repository, error) {
	pool, err := pgxpool.New(ctx, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{
		pool:           pool,
		table:          opts.Table,
		commandTimeout: opts.CommandTimeout,
		batchSize:      opts.BatchSize,
		logger:         logger,
	}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			checksum      CHAR(64) PRIMARY KEY,
			price         DOUBLE PRECISION NOT NULL,
			location      TEXT,
			bedroom       DOUBLE PRECISION,
			bathroom      DOUBLE PRECISION,
			garage        TEXT,
			floor_size    DOUBLE PRECISION,
			property_type TEXT,
			loaded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pgx.Identifier{r.table}.Sanitize())

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// SaveListings отправляет вставки пачками по batchSize; конфликты по checksum игнорируются.
func (r *Repository) SaveListings(ctx context.Context, listings []storage.Listing) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (checksum, price, location, bedroom, bathroom, garage, floor_size, property_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (checksum) DO NOTHING`, pgx.Identifier{r.table}.Sanitize())

	inserted := 0
	for start := 0; start < len(listings); start += r.batchSize {
		end := min(start+r.batchSize, len(listings))

		n, err := r.sendBatch(ctx, query, listings[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n

		r.logger.Debug("Listings batch saved",
			"table", r.table,
			"batch_start", start,
			"batch_size", end-start,
			"inserted", n,
		)
	}
	return inserted, nil
}

func (r *Repository) sendBatch(ctx context.Context, query string, listings []storage.Listing) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(query, l.CheckSum, l.Price, l.Location, l.Bedroom, l.Bathroom, l.Garage, l.FloorSize, l.PropertyType)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	inserted := 0
	for range listings {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert listing: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *Repository) CountListings(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{r.table}.Sanitize())
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return count, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

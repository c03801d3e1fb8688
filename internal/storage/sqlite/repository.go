package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, opts storage.Options, logger *observability.Logger) (storage.Repository, error) {
		return NewRepository(ctx, opts, logger)
	})
}

// Repository хранит объявления в локальном файле SQLite
type Repository struct {
	db             *sql.DB
	table          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(ctx context.Context, opts storage.Options, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// один писатель
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{
		db:             db,
		table:          opts.Table,
		commandTimeout: opts.CommandTimeout,
		logger:         logger,
	}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			checksum      TEXT PRIMARY KEY,
			price         REAL NOT NULL,
			location      TEXT,
			bedroom       REAL,
			bathroom      REAL,
			garage        TEXT,
			floor_size    REAL,
			property_type TEXT,
			loaded_at     TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now'))
		)`, r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// SaveListings использует INSERT OR IGNORE по первичному ключу checksum
func (r *Repository) SaveListings(ctx context.Context, listings []storage.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO "%s" (checksum, price, location, bedroom, bathroom, garage, floor_size, property_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, r.table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	inserted := 0
	for _, l := range listings {
		res, err := stmt.ExecContext(ctx, l.CheckSum, l.Price, l.Location, l.Bedroom, l.Bathroom, l.Garage, l.FloorSize, l.PropertyType)
		if err != nil {
			return 0, fmt.Errorf("insert listing: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *Repository) CountListings(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, r.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return count, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.commandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.commandTimeout)
}

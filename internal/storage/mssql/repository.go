package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/storage"
)

func init() {
	storage.Register("mssql", func(ctx context.Context, opts storage.Options, logger *observability.Logger) (storage.Repository, error) {
		return NewRepository(ctx, opts, logger)
	})
}

type Repository struct {
	db             *sql.DB
	table          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(ctx context.Context, opts storage.Options, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlserver", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Тестируем соединение
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
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

// EnsureSchema создаёт таблицу объявлений
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		IF OBJECT_ID(N'dbo.%[1]s', N'U') IS NULL
		CREATE TABLE dbo.%[1]s (
			[CheckSum]     CHAR(64)       NOT NULL PRIMARY KEY,
			[Price]        FLOAT          NOT NULL,
			[Location]     NVARCHAR(400)  NULL,
			[Bedroom]      FLOAT          NULL,
			[Bathroom]     FLOAT          NULL,
			[Garage]       NVARCHAR(50)   NULL,
			[FloorSize]    FLOAT          NULL,
			[PropertyType] NVARCHAR(100)  NULL,
			[LoadedAt]     DATETIME2      NOT NULL DEFAULT SYSUTCDATETIME()
		);
	`, r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}
	return nil
}

// SaveListings вставляет новые объявления одной транзакцией; существующие CheckSum пропускаются
func (r *Repository) SaveListings(ctx context.Context, listings []storage.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	// MERGE statement для MS SQL
	query := fmt.Sprintf(`
		MERGE INTO dbo.%s AS target
		USING (SELECT @CheckSum AS CheckSum) AS source
		ON target.[CheckSum] = source.CheckSum
		WHEN NOT MATCHED THEN
			INSERT ([CheckSum], [Price], [Location], [Bedroom], [Bathroom], [Garage], [FloorSize], [PropertyType])
			VALUES (@CheckSum, @Price, @Location, @Bedroom, @Bathroom, @Garage, @FloorSize, @PropertyType);
	`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	inserted := 0
	for _, l := range listings {
		result, err := stmt.ExecContext(ctx,
			sql.Named("CheckSum", l.CheckSum),
			sql.Named("Price", l.Price),
			sql.Named("Location", l.Location),
			sql.Named("Bedroom", l.Bedroom),
			sql.Named("Bathroom", l.Bathroom),
			sql.Named("Garage", l.Garage),
			sql.Named("FloorSize", l.FloorSize),
			sql.Named("PropertyType", l.PropertyType),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to execute merge: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rowsAffected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// CountListings возвращает число строк в таблице
func (r *Repository) CountListings(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM dbo.%s`, r.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to query database: %w", err)
	}
	return count, nil
}

// Close закрывает соединение с БД
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

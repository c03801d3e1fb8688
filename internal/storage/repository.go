package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/table"
)

// Listing представляет строку итоговой таблицы для сохранения в БД
type Listing struct {
	CheckSum     string // SHA256 строки, уникальный ключ
	Price        float64
	Location     sql.NullString
	Bedroom      sql.NullFloat64
	Bathroom     sql.NullFloat64
	Garage       sql.NullString
	FloorSize    sql.NullFloat64
	PropertyType sql.NullString
}

// Repository интерфейс для работы с хранилищем объявлений
type Repository interface {
	// EnsureSchema создаёт таблицу объявлений, если её нет
	EnsureSchema(ctx context.Context) error

	// SaveListings вставляет объявления, которых ещё нет (по CheckSum), возвращает число вставленных
	SaveListings(ctx context.Context, listings []Listing) (int, error)

	// CountListings возвращает количество сохранённых объявлений
	CountListings(ctx context.Context) (int, error)

	Close() error
}

type Options struct {
	DSN            string
	Table          string
	CommandTimeout time.Duration
	BatchSize      int
}

type Factory func(ctx context.Context, opts Options, logger *observability.Logger) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// Register вызывается драйверами из init
func Register(driver string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[driver] = f
}

func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Open открывает хранилище зарегистрированного драйвера
func Open(ctx context.Context, driver string, opts Options, logger *observability.Logger) (Repository, error) {
	registryMu.RLock()
	f, ok := registry[driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q (registered: %v)", driver, Drivers())
	}
	if !tableName.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return f(ctx, opts, logger)
}

// ListingsFromTable переводит итоговую таблицу в записи для БД.
// Строки без числовой цены отклоняются.
func ListingsFromTable(t *table.Table) ([]Listing, error) {
	if !slices.Equal(t.Columns, table.FinalColumns) {
		return nil, fmt.Errorf("%w: %v", table.ErrHeaderMismatch, t.Columns)
	}

	listings := make([]Listing, 0, t.Len())
	for i, r := range t.Rows {
		price := r[0]
		if !price.IsNumber() {
			return nil, fmt.Errorf("row %d: price is not numeric", i)
		}
		listings = append(listings, Listing{
			CheckSum:     r.Hash(),
			Price:        price.Num,
			Location:     nullString(r[1]),
			Bedroom:      nullFloat(r[2]),
			Bathroom:     nullFloat(r[3]),
			Garage:       nullString(r[4]),
			FloorSize:    nullFloat(r[5]),
			PropertyType: nullString(r[6]),
		})
	}
	return listings, nil
}

func nullString(c table.Cell) sql.NullString {
	if c.IsNull() {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func nullFloat(c table.Cell) sql.NullFloat64 {
	if !c.IsNumber() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Num, Valid: true}
}

package app

import (
	"context"
	"fmt"
	"io"

	"house-prices-etl/internal/config"
	"house-prices-etl/internal/fetcher"
	"house-prices-etl/internal/merge"
	"house-prices-etl/internal/normalize"
	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/scraper"
	"house-prices-etl/internal/storage"
	"house-prices-etl/internal/storage/csvfile"
	"house-prices-etl/internal/table"

	_ "house-prices-etl/internal/storage/mssql"
	_ "house-prices-etl/internal/storage/postgres"
	_ "house-prices-etl/internal/storage/sqlite"
)

// Pipeline связывает обход источников, нормализацию, слияние и сохранение
type Pipeline struct {
	cfg          *config.Config
	logger       *observability.Logger
	orchestrator *Orchestrator
}

func NewPipeline(cfg *config.Config, logger *observability.Logger, source fetcher.PageSource) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		logger:       logger,
		orchestrator: NewOrchestrator(cfg, logger, source),
	}
}

// NewPageSource выбирает транспорт: headless-браузер при rod.enabled, иначе HTTP.
// Возвращаемый closer нужно вызвать по завершении.
func NewPageSource(cfg *config.Config, logger *observability.Logger) (fetcher.PageSource, io.Closer, error) {
	if cfg.Rod.Enabled {
		rf, err := fetcher.NewRodFetcher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return rf, rf, nil
	}
	f := fetcher.NewFetcher(cfg, logger)
	return f, f, nil
}

// Crawl обходит указанные источники (все, если имена не заданы) и пишет их CSV
func (p *Pipeline) Crawl(ctx context.Context, names ...string) error {
	sources, err := p.selectSources(names)
	if err != nil {
		return err
	}

	for _, src := range sources {
		selectors, err := p.cfg.LoadSelectorsForSource(src)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		scr, err := scraper.NewScraper(selectors)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}

		raw, _, err := p.orchestrator.Crawl(ctx, src, scr)
		if err != nil {
			return err
		}

		if err := csvfile.Write(src.OutputCSV, raw); err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		p.logger.Info("Source table written",
			"source", src.Name,
			"path", src.OutputCSV,
			"rows", raw.Len(),
		)
	}
	return nil
}

// Clean читает CSV источников, нормализует, сливает и сохраняет итог
func (p *Pipeline) Clean(ctx context.Context) (*table.Table, error) {
	normalized := make([]*table.Table, 0, len(p.cfg.Sources))

	for i := range p.cfg.Sources {
		src := &p.cfg.Sources[i]

		raw, err := csvfile.Read(src.OutputCSV)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		tbl, report, err := normalize.NewNormalizer(*src, p.cfg.Cleaning).Normalize(raw)
		if err != nil {
			return nil, err
		}
		p.logger.Info("Source normalized",
			"source", src.Name,
			"input_rows", report.InputRows,
			"dropped_no_price", report.DroppedNoPrice,
			"dropped_too_sparse", report.DroppedTooSparse,
			"rows", report.OutputRows,
		)
		normalized = append(normalized, tbl)
	}

	final, report, err := merge.MergeAll(normalized, p.cfg.Cleaning.MaxMissing)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	p.logger.Info("Sources merged",
		"input_rows", report.InputRows,
		"coerced", report.Coerced,
		"dropped_too_sparse", report.DroppedTooSparse,
		"duplicates", report.Duplicates,
		"rows", report.OutputRows,
	)

	if err := csvfile.Write(p.cfg.Storage.FinalCSV, final); err != nil {
		return nil, err
	}
	p.logger.Info("Final table written", "path", p.cfg.Storage.FinalCSV, "rows", final.Len())

	if err := p.saveToDatabase(ctx, final); err != nil {
		return nil, err
	}
	return final, nil
}

// Run полный прогон: обход всех источников, затем очистка
func (p *Pipeline) Run(ctx context.Context) (*table.Table, error) {
	if err := p.Crawl(ctx); err != nil {
		return nil, err
	}
	return p.Clean(ctx)
}

func (p *Pipeline) saveToDatabase(ctx context.Context, final *table.Table) error {
	db := p.cfg.Storage.Database
	if db.Driver == "" {
		return nil
	}

	listings, err := storage.ListingsFromTable(final)
	if err != nil {
		return err
	}

	repo, err := storage.Open(ctx, db.Driver, storage.Options{
		DSN:            db.DSN,
		Table:          db.Table,
		CommandTimeout: p.cfg.GetCommandTimeout(),
		BatchSize:      db.BatchSize,
	}, p.logger)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", db.Driver, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			p.logger.Warn("Failed to close storage", "driver", db.Driver, "error", err.Error())
		}
	}()

	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	inserted, err := repo.SaveListings(ctx, listings)
	if err != nil {
		return err
	}

	total, err := repo.CountListings(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Listings saved",
		"driver", db.Driver,
		"table", db.Table,
		"inserted", inserted,
		"skipped_existing", len(listings)-inserted,
		"total", total,
	)
	return nil
}

func (p *Pipeline) selectSources(names []string) ([]*config.SourceConfig, error) {
	if len(names) == 0 {
		out := make([]*config.SourceConfig, len(p.cfg.Sources))
		for i := range p.cfg.Sources {
			out[i] = &p.cfg.Sources[i]
		}
		return out, nil
	}

	out := make([]*config.SourceConfig, 0, len(names))
	for _, name := range names {
		src, err := p.cfg.Source(name)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

package app

import (
	"context"
	"fmt"

	"house-prices-etl/internal/config"
	"house-prices-etl/internal/fetcher"
	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/scraper"
	"house-prices-etl/internal/table"
)

type Orchestrator struct {
	cfg     *config.Config
	logger  *observability.Logger
	fetcher fetcher.PageSource
}

func NewOrchestrator(
	cfg *config.Config,
	logger *observability.Logger,
	f fetcher.PageSource,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		fetcher: f,
	}
}

type PaginationStats struct {
	Source        string
	TotalPages    int
	TotalPanels   int
	EmptyPages    int
	Duplicates    int
	TotalRows     int
	StoppedReason string
}

// Crawl обходит страницы источника по одной и возвращает дедуплицированную сырую таблицу.
// Ошибка загрузки любой страницы прерывает обход без частичного результата.
func (o *Orchestrator) Crawl(ctx context.Context, src *config.SourceConfig, scr *scraper.Scraper) (*table.Table, *PaginationStats, error) {
	o.logger.Info("Starting pagination",
		"source", src.Name,
		"strategy", o.cfg.Pagination.Strategy,
		"first_page_url", src.PageURL(1),
		"max_pages", src.MaxPages,
		"page_delay", o.cfg.GetPageDelay().String(),
	)

	stats := &PaginationStats{Source: src.Name}
	raw := table.New(scr.Columns()...)

	var err error
	if o.cfg.Pagination.Strategy == config.StrategyNextLink {
		err = o.crawlNextLink(ctx, src, scr, raw, stats)
	} else {
		err = o.crawlFixed(ctx, src, scr, raw, stats)
	}
	if err != nil {
		return nil, stats, err
	}

	result := raw.Dedup()
	stats.Duplicates = raw.Len() - result.Len()
	stats.TotalRows = result.Len()

	o.logger.Info("Pagination completed",
		"source", src.Name,
		"total_pages", stats.TotalPages,
		"total_panels", stats.TotalPanels,
		"empty_pages", stats.EmptyPages,
		"duplicates", stats.Duplicates,
		"rows", stats.TotalRows,
		"reason", stats.StoppedReason,
	)

	return result, stats, nil
}

// crawlFixed: страницы 1..max_pages подряд
func (o *Orchestrator) crawlFixed(ctx context.Context, src *config.SourceConfig, scr *scraper.Scraper, raw *table.Table, stats *PaginationStats) error {
	for pageNum := 1; pageNum <= src.MaxPages; pageNum++ {
		body, _, err := o.fetchPage(ctx, src, pageNum, src.PageURL(pageNum), stats)
		if err != nil {
			return err
		}

		if _, err := o.collect(src, scr, pageNum, body, raw, stats); err != nil {
			return err
		}
	}

	stats.StoppedReason = fmt.Sprintf("reached max_pages %d", src.MaxPages)
	return nil
}

// crawlNextLink: идём по ссылкам "следующая страница" до max_pages
func (o *Orchestrator) crawlNextLink(ctx context.Context, src *config.SourceConfig, scr *scraper.Scraper, raw *table.Table, stats *PaginationStats) error {
	currentURL := src.PageURL(1)
	visited := make(map[string]struct{})

	for pageNum := 1; ; pageNum++ {
		if pageNum > src.MaxPages {
			stats.StoppedReason = fmt.Sprintf("reached max_pages %d", src.MaxPages)
			return nil
		}
		visited[currentURL] = struct{}{}

		body, finalURL, err := o.fetchPage(ctx, src, pageNum, currentURL, stats)
		if err != nil {
			return err
		}

		panels, err := o.collect(src, scr, pageNum, body, raw, stats)
		if err != nil {
			return err
		}
		if panels == 0 {
			stats.StoppedReason = fmt.Sprintf("no panels on page %d", pageNum)
			return nil
		}

		// Ищем ссылку на следующую страницу
		nextLink, err := scr.FindNextPageLink(body, finalURL)
		if err != nil {
			o.logger.Error("Failed to extract next link",
				"source", src.Name,
				"page", pageNum,
				"error", err.Error(),
			)
			stats.StoppedReason = fmt.Sprintf("failed to extract next link at page %d: %v", pageNum, err)
			return nil
		}

		if nextLink == "" {
			stats.StoppedReason = fmt.Sprintf("no next link at page %d", pageNum)
			return nil
		}
		if _, seen := visited[nextLink]; seen {
			stats.StoppedReason = fmt.Sprintf("next link at page %d points to a visited page", pageNum)
			return nil
		}

		o.logger.Debug("Next URL extracted",
			"source", src.Name,
			"page", pageNum,
			"next_url", nextLink,
		)
		currentURL = nextLink
	}
}

func (o *Orchestrator) fetchPage(ctx context.Context, src *config.SourceConfig, pageNum int, pageURL string, stats *PaginationStats) (string, string, error) {
	o.logger.Info("Processing page",
		"source", src.Name,
		"page", pageNum,
		"url", pageURL,
	)

	resp, err := o.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		o.logger.Error("Fetch failed",
			"source", src.Name,
			"page", pageNum,
			"url", pageURL,
			"error", err.Error(),
		)
		stats.StoppedReason = fmt.Sprintf("fetch error at page %d: %v", pageNum, err)
		return "", "", fmt.Errorf("source %s page %d: %w", src.Name, pageNum, err)
	}

	stats.TotalPages++
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = pageURL
	}
	return string(resp.Body), finalURL, nil
}

// collect разбирает панели страницы и добавляет строки в порядке документа
func (o *Orchestrator) collect(src *config.SourceConfig, scr *scraper.Scraper, pageNum int, body string, raw *table.Table, stats *PaginationStats) (int, error) {
	rows, err := scr.ParsePanels(body)
	if err != nil {
		o.logger.Error("Parse listing failed",
			"source", src.Name,
			"page", pageNum,
			"error", err.Error(),
		)
		stats.StoppedReason = fmt.Sprintf("parse error at page %d: %v", pageNum, err)
		return 0, fmt.Errorf("source %s page %d: %w", src.Name, pageNum, err)
	}

	if len(rows) == 0 {
		stats.EmptyPages++
		o.logger.Warn("No panels found on page",
			"source", src.Name,
			"page", pageNum,
		)
		return 0, nil
	}

	for _, r := range rows {
		if err := raw.Append(r); err != nil {
			return 0, err
		}
	}
	stats.TotalPanels += len(rows)

	o.logger.Debug("Page analysis",
		"source", src.Name,
		"page", pageNum,
		"panels", len(rows),
		"rows_so_far", raw.Len(),
	)
	return len(rows), nil
}

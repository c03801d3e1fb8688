package fetcher

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"house-prices-etl/internal/config"
	"house-prices-etl/internal/observability"
)

// RodFetcher renders pages in headless Chrome for sources that build listings client-side.
type RodFetcher struct {
	cfg         *config.Config
	logger      *observability.Logger
	browser     *rod.Browser
	rateLimiter *RateLimiter
}

func NewRodFetcher(cfg *config.Config, logger *observability.Logger) (*RodFetcher, error) {
	l := launcher.New().Headless(true)
	if cfg.Rod.ChromePath != "" {
		l = l.Bin(cfg.Rod.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RodFetcher{
		cfg:         cfg,
		logger:      logger,
		browser:     browser,
		rateLimiter: NewRateLimiter(cfg.GetPageDelay()),
	}, nil
}

func (r *RodFetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if err := r.rateLimiter.Wait(ctx, parsedURL.Host); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: urlStr})
	if err != nil {
		return nil, fmt.Errorf("open page %s: %w", urlStr, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("Failed to close browser page", "url", urlStr, "error", err.Error())
		}
	}()

	page = page.Timeout(r.cfg.GetRodPageTimeout())
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", urlStr, err)
	}

	body, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html %s: %w", urlStr, err)
	}

	r.logger.Debug("Page rendered", "url", urlStr, "body_bytes", len(body))

	return &FetchResponse{
		StatusCode: 200,
		Body:       []byte(body),
		URL:        urlStr,
	}, nil
}

func (r *RodFetcher) Close() error {
	return r.browser.Close()
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"house-prices-etl/internal/config"
	"house-prices-etl/internal/fetcher"
	"house-prices-etl/internal/observability"
	"house-prices-etl/internal/scraper"
	"house-prices-etl/internal/table"
)

// listing поля в порядке колонок; пустая строка означает отсутствующий элемент
type listing [7]string

var spanClasses = [7]string{"price", "location", "bedroom", "bathroom", "garage", "size", "title"}

const testSelectorsYAML = `root_selector: "div.listing"
fields:
  - field: price
    selector: "span.price::text"
  - field: location
    selector: "span.location::text"
  - field: bedroom
    selector: "span.bedroom::text"
  - field: bathroom
    selector: "span.bathroom::text"
  - field: garage
    selector: "span.garage::text"
  - field: floorSize
    selector: "span.size::text"
  - field: type
    selector: "span.title::text"
next_page_link:
  - "a.next"
`

func renderPage(next string, listings ...listing) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"results\">")
	for _, l := range listings {
		b.WriteString(`<div class="listing">`)
		for i, v := range l {
			if v == "" {
				continue
			}
			fmt.Fprintf(&b, `<span class="%s">%s</span>`, spanClasses[i], v)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</div>")
	if next != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// listingServer отдаёт страницы по пути и запоминает порядок запросов
type listingServer struct {
	*httptest.Server
	mu       sync.Mutex
	pages    map[string]string
	failing  map[string]int
	requests []string
}

func newListingServer(t *testing.T) *listingServer {
	t.Helper()
	ls := &listingServer{pages: map[string]string{}, failing: map[string]int{}}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		ls.requests = append(ls.requests, r.URL.Path)
		status, failing := ls.failing[r.URL.Path]
		page, ok := ls.pages[r.URL.Path]
		ls.mu.Unlock()

		if failing {
			w.WriteHeader(status)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) Requests() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return slices.Clone(ls.requests)
}

func testConfig(strategy string) *config.Config {
	return &config.Config{
		HTTP: config.HttpConfig{
			UserAgent:        "house-prices-test",
			ConnectTimeoutMS: 2000,
			TotalTimeoutMS:   5000,
		},
		Pagination: config.PaginationConfig{Strategy: strategy},
	}
}

func testScraper(t *testing.T) *scraper.Scraper {
	t.Helper()
	sel := &scraper.Selectors{
		RootSelector: "div.listing",
		NextPageLink: []string{"a.next"},
	}
	for i, col := range table.RawColumns {
		sel.Fields = append(sel.Fields, scraper.FieldMapping{Field: col, Selector: "span." + spanClasses[i] + "::text"})
	}
	scr, err := scraper.NewScraper(sel)
	if err != nil {
		t.Fatal(err)
	}
	return scr
}

func newTestOrchestrator(cfg *config.Config) *Orchestrator {
	nop := observability.NewNop()
	return NewOrchestrator(cfg, nop, fetcher.NewFetcher(cfg, nop))
}

func locations(t *testing.T, tbl *table.Table) []string {
	t.Helper()
	cells, err := tbl.Column(table.ColLocation)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.String()
	}
	return out
}

func TestCrawlFixedKeepsPageAndPanelOrder(t *testing.T) {
	srv := newListingServer(t)
	srv.pages["/list"] = renderPage("",
		listing{"1200000", "Claremont", "3", "2", "1", "120 m²", "3 Bedroom House"},
		listing{"950000", "Rondebosch", "2", "1", "", "85 m²", "2 Bedroom Apartment"},
	)
	srv.pages["/list/p2"] = renderPage("",
		listing{"3100000", "Constantia", "4", "3", "2", "450 m²", "4 Bedroom House"},
		listing{"1200000", "Claremont", "3", "2", "1", "120 m²", "3 Bedroom House"},
	)
	srv.pages["/list/p3"] = renderPage("",
		listing{"780000", "Woodstock", "1", "1", "0", "42 m²", "1 Bedroom Flat"},
	)

	src := &config.SourceConfig{
		Name:            "alpha",
		FirstPageURL:    srv.URL + "/list",
		PageURLTemplate: srv.URL + "/list/p{page}",
		MaxPages:        3,
	}

	tbl, stats, err := newTestOrchestrator(testConfig(config.StrategyFixed)).Crawl(context.Background(), src, testScraper(t))
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	want := []string{"Claremont", "Rondebosch", "Constantia", "Woodstock"}
	if got := locations(t, tbl); !slices.Equal(got, want) {
		t.Errorf("locations = %v, want %v", got, want)
	}
	if !slices.Equal(tbl.Columns, table.RawColumns) {
		t.Errorf("columns = %v", tbl.Columns)
	}
	if stats.TotalPages != 3 || stats.TotalPanels != 5 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := srv.Requests(); !slices.Equal(got, []string{"/list", "/list/p2", "/list/p3"}) {
		t.Errorf("requests = %v", got)
	}

	garage := tbl.Rows[1][tbl.Index(table.ColGarage)]
	if !garage.IsNull() {
		t.Errorf("missing garage = %+v, want null", garage)
	}
}

func TestCrawlFixedContinuesAfterEmptyPage(t *testing.T) {
	srv := newListingServer(t)
	srv.pages["/list/p1"] = renderPage("", listing{"1", "A", "1", "1", "1", "1 m²", "1 Bedroom House"})
	srv.pages["/list/p2"] = renderPage("")
	srv.pages["/list/p3"] = renderPage("", listing{"2", "B", "1", "1", "1", "1 m²", "1 Bedroom House"})

	src := &config.SourceConfig{Name: "alpha", PageURLTemplate: srv.URL + "/list/p{page}", MaxPages: 3}

	tbl, stats, err := newTestOrchestrator(testConfig(config.StrategyFixed)).Crawl(context.Background(), src, testScraper(t))
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if tbl.Len() != 2 || stats.EmptyPages != 1 {
		t.Errorf("rows = %d, stats = %+v", tbl.Len(), stats)
	}
}

func TestCrawlAbortsOnFetchError(t *testing.T) {
	srv := newListingServer(t)
	srv.pages["/list/p1"] = renderPage("", listing{"1", "A", "1", "1", "1", "1 m²", "1 Bedroom House"})
	srv.failing["/list/p2"] = http.StatusInternalServerError
	srv.pages["/list/p3"] = renderPage("", listing{"2", "B", "1", "1", "1", "1 m²", "1 Bedroom House"})

	src := &config.SourceConfig{Name: "alpha", PageURLTemplate: srv.URL + "/list/p{page}", MaxPages: 3}

	tbl, stats, err := newTestOrchestrator(testConfig(config.StrategyFixed)).Crawl(context.Background(), src, testScraper(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if tbl != nil {
		t.Errorf("expected no table, got %d rows", tbl.Len())
	}
	if !strings.Contains(stats.StoppedReason, "page 2") {
		t.Errorf("reason = %q", stats.StoppedReason)
	}
	if got := srv.Requests(); slices.Contains(got, "/list/p3") {
		t.Errorf("page 3 fetched after failure: %v", got)
	}
}

func TestCrawlNextLink(t *testing.T) {
	tests := []struct {
		name       string
		maxPages   int
		setup      func(srv *listingServer)
		wantPages  int
		wantReason string
	}{
		{
			name:     "stops without next link",
			maxPages: 10,
			setup: func(srv *listingServer) {
				srv.pages["/list"] = renderPage("/list/p2", listing{"1", "A", "1", "1", "1", "1 m²", "House"})
				srv.pages["/list/p2"] = renderPage("", listing{"2", "B", "1", "1", "1", "1 m²", "House"})
			},
			wantPages:  2,
			wantReason: "no next link",
		},
		{
			name:     "stops on visited page",
			maxPages: 10,
			setup: func(srv *listingServer) {
				srv.pages["/list"] = renderPage("/list/p2", listing{"1", "A", "1", "1", "1", "1 m²", "House"})
				srv.pages["/list/p2"] = renderPage("/list", listing{"2", "B", "1", "1", "1", "1 m²", "House"})
			},
			wantPages:  2,
			wantReason: "visited",
		},
		{
			name:     "stops at max pages",
			maxPages: 1,
			setup: func(srv *listingServer) {
				srv.pages["/list"] = renderPage("/list/p2", listing{"1", "A", "1", "1", "1", "1 m²", "House"})
				srv.pages["/list/p2"] = renderPage("", listing{"2", "B", "1", "1", "1", "1 m²", "House"})
			},
			wantPages:  1,
			wantReason: "max_pages",
		},
		{
			name:     "stops on empty page",
			maxPages: 10,
			setup: func(srv *listingServer) {
				srv.pages["/list"] = renderPage("/list/p2", listing{"1", "A", "1", "1", "1", "1 m²", "House"})
				srv.pages["/list/p2"] = renderPage("/list/p3")
			},
			wantPages:  2,
			wantReason: "no panels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newListingServer(t)
			tt.setup(srv)

			src := &config.SourceConfig{
				Name:            "alpha",
				FirstPageURL:    srv.URL + "/list",
				PageURLTemplate: srv.URL + "/list/p{page}",
				MaxPages:        tt.maxPages,
			}

			_, stats, err := newTestOrchestrator(testConfig(config.StrategyNextLink)).Crawl(context.Background(), src, testScraper(t))
			if err != nil {
				t.Fatalf("Crawl: %v", err)
			}
			if stats.TotalPages != tt.wantPages {
				t.Errorf("pages = %d, want %d", stats.TotalPages, tt.wantPages)
			}
			if !strings.Contains(stats.StoppedReason, tt.wantReason) {
				t.Errorf("reason = %q, want it to mention %q", stats.StoppedReason, tt.wantReason)
			}
		})
	}
}

func TestCrawlCancelled(t *testing.T) {
	srv := newListingServer(t)
	srv.pages["/list/p1"] = renderPage("", listing{"1", "A", "1", "1", "1", "1 m²", "House"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &config.SourceConfig{Name: "alpha", PageURLTemplate: srv.URL + "/list/p{page}", MaxPages: 2}
	if _, _, err := newTestOrchestrator(testConfig(config.StrategyFixed)).Crawl(ctx, src, testScraper(t)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"house-prices-etl/internal/table"
)

type Scraper struct {
	root   cascadia.Selector
	fields []compiledField
	next   []*Selector
}

// NewScraper компилирует селекторы источника
func NewScraper(selectors *Selectors) (*Scraper, error) {
	if strings.TrimSpace(selectors.RootSelector) == "" {
		return nil, fmt.Errorf("root_selector is required")
	}
	root, err := cascadia.Compile(selectors.RootSelector)
	if err != nil {
		return nil, fmt.Errorf("invalid root selector %q: %w", selectors.RootSelector, err)
	}

	s := &Scraper{root: root}
	for _, f := range selectors.Fields {
		sel, err := CompileSelector(f.Selector)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Field, err)
		}
		s.fields = append(s.fields, compiledField{field: f.Field, selector: sel})
	}
	for _, expr := range selectors.NextPageLink {
		sel, err := CompileSelector(expr)
		if err != nil {
			return nil, fmt.Errorf("next_page_link: %w", err)
		}
		s.next = append(s.next, sel)
	}

	return s, nil
}

// Columns возвращает колонки строк, которые производит скрапер
func (s *Scraper) Columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.field
	}
	return cols
}

// ParsePanels парсит страницу листинга и возвращает по строке на каждую панель объявления
func (s *Scraper) ParsePanels(page string) ([]table.Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var rows []table.Row
	doc.FindMatcher(s.root).Each(func(_ int, panel *goquery.Selection) {
		rows = append(rows, s.ExtractRow(panel))
	})

	return rows, nil
}

// ExtractRow применяет маппинг полей к одной панели.
// Отсутствующее поле даёт Null, строка никогда не отбрасывается.
func (s *Scraper) ExtractRow(panel *goquery.Selection) table.Row {
	row := make(table.Row, len(s.fields))
	for i, f := range s.fields {
		row[i] = extractField(panel, f.selector)
	}
	return row
}

func extractField(panel *goquery.Selection, sel *Selector) (cell table.Cell) {
	defer func() {
		if r := recover(); r != nil {
			cell = table.NullCell()
		}
	}()

	value, ok := sel.extract(panel)
	if !ok {
		return table.NullCell()
	}
	return table.TextCell(strings.TrimSpace(value))
}

func (sel *Selector) extract(panel *goquery.Selection) (string, bool) {
	matches := panel.FindMatcher(sel.matcher)
	if matches.Length() == 0 {
		return "", false
	}

	switch sel.Extract {
	case ExtractAttr:
		return matches.First().Attr(sel.Attr)

	case ExtractOwnText:
		// Первый текстовый узел среди прямых потомков совпавших элементов
		for _, n := range matches.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					return c.Data, true
				}
			}
		}
		return "", false

	default:
		return matches.First().Text(), true
	}
}

// FindNextPageLink ищет ссылку на следующую страницу и делает её абсолютной
func (s *Scraper) FindNextPageLink(page, pageURL string) (string, error) {
	if len(s.next) == 0 {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, sel := range s.next {
		match := doc.FindMatcher(sel.matcher).First()
		attr := sel.Attr
		if attr == "" {
			attr = "href"
		}
		href, exists := match.Attr(attr)
		if exists && strings.TrimSpace(href) != "" {
			return resolveHref(pageURL, href), nil
		}
	}

	return "", nil // Нет следующей страницы
}

func resolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if idx := strings.Index(href, "#"); idx > -1 {
		href = href[:idx]
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return baseURL.ResolveReference(ref).String()
}

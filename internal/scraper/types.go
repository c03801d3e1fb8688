package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Extract способ получения значения из найденного элемента
type Extract string

const (
	ExtractText    Extract = "text"     // весь текст потомков
	ExtractOwnText Extract = "own_text" // первый собственный текстовый узел (::text)
	ExtractAttr    Extract = "attr"     // значение атрибута (::attr(name))
)

var attrSuffix = regexp.MustCompile(`::attr\(\s*([^)\s]+)\s*\)$`)

// Selector скомпилированное выражение селектора поля
type Selector struct {
	Expr    string
	CSS     string
	Extract Extract
	Attr    string

	matcher cascadia.Selector
}

// CompileSelector разбирает выражение вида "css", "css::text" или "css::attr(name)"
func CompileSelector(expr string) (*Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty selector")
	}

	s := &Selector{Expr: expr, CSS: expr, Extract: ExtractText}
	switch {
	case strings.HasSuffix(expr, "::text"):
		s.CSS = strings.TrimSuffix(expr, "::text")
		s.Extract = ExtractOwnText
	case attrSuffix.MatchString(expr):
		m := attrSuffix.FindStringSubmatch(expr)
		s.CSS = expr[:len(expr)-len(m[0])]
		s.Extract = ExtractAttr
		s.Attr = m[1]
	}
	s.CSS = strings.TrimSpace(s.CSS)

	matcher, err := cascadia.Compile(s.CSS)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", expr, err)
	}
	s.matcher = matcher
	return s, nil
}

// FieldMapping пара (поле, селектор)
type FieldMapping struct {
	Field    string `yaml:"field"`
	Selector string `yaml:"selector"`
}

// Selectors набор селекторов одного источника
type Selectors struct {
	RootSelector string         `yaml:"root_selector"`
	Fields       []FieldMapping `yaml:"fields"`
	NextPageLink []string       `yaml:"next_page_link"`
}

// FieldNames возвращает имена полей в порядке маппинга
func (s *Selectors) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Field
	}
	return names
}

type compiledField struct {
	field    string
	selector *Selector
}

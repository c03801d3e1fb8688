package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"house-prices-etl/internal/config"
	"house-prices-etl/internal/table"
)

const nbsp = "\u00a0"

// Columns нормализованной таблицы источника: сырые колонки и propertyType.
var Columns = append(append([]string{}, table.RawColumns...), table.ColPropertyType)

type Normalizer struct {
	source     string
	rules      config.NormalizeConfig
	maxMissing int
}

// Report описывает отсев строк при нормализации
type Report struct {
	Source           string
	InputRows        int
	DroppedNoPrice   int
	DroppedTooSparse int
	OutputRows       int
}

func NewNormalizer(src config.SourceConfig, cleaning config.CleaningConfig) *Normalizer {
	return &Normalizer{
		source:     src.Name,
		rules:      src.Normalize,
		maxMissing: cleaning.MaxMissing,
	}
}

// Normalize приводит сырую таблицу источника к общему виду и отбрасывает неполные строки.
func (n *Normalizer) Normalize(raw *table.Table) (*table.Table, *Report, error) {
	idx := make(map[string]int, len(table.RawColumns))
	for _, col := range table.RawColumns {
		i := raw.Index(col)
		if i < 0 {
			return nil, nil, fmt.Errorf("source %s: missing column %s", n.source, col)
		}
		idx[col] = i
	}

	report := &Report{Source: n.source, InputRows: raw.Len()}
	out := table.New(Columns...)

	for _, r := range raw.Rows {
		price := n.price(r[idx[table.ColPrice]])
		if price.IsNull() {
			report.DroppedNoPrice++
			continue
		}

		row := table.Row{
			price,
			r[idx[table.ColLocation]],
			Count(r[idx[table.ColBedroom]]),
			Count(r[idx[table.ColBathroom]]),
			r[idx[table.ColGarage]],
			n.floorSize(r[idx[table.ColFloorSize]]),
			r[idx[table.ColType]],
			n.propertyType(r[idx[table.ColType]]),
		}
		if row.NullCount() > n.maxMissing {
			report.DroppedTooSparse++
			continue
		}
		if err := out.Append(row); err != nil {
			return nil, nil, err
		}
	}

	report.OutputRows = out.Len()
	return out, report, nil
}

func (n *Normalizer) price(c table.Cell) table.Cell {
	if c.IsNull() || c.IsNumber() {
		return c
	}

	s := c.Str
	if n.rules.Price.Clean {
		s = strings.ReplaceAll(s, nbsp, " ")
		s = strings.TrimSpace(s)
		if n.rules.Price.CurrencyPrefix != "" {
			s = strings.TrimLeft(s, n.rules.Price.CurrencyPrefix)
		}
		s = strings.ReplaceAll(s, " ", "")
	}

	if v, ok := ParseNumber(s); ok {
		return table.NumberCell(v)
	}
	return table.NullCell()
}

func (n *Normalizer) floorSize(c table.Cell) table.Cell {
	if c.IsNull() || c.IsNumber() {
		return c
	}

	s := strings.TrimSpace(c.Str)
	for _, unit := range n.rules.FloorSizeUnits {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSuffix(s, unit)
			break
		}
	}
	s = strings.ReplaceAll(s, nbsp, "")
	s = strings.ReplaceAll(s, " ", "")

	v, ok := ParseNumber(s)
	if !ok || v < 0 {
		return table.NullCell()
	}
	return table.NumberCell(v)
}

func (n *Normalizer) propertyType(c table.Cell) table.Cell {
	if c.IsNull() {
		return c
	}

	tokens := strings.Fields(c.String())
	if len(tokens) == 0 {
		return table.NullCell()
	}

	last := tokens[len(tokens)-1]
	if alias, ok := n.rules.PropertyTypeAliases[last]; ok {
		last = alias
	}
	return table.TextCell(last)
}

// Count приводит количество комнат к числу, оставляя нечисловой текст как есть.
func Count(c table.Cell) table.Cell {
	if c.Kind != table.Text {
		return c
	}
	if v, ok := ParseNumber(c.Str); ok {
		return table.NumberCell(v)
	}
	return c
}

// ParseNumber разбирает конечное десятичное число
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

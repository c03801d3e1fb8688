// Package merge объединяет нормализованные таблицы источников в итоговый набор.
package merge

import (
	"fmt"

	"house-prices-etl/internal/normalize"
	"house-prices-etl/internal/table"
)

type Report struct {
	InputRows        int
	Coerced          int
	DroppedTooSparse int
	Duplicates       int
	OutputRows       int
}

// Merge склеивает таблицы, убирает колонку type, строго приводит bedroom и bathroom
// к числам и удаляет повторяющиеся строки. Порядок первых вхождений сохраняется.
func Merge(a, b *table.Table, maxMissing int) (*table.Table, *Report, error) {
	return MergeAll([]*table.Table{a, b}, maxMissing)
}

// MergeAll то же для произвольного числа источников
func MergeAll(tables []*table.Table, maxMissing int) (*table.Table, *Report, error) {
	combined, err := table.Concat(tables...)
	if err != nil {
		return nil, nil, fmt.Errorf("concat: %w", err)
	}

	merged, err := combined.DropColumn(table.ColType)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{InputRows: merged.Len()}

	var counts []int
	for _, col := range []string{table.ColBedroom, table.ColBathroom} {
		idx := merged.Index(col)
		if idx < 0 {
			return nil, nil, fmt.Errorf("merged table has no %s column", col)
		}
		counts = append(counts, idx)
	}

	for _, r := range merged.Rows {
		for _, idx := range counts {
			coerced := strictCount(r[idx])
			if !coerced.Equal(r[idx]) {
				report.Coerced++
				r[idx] = coerced
			}
		}
	}

	filtered := merged.Filter(func(r table.Row) bool { return r.NullCount() <= maxMissing })
	report.DroppedTooSparse = merged.Len() - filtered.Len()

	result := filtered.Dedup()
	report.Duplicates = filtered.Len() - result.Len()
	report.OutputRows = result.Len()

	return result, report, nil
}

// strictCount: нечисловой текст становится пустым значением.
func strictCount(c table.Cell) table.Cell {
	c = normalize.Count(c)
	if c.Kind == table.Text {
		return table.NullCell()
	}
	return c
}

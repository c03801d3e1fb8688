package table

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// Имена колонок, общие для обоих источников
const (
	ColPrice        = "price"
	ColLocation     = "location"
	ColBedroom      = "bedroom"
	ColBathroom     = "bathroom"
	ColGarage       = "garage"
	ColFloorSize    = "floorSize"
	ColType         = "type"
	ColPropertyType = "propertyType"
)

// RawColumns порядок колонок сырой таблицы источника
var RawColumns = []string{ColPrice, ColLocation, ColBedroom, ColBathroom, ColGarage, ColFloorSize, ColType}

// FinalColumns порядок колонок итогового датасета
var FinalColumns = []string{ColPrice, ColLocation, ColBedroom, ColBathroom, ColGarage, ColFloorSize, ColPropertyType}

var ErrHeaderMismatch = errors.New("table headers do not match")

type Kind uint8

const (
	Null Kind = iota
	Text
	Number
)

// Cell значение ячейки. Null отличается от пустой строки Text("").
type Cell struct {
	Kind Kind
	Str  string
	Num  float64
}

func NullCell() Cell { return Cell{Kind: Null} }
func TextCell(s string) Cell { return Cell{Kind: Text, Str: s} }
func NumberCell(f float64) Cell { return Cell{Kind: Number, Num: f} }
func (c Cell) IsNull() bool { return c.Kind == Null }
func (c Cell) IsNumber() bool { return c.Kind == Number }
func (c Cell) Equal(o Cell) bool { return c.Kind == o.Kind && c.Str == o.Str && c.Num == o.Num }

// String возвращает представление ячейки для CSV: Null -> "", числа без хвостовых нулей
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return c.Str
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// key учитывает тип ячейки: Number(3) и Text("3") различаются
func (c Cell) key() string {
	switch c.Kind {
	case Text:
		return "t:" + c.Str
	case Number:
		return "n:" + strconv.FormatFloat(c.Num, 'g', -1, 64)
	default:
		return "\x00"
	}
}

type Row []Cell

// NullCount считает пропущенные значения в строке
func (r Row) NullCount() int {
	n := 0
	for _, c := range r {
		if c.IsNull() {
			n++
		}
	}
	return n
}

// KeyParts возвращает типизированное представление ячеек для хеширования
func (r Row) KeyParts() []string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = c.key()
	}
	return parts
}

// Strings возвращает значения ячеек в виде CSV-полей
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String()
	}
	return out
}

type Table struct {
	Columns []string
	Rows    []Row
}

func New(columns ...string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// Append добавляет строку, проверяя её длину
func (t *Table) Append(r Row) error {
	if len(r) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(r), len(t.Columns))
	}
	t.Rows = append(t.Rows, r)
	return nil
}

func (t *Table) Len() int { return len(t.Rows) }

// Index возвращает позицию колонки или -1
func (t *Table) Index(column string) int {
	return slices.Index(t.Columns, column)
}

// Column возвращает значения колонки по всем строкам
func (t *Table) Column(column string) ([]Cell, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("unknown column: %s", column)
	}
	out := make([]Cell, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// DropColumn возвращает новую таблицу без указанной колонки
func (t *Table) DropColumn(column string) (*Table, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("unknown column: %s", column)
	}

	out := New(slices.Delete(slices.Clone(t.Columns), idx, idx+1)...)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, slices.Delete(slices.Clone(r), idx, idx+1))
	}
	return out, nil
}

// Filter возвращает новую таблицу со строками, для которых keep вернул true
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Concat склеивает таблицы с одинаковыми заголовками
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("nothing to concatenate")
	}

	out := New(tables[0].Columns...)
	for _, t := range tables {
		if !slices.Equal(t.Columns, out.Columns) {
			return nil, fmt.Errorf("%w: %v vs %v", ErrHeaderMismatch, out.Columns, t.Columns)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out, nil
}

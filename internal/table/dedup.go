package table

import "house-prices-etl/internal/checksum"

var hasher = checksum.NewGenerator()

// Hash возвращает отпечаток строки по всем ячейкам
func (r Row) Hash() string {
	return hasher.GenerateRowHash(r.KeyParts())
}

// Dedup оставляет первое вхождение каждой строки, сохраняя порядок
func (t *Table) Dedup() *Table {
	seen := make(map[string]struct{}, len(t.Rows))
	return t.Filter(func(r Row) bool {
		h := r.Hash()
		if _, dup := seen[h]; dup {
			return false
		}
		seen[h] = struct{}{}
		return true
	})
}

package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator не встречается в данных объявлений
const fieldSeparator = "\x1f"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// GenerateRowHash генерирует SHA256 хеш строки таблицы
// Формула: SHA256(part1 \x1f part2 \x1f ... partN)
func (g *Generator) GenerateRowHash(parts []string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(hash[:])
}

// VerifyRowHash проверяет соответствие хеша
func (g *Generator) VerifyRowHash(expectedHash string, parts []string) bool {
	return g.GenerateRowHash(parts) == expectedHash
}

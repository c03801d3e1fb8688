package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"house-prices-etl/internal/scraper"
	"house-prices-etl/internal/table"
)

// LoadSelectors загружает селекторы из YAML файла
func LoadSelectors(filePath string) (*scraper.Selectors, error) {
	if filePath == "" {
		return nil, fmt.Errorf("selectors file path is empty")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open selectors file: %w", err)
	}

	// Парсим YAML
	var selectors scraper.Selectors
	if err := yaml.Unmarshal(data, &selectors); err != nil {
		return nil, fmt.Errorf("failed to parse selectors YAML: %w", err)
	}

	// Валидируем селекторы
	if err := validateSelectors(&selectors); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	return &selectors, nil
}

// LoadSelectorsForSource загружает селекторы источника
func (c *Config) LoadSelectorsForSource(src *SourceConfig) (*scraper.Selectors, error) {
	filePath := src.SelectorsFile

	// Если путь относительный, делаем его относительно конфига
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(c.baseDir, filePath)
	}

	return LoadSelectors(filePath)
}

// validateSelectors проверяет порядок полей и компилирует каждый селектор
func validateSelectors(s *scraper.Selectors) error {
	if s.RootSelector == "" {
		return fmt.Errorf("root_selector is required")
	}
	if got := s.FieldNames(); !slices.Equal(got, table.RawColumns) {
		return fmt.Errorf("fields must be %v in this order, got %v", table.RawColumns, got)
	}

	// NewScraper компилирует все выражения
	if _, err := scraper.NewScraper(s); err != nil {
		return err
	}

	return nil
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxPagesLimit верхняя граница числа страниц на источник
const MaxPagesLimit = 10000

const (
	StrategyFixed    = "fixed"
	StrategyNextLink = "next_link"
)

type Config struct {
	HTTP          HttpConfig          `yaml:"http"`
	Backoff       BackoffConfig       `yaml:"backoff"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Robots        RobotsConfig        `yaml:"robots"`
	Rod           RodConfig           `yaml:"rod"`
	Pagination    PaginationConfig    `yaml:"pagination"`
	Sources       []SourceConfig      `yaml:"sources"`
	Cleaning      CleaningConfig      `yaml:"cleaning"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`

	// каталог файла конфига, относительно него ищутся selectors_file
	baseDir string
}

type HttpConfig struct {
	UserAgent        string `yaml:"user_agent"`
	AcceptLanguage   string `yaml:"accept_language"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
	TotalTimeoutMS   int    `yaml:"total_timeout_ms"`
	MaxRetries       int    `yaml:"max_retries"`
}

type BackoffConfig struct {
	MinMS     int `yaml:"min_ms"`
	MaxMS     int `yaml:"max_ms"`
	JitterPct int `yaml:"jitter_pct"`
}

type RateLimitConfig struct {
	PageDelayMS int `yaml:"page_delay_ms"`
}

type RobotsConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheTTLHours int  `yaml:"cache_ttl_hours"`
}

type RodConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ChromePath   string `yaml:"chrome_path"`
	PageTimeoutS int    `yaml:"page_timeout_s"`
}

type PaginationConfig struct {
	Strategy string `yaml:"strategy"`
}

type SourceConfig struct {
	Name            string          `yaml:"name"`
	FirstPageURL    string          `yaml:"first_page_url"`
	PageURLTemplate string          `yaml:"page_url_template"`
	MaxPages        int             `yaml:"max_pages"`
	SelectorsFile   string          `yaml:"selectors_file"`
	OutputCSV       string          `yaml:"output_csv"`
	Normalize       NormalizeConfig `yaml:"normalize"`
}

type NormalizeConfig struct {
	FloorSizeUnits      []string          `yaml:"floor_size_units"`
	Price               PriceConfig       `yaml:"price"`
	PropertyTypeAliases map[string]string `yaml:"property_type_aliases"`
}

type PriceConfig struct {
	Clean          bool   `yaml:"clean"`
	CurrencyPrefix string `yaml:"currency_prefix"`
}

type CleaningConfig struct {
	MaxMissing int `yaml:"max_missing"`
}

type StorageConfig struct {
	FinalCSV string         `yaml:"final_csv"`
	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn"`
	Table            string `yaml:"table"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
	BatchSize        int    `yaml:"batch_size"`
}

type ObservabilityConfig struct {
	LogPath    string `yaml:"log_path"`
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func (c *Config) applyDefaults() {
	if c.Pagination.Strategy == "" {
		c.Pagination.Strategy = StrategyFixed
	}
	if c.Robots.CacheTTLHours == 0 {
		c.Robots.CacheTTLHours = 12
	}
	if c.Storage.Database.Table == "" {
		c.Storage.Database.Table = "house_prices"
	}
	if c.Storage.Database.BatchSize == 0 {
		c.Storage.Database.BatchSize = 100
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	for i := range c.Sources {
		if len(c.Sources[i].Normalize.FloorSizeUnits) == 0 {
			c.Sources[i].Normalize.FloorSizeUnits = []string{"m²"}
		}
	}
}

// Validation
func (c *Config) Validate() error {
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("http.connect_timeout_ms must be > 0")
	}
	if c.HTTP.TotalTimeoutMS <= 0 {
		return fmt.Errorf("http.total_timeout_ms must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.MaxRetries > 0 {
		if c.Backoff.MinMS <= 0 {
			return fmt.Errorf("backoff.min_ms must be > 0")
		}
		if c.Backoff.MaxMS <= 0 {
			return fmt.Errorf("backoff.max_ms must be > 0")
		}
		if c.Backoff.MinMS > c.Backoff.MaxMS {
			return fmt.Errorf("backoff.min_ms must be <= backoff.max_ms")
		}
		if c.Backoff.JitterPct < 0 || c.Backoff.JitterPct > 100 {
			return fmt.Errorf("backoff.jitter_pct must be between 0 and 100")
		}
	}
	if c.RateLimit.PageDelayMS < 0 {
		return fmt.Errorf("rate_limit.page_delay_ms must be >= 0")
	}
	if c.Robots.Enabled && c.Robots.CacheTTLHours <= 0 {
		return fmt.Errorf("robots.cache_ttl_hours must be > 0")
	}
	if c.Rod.Enabled && c.Rod.PageTimeoutS <= 0 {
		return fmt.Errorf("rod.page_timeout_s must be > 0 when rod.enabled is true")
	}
	if c.Pagination.Strategy != StrategyFixed && c.Pagination.Strategy != StrategyNextLink {
		return fmt.Errorf("pagination.strategy must be '%s' or '%s'", StrategyFixed, StrategyNextLink)
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	if c.Cleaning.MaxMissing < 0 {
		return fmt.Errorf("cleaning.max_missing must be >= 0")
	}
	if c.Storage.FinalCSV == "" {
		return fmt.Errorf("storage.final_csv is required")
	}

	db := c.Storage.Database
	switch db.Driver {
	case "":
	case "mssql", "postgres", "sqlite":
		if db.DSN == "" {
			return fmt.Errorf("storage.database.dsn is required when driver is set")
		}
		if db.CommandTimeoutMS <= 0 {
			return fmt.Errorf("storage.database.command_timeout_ms must be > 0")
		}
		if db.BatchSize <= 0 {
			return fmt.Errorf("storage.database.batch_size must be > 0")
		}
	default:
		return fmt.Errorf("storage.database.driver must be empty, 'mssql', 'postgres' or 'sqlite'")
	}

	return nil
}

func (s *SourceConfig) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.Contains(s.PageURLTemplate, "{page}") {
		return fmt.Errorf("page_url_template must contain {page}")
	}
	if s.MaxPages < 1 || s.MaxPages > MaxPagesLimit {
		return fmt.Errorf("max_pages must be between 1 and %d", MaxPagesLimit)
	}
	if s.SelectorsFile == "" {
		return fmt.Errorf("selectors_file is required")
	}
	if s.OutputCSV == "" {
		return fmt.Errorf("output_csv is required")
	}
	return nil
}

// PageURL строит URL страницы листинга (нумерация с 1)
func (s *SourceConfig) PageURL(page int) string {
	if page == 1 && s.FirstPageURL != "" {
		return s.FirstPageURL
	}
	return strings.ReplaceAll(s.PageURLTemplate, "{page}", strconv.Itoa(page))
}

// Source ищет источник по имени
func (c *Config) Source(name string) (*SourceConfig, error) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], nil
		}
	}
	return nil, fmt.Errorf("unknown source: %s", name)
}

// Getters
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.HTTP.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) GetTotalTimeout() time.Duration {
	return time.Duration(c.HTTP.TotalTimeoutMS) * time.Millisecond
}

func (c *Config) GetBackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinMS) * time.Millisecond
}

func (c *Config) GetBackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMS) * time.Millisecond
}

func (c *Config) GetPageDelay() time.Duration {
	return time.Duration(c.RateLimit.PageDelayMS) * time.Millisecond
}

func (c *Config) GetRobotsCacheTTL() time.Duration {
	return time.Duration(c.Robots.CacheTTLHours) * time.Hour
}

func (c *Config) GetRodPageTimeout() time.Duration {
	return time.Duration(c.Rod.PageTimeoutS) * time.Second
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Storage.Database.CommandTimeoutMS) * time.Millisecond
}

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingConfig marks a required configuration input that is absent.
// Runs never start when it is returned.
var ErrMissingConfig = errors.New("missing config")

// Config holds scraper configuration. It is built once at process start and
// passed to every orchestrator call.
type Config struct {
	TargetPerCategory int             `yaml:"target_products_per_category"`
	MinPerCategory    int             `yaml:"min_products_per_category"`
	MaxPages          int             `yaml:"max_pages"`
	PageDelay         Duration        `yaml:"page_delay"`
	CategoryDelay     Duration        `yaml:"category_delay"`
	RequestTimeout    Duration        `yaml:"request_timeout"`
	UserAgent         string          `yaml:"user_agent"`
	ProbeQuery        string          `yaml:"probe_query"`
	CategoriesFile    string          `yaml:"categories_file"`
	Timezone          string          `yaml:"timezone"`
	MetricsAddr       string          `yaml:"metrics_addr"`
	Countries         []Country       `yaml:"countries"`
	Output            OutputConfig    `yaml:"output"`
	Warehouse         WarehouseConfig `yaml:"warehouse"`
	Logging           LoggingConfig   `yaml:"logging"`
}

// OutputConfig selects the local backup format.
type OutputConfig struct {
	Format string `yaml:"format"` // csv, json, or dual
}

// WarehouseConfig describes the Postgres warehouse connection.
type WarehouseConfig struct {
	DSN         string `yaml:"dsn"`
	Dataset     string `yaml:"dataset"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	MaxConns    int32  `yaml:"max_conns"`
}

// LoggingConfig controls log verbosity and the optional rotating file.
type LoggingConfig struct {
	Verbose    bool   `yaml:"verbose"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the production defaults for the three storefronts.
func DefaultConfig() *Config {
	return &Config{
		TargetPerCategory: 50,
		MinPerCategory:    30,
		MaxPages:          2,
		PageDelay:         DurationFrom(2 * time.Second),
		CategoryDelay:     DurationFrom(5 * time.Second),
		RequestTimeout:    DurationFrom(45 * time.Second),
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		ProbeQuery:        "test",
		CategoriesFile:    "categories.json",
		Timezone:          "UTC",
		Countries:         DefaultCountries(),
		Output:            OutputConfig{Format: "csv"},
		Warehouse: WarehouseConfig{
			Dataset:     "lazada_products",
			AutoMigrate: true,
			MaxConns:    4,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: config file %q not found", ErrMissingConfig, path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from SCRAPER_* and DATABASE_URL.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("DATABASE_URL"); ok {
		c.Warehouse.DSN = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok := EnvString("SCRAPER_CATEGORIES"); ok {
		c.CategoriesFile = value
	}
	if value, ok, err := EnvInt("SCRAPER_TARGET"); err != nil {
		return fmt.Errorf("invalid SCRAPER_TARGET: %w", err)
	} else if ok {
		c.TargetPerCategory = value
	}
	if value, ok, err := EnvInt("SCRAPER_MAX_PAGES"); err != nil {
		return fmt.Errorf("invalid SCRAPER_MAX_PAGES: %w", err)
	} else if ok {
		c.MaxPages = value
	}
	return nil
}

// Location resolves the timezone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Country returns the registry entry for key.
func (c *Config) Country(key string) (Country, bool) {
	for _, country := range c.Countries {
		if country.Key == key {
			return country, true
		}
	}
	return Country{}, false
}

// CountryKeys lists the registry keys in run order.
func (c *Config) CountryKeys() []string {
	keys := make([]string, 0, len(c.Countries))
	for _, country := range c.Countries {
		keys = append(keys, country.Key)
	}
	return keys
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.TargetPerCategory <= 0 {
		return fmt.Errorf("target products per category must be positive")
	}
	if c.MinPerCategory < 0 {
		return fmt.Errorf("min products per category cannot be negative")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.PageDelay.Duration < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.CategoryDelay.Duration < 0 {
		return fmt.Errorf("category delay cannot be negative")
	}
	if c.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if strings.TrimSpace(c.ProbeQuery) == "" {
		return fmt.Errorf("probe query cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Output.Format {
	case "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if !identPattern.MatchString(c.Warehouse.Dataset) {
		return fmt.Errorf("warehouse dataset %q is not a valid identifier", c.Warehouse.Dataset)
	}
	if len(c.Countries) == 0 {
		return fmt.Errorf("at least one country must be configured")
	}
	seen := make(map[string]struct{}, len(c.Countries))
	for _, country := range c.Countries {
		if err := country.Validate(); err != nil {
			return err
		}
		if _, dup := seen[country.Key]; dup {
			return fmt.Errorf("duplicate country key %q", country.Key)
		}
		seen[country.Key] = struct{}{}
	}
	return nil
}

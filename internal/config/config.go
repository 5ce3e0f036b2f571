// Package config holds pipeline settings with file, environment, and
// compiled-in default layers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	DatabasePath       string `yaml:"database_path"`
	QuickBooksFile     string `yaml:"quickbooks_file"`
	RootfiFile         string `yaml:"rootfi_file"`
	BatchSize          int    `yaml:"batch_size"`
	FailedRecordsDir   string `yaml:"failed_records_dir"`
	DateDimensionStart string `yaml:"date_dimension_start"`
	DateDimensionEnd   string `yaml:"date_dimension_end"`
}

func defaults() Config {
	return Config{
		DatabasePath:       "finetl.db",
		QuickBooksFile:     "data/data_set_1.json",
		RootfiFile:         "data/data_set_2.json",
		BatchSize:          1000,
		FailedRecordsDir:   "output/failed_records",
		DateDimensionStart: "2020-01-01",
		DateDimensionEnd:   "2026-12-31",
	}
}

// Default returns the compiled-in configuration with environment overrides
// applied.
func Default() Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFromFile reads a YAML config file layered over the defaults.
// Environment variables still win over the file.
func LoadFromFile(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FINETL_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("FINETL_QUICKBOOKS_FILE"); v != "" {
		c.QuickBooksFile = v
	}
	if v := os.Getenv("FINETL_ROOTFI_FILE"); v != "" {
		c.RootfiFile = v
	}
	if v := os.Getenv("FINETL_FAILED_RECORDS_DIR"); v != "" {
		c.FailedRecordsDir = v
	}
	if v := os.Getenv("FINETL_DATE_DIMENSION_START"); v != "" {
		c.DateDimensionStart = v
	}
	if v := os.Getenv("FINETL_DATE_DIMENSION_END"); v != "" {
		c.DateDimensionEnd = v
	}
	if v := os.Getenv("FINETL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	start, end, err := c.DateRange()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("date_dimension_end %s is before date_dimension_start %s",
			c.DateDimensionEnd, c.DateDimensionStart)
	}
	return nil
}

// DateRange parses the date dimension bounds.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = time.ParseInLocation("2006-01-02", c.DateDimensionStart, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_dimension_start: %w", err)
	}
	end, err = time.ParseInLocation("2006-01-02", c.DateDimensionEnd, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_dimension_end: %w", err)
	}
	return start, end, nil
}

// SourceFile maps a source system name to its configured input file.
func (c *Config) SourceFile(source string) (string, error) {
	switch source {
	case "quickbooks":
		return c.QuickBooksFile, nil
	case "rootfi":
		return c.RootfiFile, nil
	default:
		return "", fmt.Errorf("no input file configured for source %q", source)
	}
}

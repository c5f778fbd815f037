package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks every failure to build a usable configuration:
// unreadable or malformed config file, missing connection string, bad values.
var ErrConfiguration = errors.New("configuration error")

// config struct to map config.yaml
type Config struct {
	Source struct {
		Path          string `yaml:"path"`
		ExpectedTotal int64  `yaml:"expected_total"`
		DiscoverTotal bool   `yaml:"discover_total"`
		Validate      bool   `yaml:"validate"`
	} `yaml:"source"`

	Import struct {
		Mode           string `yaml:"mode"`
		Table          string `yaml:"table"`
		BatchSize      int    `yaml:"batch_size"`
		DatePolicy     string `yaml:"date_policy"`
		LongTextPolicy string `yaml:"long_text_policy"`
		MaxTextLength  int    `yaml:"max_text_length"`
		TextUnit       string `yaml:"text_unit"`
		ReportsDir     string `yaml:"reports_dir"`
	} `yaml:"import"`

	Database struct {
		URLEnv       string `yaml:"url_env"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Source.Path = "data/medicamentos.json"
	cfg.Source.DiscoverTotal = true
	cfg.Source.Validate = true
	cfg.Import.Mode = "stream"
	cfg.Import.Table = "medications"
	cfg.Import.BatchSize = 500
	cfg.Import.DatePolicy = "validate"
	cfg.Import.LongTextPolicy = "truncate"
	cfg.Import.MaxTextLength = 65000
	cfg.Import.TextUnit = "bytes"
	cfg.Import.ReportsDir = "reports"
	cfg.Database.URLEnv = "DATABASE_URL"
	cfg.Database.MaxOpenConns = 4
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// LoadConfig reads the yaml file on top of Defaults. An empty path means
// defaults only.
func LoadConfig(filepath string) (*Config, error) {
	config := Defaults()
	if filepath == "" {
		return config, config.Validate()
	}

	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file, %v", ErrConfiguration, err)
	}

	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrConfiguration, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks enumerated values and numeric bounds.
func (c *Config) Validate() error {
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("%w: import.batch_size must be positive, got %d", ErrConfiguration, c.Import.BatchSize)
	}
	if c.Import.MaxTextLength <= 0 {
		return fmt.Errorf("%w: import.max_text_length must be positive, got %d", ErrConfiguration, c.Import.MaxTextLength)
	}
	if c.Source.ExpectedTotal < 0 {
		return fmt.Errorf("%w: source.expected_total cannot be negative", ErrConfiguration)
	}
	if strings.TrimSpace(c.Import.Table) == "" {
		return fmt.Errorf("%w: import.table is empty", ErrConfiguration)
	}
	if strings.TrimSpace(c.Database.URLEnv) == "" {
		return fmt.Errorf("%w: database.url_env is empty", ErrConfiguration)
	}

	checks := []struct {
		field string
		value string
		valid []string
	}{
		{"import.mode", c.Import.Mode, []string{"stream", "memory"}},
		{"import.date_policy", c.Import.DatePolicy, []string{"validate", "passthrough"}},
		{"import.long_text_policy", c.Import.LongTextPolicy, []string{"truncate", "drop"}},
		{"import.text_unit", c.Import.TextUnit, []string{"bytes", "chars"}},
		{"logging.format", c.Logging.Format, []string{"text", "json"}},
	}
	for _, chk := range checks {
		if !oneOf(chk.value, chk.valid) {
			return fmt.Errorf("%w: invalid %s %q (want one of %s)", ErrConfiguration, chk.field, chk.value, strings.Join(chk.valid, ", "))
		}
	}
	return nil
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Package config loads runtime settings: defaults, an optional YAML file,
// a .env file and OPIS_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CatalogConfig names the two required catalog header columns.
type CatalogConfig struct {
	CanonicalColumn string `mapstructure:"canonical_column"`
	AlternateColumn string `mapstructure:"alternate_column"`
}

type Config struct {
	WorkDir     string        `mapstructure:"work_dir"`
	CatalogPath string        `mapstructure:"catalog_path"`
	Catalog     CatalogConfig `mapstructure:"catalog"`

	Workers     int    `mapstructure:"workers"`
	DryRun      bool   `mapstructure:"dry_run"`
	PrefixNames bool   `mapstructure:"prefix_names"`
	Stamp       bool   `mapstructure:"stamp"`
	StampDir    string `mapstructure:"stamp_dir"`

	Renderers     []string `mapstructure:"renderers"`
	InventoryName string   `mapstructure:"inventory_name"`

	LogFile    string `mapstructure:"log_file"`
	LogLevel   string `mapstructure:"log_level"`
	LedgerPath string `mapstructure:"ledger_path"`

	DataRoot string `mapstructure:"data_root"`
	Port     string `mapstructure:"port"`
	InboxDir string `mapstructure:"inbox_dir"`

	OCRLanguages string `mapstructure:"ocr_languages"`
	MaxFileSize  int64  `mapstructure:"max_file_size"`
}

var knownRenderers = map[string]bool{"markdown": true, "json": true, "yaml": true, "xlsx": true, "docx": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("work_dir", ".")
	v.SetDefault("catalog_path", "")
	v.SetDefault("catalog.canonical_column", "Russian")
	v.SetDefault("catalog.alternate_column", "English")
	v.SetDefault("workers", 1)
	v.SetDefault("dry_run", false)
	v.SetDefault("prefix_names", false)
	v.SetDefault("stamp", false)
	v.SetDefault("stamp_dir", "")
	v.SetDefault("renderers", []string{"markdown", "json"})
	v.SetDefault("inventory_name", "опись")
	v.SetDefault("log_file", "process.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("ledger_path", "")
	v.SetDefault("data_root", "./projects")
	v.SetDefault("port", "8081")
	v.SetDefault("inbox_dir", "")
	v.SetDefault("ocr_languages", "rus+eng")
	v.SetDefault("max_file_size", int64(100*1024*1024))
}

// Default returns the configuration with only defaults applied.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load builds a Config. configPath may be empty; a missing .env is fine.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("OPIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv does not split list values.
	if raw := os.Getenv("OPIS_RENDERERS"); raw != "" {
		cfg.Renderers = splitList(raw)
	}
	return &cfg, nil
}

// Validate checks enum-like fields and bounds.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.New("workers must be >= 1")
	}
	if len(c.Renderers) == 0 {
		return errors.New("at least one renderer is required")
	}
	for _, r := range c.Renderers {
		if !knownRenderers[r] {
			return fmt.Errorf("unknown renderer %q (use markdown, json, yaml, xlsx or docx)", r)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.Catalog.CanonicalColumn) == "" || strings.TrimSpace(c.Catalog.AlternateColumn) == "" {
		return errors.New("catalog column names must not be empty")
	}
	if strings.TrimSpace(c.InventoryName) == "" {
		return errors.New("inventory name must not be empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

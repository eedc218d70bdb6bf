// Package config loads churnguard settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Artifact struct {
		Path     string        `yaml:"path"`
		Watch    bool          `yaml:"watch"`
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"artifact"`
	Form struct {
		Widget string `yaml:"widget"`
	} `yaml:"form"`
	Decision struct {
		ShowExpectedCost bool    `yaml:"show_expected_cost"`
		DefaultCostFP    float64 `yaml:"default_cost_fp"`
		DefaultCostFN    float64 `yaml:"default_cost_fn"`
		Currency         string  `yaml:"currency"`
	} `yaml:"decision"`
	Branding struct {
		Title    string `yaml:"title"`
		Subtitle string `yaml:"subtitle"`
		Footer   string `yaml:"footer"`
		LogoPath string `yaml:"logo_path"`
	} `yaml:"branding"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	History struct {
		Enabled    bool          `yaml:"enabled"`
		SQLitePath string        `yaml:"sqlite_path"`
		Retention  time.Duration `yaml:"retention"`
		PurgeCron  string        `yaml:"purge_cron"`
	} `yaml:"history"`
	Log Log `yaml:"log"`
}

// Log configures the zap logger and optional lumberjack rotation.
type Log struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CHURN_ARTIFACT_PATH"); v != "" {
		c.Artifact.Path = v
	}
	if v := os.Getenv("CHURN_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHURN_HTTP_PORT: %w", err)
		}
		c.Http.Port = port
	}
	if v := os.Getenv("CHURN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHURN_HISTORY_PATH"); v != "" {
		c.History.Enabled = true
		c.History.SQLitePath = v
	}
	if v := os.Getenv("CHURN_WIDGET"); v != "" {
		c.Form.Widget = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 8080
	}
	if c.Http.Timeout == 0 {
		c.Http.Timeout = 30 * time.Second
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Artifact.Path == "" {
		c.Artifact.Path = "final_churn_bundle.json"
	}
	if c.Artifact.Debounce == 0 {
		c.Artifact.Debounce = 250 * time.Millisecond
	}
	c.Form.Widget = strings.ToLower(strings.TrimSpace(c.Form.Widget))
	if c.Form.Widget == "" {
		c.Form.Widget = "text"
	}
	if c.Decision.Currency == "" {
		c.Decision.Currency = "USD"
	}
	if c.Branding.Title == "" {
		c.Branding.Title = "Customer Churn Prediction"
	}
	if c.Branding.Subtitle == "" {
		c.Branding.Subtitle = "Customer Churn Risk Assessment System"
	}
	// A negative size turns the cache off.
	if c.Cache.Size == 0 {
		c.Cache.Size = 1024
	}
	if c.History.SQLitePath == "" {
		c.History.SQLitePath = "data/predictions.db"
	}
	if c.History.Retention == 0 {
		c.History.Retention = 30 * 24 * time.Hour
	}
	if c.History.PurgeCron == "" {
		c.History.PurgeCron = "0 0 3 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Decision.DefaultCostFP < 0 || c.Decision.DefaultCostFN < 0 {
		return errors.New("decision default costs must be non-negative")
	}
	switch c.Form.Widget {
	case "text", "numeric":
	default:
		return fmt.Errorf("form.widget must be text or numeric, got %q", c.Form.Widget)
	}
	if c.History.Retention < 0 {
		return errors.New("history.retention must be non-negative")
	}
	return nil
}

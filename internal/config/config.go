// Package config loads the meal-dialog YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mcp-meal-dialog/internal/companion"
	"mcp-meal-dialog/internal/dialog"
)

// NLU providers.
const (
	ProviderNone    = "none"
	ProviderGemini  = "gemini"
	ProviderGateway = "gateway"
)

type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Engine     EngineConfig        `yaml:"engine"`
	Fineli     FineliConfig        `yaml:"fineli"`
	NLU        NLUConfig           `yaml:"nlu"`
	Logging    LoggingConfig       `yaml:"logging"`
	Companions map[string][]string `yaml:"companions"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`
}

type EngineConfig struct {
	Language          string  `yaml:"language"`
	MaxNoMatchRetries int     `yaml:"max_no_match_retries"`
	ResultLimit       int     `yaml:"result_limit"`
	MinScore          float64 `yaml:"min_score"`
	SearchTimeout     string  `yaml:"search_timeout"`
	ClassifyTimeout   string  `yaml:"classify_timeout"`
	RankTimeout       string  `yaml:"rank_timeout"`
	RespondTimeout    string  `yaml:"respond_timeout"`
}

type FineliConfig struct {
	BaseURL       string  `yaml:"base_url"`
	Timeout       string  `yaml:"timeout"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	CacheSize     int     `yaml:"cache_size"`
	CacheTTL      string  `yaml:"cache_ttl"`
	// CatalogPath switches search to a static YAML catalog instead of the API.
	CatalogPath string `yaml:"catalog_path"`
}

type NLUConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"api_key"`
	ProxyURL        string  `yaml:"proxy_url"`
	Threshold       float64 `yaml:"threshold"`
	EnableRanker    bool    `yaml:"enable_ranker"`
	EnableResponder bool    `yaml:"enable_responder"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:   "0.0.0.0",
			Port:   8011,
			DBPath: "/data/meal-dialog.db",
		},
		Engine: EngineConfig{
			Language:          "fi",
			MaxNoMatchRetries: 2,
			ResultLimit:       10,
			MinScore:          10,
			SearchTimeout:     "8s",
			ClassifyTimeout:   "3s",
			RankTimeout:       "3s",
			RespondTimeout:    "3s",
		},
		Fineli: FineliConfig{
			BaseURL:       "https://fineli.fi/fineli/api/v1",
			Timeout:       "10s",
			RatePerSecond: 5,
			Burst:         5,
			CacheSize:     512,
			CacheTTL:      "1h",
		},
		NLU: NLUConfig{
			Provider:  ProviderNone,
			Threshold: 0.7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("MEAL_DIALOG_DB_PATH"); path != "" {
		c.Server.DBPath = path
	}
	if url := os.Getenv("FINELI_BASE_URL"); url != "" {
		c.Fineli.BaseURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.NLU.APIKey = key
		if c.NLU.Provider == "" || c.NLU.Provider == ProviderNone {
			c.NLU.Provider = ProviderGemini
		}
	}
	if url := os.Getenv("MCP_PROXY_URL"); url != "" {
		c.NLU.ProxyURL = url
	}
	if key := os.Getenv("MCP_PROXY_API_KEY"); key != "" && c.NLU.Provider == ProviderGateway {
		c.NLU.APIKey = key
	}
	if model := os.Getenv("OPENROUTER_MODEL"); model != "" && c.NLU.Provider == ProviderGateway {
		c.NLU.Model = model
	}
	if port := os.Getenv("MEAL_DIALOG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks provider names and duration strings.
func (c *Config) Validate() error {
	switch c.NLU.Provider {
	case "", ProviderNone, ProviderGemini, ProviderGateway:
	default:
		return fmt.Errorf("unknown nlu provider %q", c.NLU.Provider)
	}
	durations := map[string]string{
		"engine.search_timeout":   c.Engine.SearchTimeout,
		"engine.classify_timeout": c.Engine.ClassifyTimeout,
		"engine.rank_timeout":     c.Engine.RankTimeout,
		"engine.respond_timeout":  c.Engine.RespondTimeout,
		"fineli.timeout":          c.Fineli.Timeout,
		"fineli.cache_ttl":        c.Fineli.CacheTTL,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
	}
	return nil
}

// duration parses s, falling back to def when s is empty or invalid.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DialogConfig converts the engine section.
func (c *Config) DialogConfig() dialog.Config {
	d := dialog.DefaultConfig()
	return dialog.Config{
		Language:          c.Engine.Language,
		MaxNoMatchRetries: c.Engine.MaxNoMatchRetries,
		ResultLimit:       c.Engine.ResultLimit,
		MinScore:          c.Engine.MinScore,
		SearchTimeout:     duration(c.Engine.SearchTimeout, d.SearchTimeout),
		RankTimeout:       duration(c.Engine.RankTimeout, d.RankTimeout),
		RespondTimeout:    duration(c.Engine.RespondTimeout, d.RespondTimeout),
	}
}

func (c *Config) ClassifyTimeout() time.Duration {
	return duration(c.Engine.ClassifyTimeout, 3*time.Second)
}

func (c *Config) FineliTimeout() time.Duration {
	return duration(c.Fineli.Timeout, 10*time.Second)
}

func (c *Config) CacheTTL() time.Duration {
	return duration(c.Fineli.CacheTTL, time.Hour)
}

// CompanionTable is the configured table, or the built-in one.
func (c *Config) CompanionTable() map[string][]string {
	if c.Companions != nil {
		return c.Companions
	}
	return companion.DefaultTable
}

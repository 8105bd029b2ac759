package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	DBPath    string          `yaml:"db_path"`
	Log       LogConfig       `yaml:"log"`
	Cleaning  CleaningConfig  `yaml:"cleaning"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Features  FeaturesConfig  `yaml:"features"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Models    []ModelConfig   `yaml:"models"`
	Apify     ApifyConfig     `yaml:"apify"`
	Retry     RetryConfig     `yaml:"retry"`
	Server    ServerConfig    `yaml:"server"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`  // development | production
	Level string `yaml:"level"` // debug | info | warn | error
}

// CleaningConfig controls the text cleaning policy.
type CleaningConfig struct {
	MinTokens      int      `yaml:"min_tokens"`
	MaxTokens      int      `yaml:"max_tokens"`
	ExtraStopwords []string `yaml:"extra_stopwords"`
	KeepHashtags   bool     `yaml:"keep_hashtags"`
}

// EnrichConfig controls batching and the sentiment/embedding backend.
type EnrichConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	MinPending     int           `yaml:"min_pending"`
	Workers        int           `yaml:"workers"`
	Backend        string        `yaml:"backend"` // http | openai
	BackendURL     string        `yaml:"backend_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Dimensions     int           `yaml:"dimensions"`
	Timeout        time.Duration `yaml:"timeout"`
	OpenAIAPIKey   string        `yaml:"-"`
}

type FeaturesConfig struct {
	CoverageDays int `yaml:"coverage_days"`
}

// ArtifactsConfig selects where tabular artifacts live.
type ArtifactsConfig struct {
	Backend string `yaml:"backend"` // local | gcs
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// ModelConfig binds a prediction target to a model bundle on disk.
type ModelConfig struct {
	Target        string `yaml:"target"` // approval | disapproval
	Path          string `yaml:"path"`
	HorizonColumn string `yaml:"horizon_column"`
}

type ApifyConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Actor       string   `yaml:"actor"`
	SearchTerms []string `yaml:"search_terms"`
	MaxItems    int      `yaml:"max_items"`
	Lang        string   `yaml:"lang"`
	Token       string   `yaml:"-"`
}

// RetryConfig bounds exponential backoff for remote calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the defaults of the daily scheduled job.
func Default() *Config {
	return &Config{
		DBPath: "encuestas.db",
		Log:    LogConfig{Mode: "development", Level: "info"},
		Cleaning: CleaningConfig{
			MinTokens: 3,
			MaxTokens: 50,
		},
		Enrich: EnrichConfig{
			ChunkSize:      5000,
			MinPending:     500,
			Workers:        4,
			Backend:        "http",
			BackendURL:     "http://localhost:8000",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Dimensions:     768,
			Timeout:        30 * time.Second,
		},
		Features: FeaturesConfig{CoverageDays: 7},
		Artifacts: ArtifactsConfig{
			Backend: "local",
			Dir:     "data",
		},
		Models: []ModelConfig{
			{Target: "approval", Path: "models/approval.yaml", HorizonColumn: "approval_rolling_7d"},
			{Target: "disapproval", Path: "models/disapproval.yaml", HorizonColumn: "disapproval_rolling_7d"},
		},
		Apify: ApifyConfig{
			BaseURL:     "https://api.apify.com",
			Actor:       "kaitoeasyapi~twitter-x-data-tweet-scraper-pay-per-result-cheapest",
			SearchTerms: []string{"Boric", "Gabriel Boric", "Presidente Boric"},
			MaxItems:    100,
			Lang:        "es",
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BackoffBase: 2 * time.Second,
			MaxBackoff:  60 * time.Second,
		},
		Server: ServerConfig{Addr: ":8090"},
	}
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	// Relative paths in the file resolve against the file's directory.
	dir := filepath.Dir(path)
	cfg.DBPath = resolve(dir, cfg.DBPath)
	cfg.Artifacts.Dir = resolve(dir, cfg.Artifacts.Dir)
	for i := range cfg.Models {
		cfg.Models[i].Path = resolve(dir, cfg.Models[i].Path)
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Cleaning.MinTokens < 0 || c.Cleaning.MaxTokens < c.Cleaning.MinTokens {
		return fmt.Errorf("cleaning: invalid token bounds [%d, %d]", c.Cleaning.MinTokens, c.Cleaning.MaxTokens)
	}
	if c.Enrich.ChunkSize <= 0 {
		return fmt.Errorf("enrich.chunk_size must be positive, got %d", c.Enrich.ChunkSize)
	}
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be positive, got %d", c.Enrich.Workers)
	}
	if c.Enrich.Dimensions <= 0 {
		return fmt.Errorf("enrich.dimensions must be positive, got %d", c.Enrich.Dimensions)
	}
	switch c.Enrich.Backend {
	case "http", "openai":
	default:
		return fmt.Errorf("enrich.backend must be http or openai, got %q", c.Enrich.Backend)
	}
	if c.Features.CoverageDays <= 0 {
		return fmt.Errorf("features.coverage_days must be positive, got %d", c.Features.CoverageDays)
	}
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir is required for the local backend")
		}
	case "gcs":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be local or gcs, got %q", c.Artifacts.Backend)
	}
	seen := map[string]bool{}
	for _, m := range c.Models {
		if m.Target != "approval" && m.Target != "disapproval" {
			return fmt.Errorf("models: unknown target %q", m.Target)
		}
		if seen[m.Target] {
			return fmt.Errorf("models: duplicate target %q", m.Target)
		}
		seen[m.Target] = true
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

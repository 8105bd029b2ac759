package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ProjectConfigFile is looked up from the working directory upwards.
const ProjectConfigFile = "encuestas.yaml"

// Load resolves configuration with layered precedence:
//  1. Defaults
//  2. YAML file: explicit path > ENCUESTAS_CONFIG > encuestas.yaml walking up from cwd
//  3. .env file in the working directory (never overrides real env vars)
//  4. Environment variables
func Load(explicitPath string) (*Config, error) {
	cfg := Default()

	path, err := discoverConfig(explicitPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		cfg = loaded
	}

	// Missing .env is the normal case in production.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func discoverConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config not found at --config path: %s", explicitPath)
		}
		return explicitPath, nil
	}
	if envPath := os.Getenv("ENCUESTAS_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", nil
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func applyEnv(cfg *Config) {
	cfg.DBPath = getEnv("ENCUESTAS_DB", cfg.DBPath)
	cfg.Log.Mode = getEnv("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Enrich.Backend = getEnv("ENRICH_BACKEND", cfg.Enrich.Backend)
	cfg.Enrich.BackendURL = getEnv("ENRICH_BACKEND_URL", cfg.Enrich.BackendURL)
	cfg.Enrich.ChunkSize = getEnvAsInt("ENRICH_CHUNK_SIZE", cfg.Enrich.ChunkSize)
	cfg.Enrich.MinPending = getEnvAsInt("ENRICH_MIN_PENDING", cfg.Enrich.MinPending)
	cfg.Enrich.Workers = getEnvAsInt("ENRICH_WORKERS", cfg.Enrich.Workers)
	cfg.Enrich.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.Enrich.OpenAIAPIKey)
	cfg.Apify.Token = getEnv("APIFY_TOKEN", cfg.Apify.Token)
	cfg.Artifacts.Backend = getEnv("ARTIFACTS_BACKEND", cfg.Artifacts.Backend)
	cfg.Artifacts.Dir = getEnv("ARTIFACTS_DIR", cfg.Artifacts.Dir)
	cfg.Artifacts.Bucket = getEnv("GCS_BUCKET", cfg.Artifacts.Bucket)
	cfg.Artifacts.Prefix = getEnv("GCS_PREFIX", cfg.Artifacts.Prefix)
	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

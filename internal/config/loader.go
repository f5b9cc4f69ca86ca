package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "scoreforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SCOREFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "SCOREFORGE_CORS_ORIGIN")
	setString(&cfg.Logging.Level, "SCOREFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SCOREFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SCOREFORGE_LOG_ASYNC")
	setString(&cfg.AI.Provider, "SCOREFORGE_AI_PROVIDER")
	setString(&cfg.AI.ScoringModel, "SCOREFORGE_SCORING_MODEL")
	setString(&cfg.AI.ReviewModel, "SCOREFORGE_REVIEW_MODEL")
	setString(&cfg.AI.BaseURL, "SCOREFORGE_AI_BASE_URL")
	setString(&cfg.AI.APIKeyEnv, "SCOREFORGE_AI_KEY_ENV")
	setDuration(&cfg.AI.Timeout, "SCOREFORGE_AI_TIMEOUT")
	setInt(&cfg.AI.MaxRetries, "SCOREFORGE_AI_MAX_RETRIES")
	setInt(&cfg.Chunker.MaxTokensPerChunk, "SCOREFORGE_MAX_TOKENS_PER_CHUNK")
	setInt(&cfg.Chunker.MaxTokensPerGroup, "SCOREFORGE_MAX_TOKENS_PER_GROUP")
	setInt(&cfg.Chunker.MaxContextTokens, "SCOREFORGE_MAX_CONTEXT_TOKENS")
	setInt(&cfg.Chunker.ContextItemLimit, "SCOREFORGE_CONTEXT_ITEM_LIMIT")
	setFloat64(&cfg.Chunker.BoilerplateThreshold, "SCOREFORGE_BOILERPLATE_THRESHOLD")
	setBool(&cfg.Chunker.ForceSimpleStrategy, "SCOREFORGE_FORCE_SIMPLE")
	setInt(&cfg.Scoring.BatchBudget, "SCOREFORGE_BATCH_BUDGET")
	setInt(&cfg.Scoring.DossierBudget, "SCOREFORGE_DOSSIER_BUDGET")
	setString(&cfg.Scoring.DossierStrategy, "SCOREFORGE_DOSSIER_STRATEGY")
	setString(&cfg.Paths.RepoRoot, "SCOREFORGE_REPO_ROOT")
	setString(&cfg.Paths.ReportsRoot, "SCOREFORGE_REPORTS_ROOT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "SCOREFORGE_CACHE_L1_SIZE_MB")
	setInt(&cfg.Git.MaxConcurrent, "SCOREFORGE_GIT_MAX_CONCURRENT")
	setInt(&cfg.Breaker.MaxFailures, "SCOREFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SCOREFORGE_BREAKER_TIMEOUT")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Otel.ServiceName, "OTEL_SERVICE_NAME")
}

// validate checks that required fields are set and budgets are coherent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("ai.provider %q is not supported", cfg.AI.Provider)
	}
	if cfg.AI.ScoringModel == "" || cfg.AI.ReviewModel == "" {
		return errors.New("ai.scoring_model and ai.review_model are required")
	}
	if cfg.Chunker.MaxTokensPerChunk < 1 {
		return errors.New("chunker.max_tokens_per_chunk must be >= 1")
	}
	if cfg.Chunker.MaxTokensPerGroup <= cfg.Chunker.MaxContextTokens {
		return errors.New("chunker.max_tokens_per_group must exceed chunker.max_context_tokens")
	}
	if cfg.Scoring.BatchBudget < cfg.Chunker.MaxTokensPerGroup {
		return errors.New("scoring.batch_budget must be >= chunker.max_tokens_per_group")
	}
	switch cfg.Scoring.DossierStrategy {
	case "global_top_impact", "top_impact_per_file":
	default:
		return fmt.Errorf("scoring.dossier_strategy %q is not supported", cfg.Scoring.DossierStrategy)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

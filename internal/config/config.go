// Package config provides hierarchical configuration loading for ScoreForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the scoring service.
type Config struct {
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	AI      AI      `yaml:"ai"`
	Chunker Chunker `yaml:"chunker"`
	Scoring Scoring `yaml:"scoring"`
	Paths   Paths   `yaml:"paths"`
	Cache   Cache   `yaml:"cache"`
	Git     Git     `yaml:"git"`
	Breaker Breaker `yaml:"breaker"`
	Otel    Otel    `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Logging holds structured logging configuration. Async buffers records
// behind a background writer so pipeline work never blocks on log I/O.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// AI holds provider and model configuration. API keys are read from the
// environment variable named by APIKeyEnv, never from the file.
type AI struct {
	Provider     string        `yaml:"provider"` // "openai" | "anthropic"
	ScoringModel string        `yaml:"scoring_model"`
	ReviewModel  string        `yaml:"review_model"`
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// Chunker holds the chunking budgets.
type Chunker struct {
	MaxTokensPerChunk    int     `yaml:"max_tokens_per_chunk"`
	MaxTokensPerGroup    int     `yaml:"max_tokens_per_group"`
	MaxContextTokens     int     `yaml:"max_context_tokens"`
	ContextItemLimit     int     `yaml:"context_item_limit"`
	BoilerplateThreshold float64 `yaml:"boilerplate_threshold"`
	ForceSimpleStrategy  bool    `yaml:"force_simple_strategy"`
}

// Scoring holds the batching and final-review budgets.
type Scoring struct {
	BatchBudget     int    `yaml:"batch_budget"`
	DossierBudget   int    `yaml:"dossier_budget"`
	DossierStrategy string `yaml:"dossier_strategy"` // "global_top_impact" | "top_impact_per_file"
}

// Paths holds the filesystem roots.
type Paths struct {
	RepoRoot    string `yaml:"repo_root"`
	ReportsRoot string `yaml:"reports_root"`
}

// Cache holds in-process cache sizing.
type Cache struct {
	L1MaxSizeMB int64 `yaml:"l1_max_size_mb"`
}

// Git holds git CLI pool configuration.
type Git struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Otel holds OpenTelemetry exporter configuration. An empty endpoint
// disables export.
type Otel struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Logging: Logging{
			Level:   "info",
			Service: "scoreforge",
		},
		AI: AI{
			Provider:     "openai",
			ScoringModel: "gpt-4o-mini",
			ReviewModel:  "gpt-4o",
			APIKeyEnv:    "OPENAI_API_KEY",
			Timeout:      45 * time.Second,
			MaxRetries:   3,
		},
		Chunker: Chunker{
			MaxTokensPerChunk:    800,
			MaxTokensPerGroup:    2500,
			MaxContextTokens:     200,
			ContextItemLimit:     15,
			BoilerplateThreshold: 0.6,
		},
		Scoring: Scoring{
			BatchBudget:     5100,
			DossierBudget:   16000,
			DossierStrategy: "global_top_impact",
		},
		Paths: Paths{
			RepoRoot:    "repos",
			ReportsRoot: "reports",
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
		},
		Git: Git{
			MaxConcurrent: 4,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Otel: Otel{
			ServiceName: "scoreforge",
		},
	}
}

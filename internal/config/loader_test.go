package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Chunker.MaxTokensPerChunk != 800 {
		t.Errorf("expected default chunk budget, got %d", cfg.Chunker.MaxTokensPerChunk)
	}
	if cfg.AI.Timeout != 45*time.Second {
		t.Errorf("expected default AI timeout, got %v", cfg.AI.Timeout)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoreforge.yaml")
	yaml := `
server:
  port: "9090"
chunker:
  max_tokens_per_group: 3000
scoring:
  batch_budget: 6000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected yaml port, got %q", cfg.Server.Port)
	}
	if cfg.Chunker.MaxTokensPerGroup != 3000 {
		t.Errorf("expected yaml group budget, got %d", cfg.Chunker.MaxTokensPerGroup)
	}
	if cfg.Chunker.MaxTokensPerChunk != 800 {
		t.Errorf("expected default to survive, got %d", cfg.Chunker.MaxTokensPerChunk)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	t.Setenv("SCOREFORGE_PORT", "7070")
	t.Setenv("SCOREFORGE_AI_PROVIDER", "anthropic")
	t.Setenv("SCOREFORGE_BATCH_BUDGET", "5500")
	t.Setenv("SCOREFORGE_LOG_ASYNC", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected env port, got %q", cfg.Server.Port)
	}
	if cfg.AI.Provider != "anthropic" {
		t.Errorf("expected env provider, got %q", cfg.AI.Provider)
	}
	if cfg.Scoring.BatchBudget != 5500 {
		t.Errorf("expected env batch budget, got %d", cfg.Scoring.BatchBudget)
	}
	if !cfg.Logging.Async {
		t.Error("expected env async logging flag")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Defaults()
	cfg.AI.Provider = "acme"
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestValidateRejectsIncoherentBudgets(t *testing.T) {
	cfg := Defaults()
	cfg.Scoring.BatchBudget = 100
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for batch budget below group budget")
	}

	cfg = Defaults()
	cfg.Chunker.MaxTokensPerGroup = 100
	cfg.Chunker.MaxContextTokens = 200
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for group budget below context budget")
	}
}

func TestValidateRejectsUnknownDossierStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.Scoring.DossierStrategy = "random"
	if err := validate(&cfg); err == nil {
		t.Fatal("expected error for unknown dossier strategy")
	}
}

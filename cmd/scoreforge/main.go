package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/ScoreForge/internal/adapter/anthropic"
	sfhttp "github.com/Strob0t/ScoreForge/internal/adapter/http"
	"github.com/Strob0t/ScoreForge/internal/adapter/openaicompat"
	sfotel "github.com/Strob0t/ScoreForge/internal/adapter/otel"
	"github.com/Strob0t/ScoreForge/internal/adapter/ristretto"
	"github.com/Strob0t/ScoreForge/internal/chunker"
	"github.com/Strob0t/ScoreForge/internal/config"
	"github.com/Strob0t/ScoreForge/internal/git"
	"github.com/Strob0t/ScoreForge/internal/logger"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
	"github.com/Strob0t/ScoreForge/internal/repo"
	"github.com/Strob0t/ScoreForge/internal/resilience"
	"github.com/Strob0t/ScoreForge/internal/service"
	"github.com/Strob0t/ScoreForge/internal/strategy"
	"github.com/Strob0t/ScoreForge/internal/tokenizer"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLog()
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"provider", cfg.AI.Provider,
		"scoring_model", cfg.AI.ScoringModel,
		"review_model", cfg.AI.ReviewModel,
	)

	ctx := context.Background()

	// --- Infrastructure ---
	if err := tokenizer.Init(); err != nil {
		return fmt.Errorf("tokenizer: %w", err)
	}
	defer tokenizer.Close()

	shutdownOtel, err := sfotel.InitTracer(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	contentCache, err := ristretto.NewContentCache(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("content cache: %w", err)
	}
	defer contentCache.Close()

	// --- Pipeline components ---
	pool := git.NewPool(cfg.Git.MaxConcurrent)
	acquirer := repo.NewAcquirer(cfg.Paths.RepoRoot, pool)

	registry := strategy.NewRegistry(strategy.Config{
		BoilerplateThreshold: cfg.Chunker.BoilerplateThreshold,
		ForceSimple:          cfg.Chunker.ForceSimpleStrategy,
	})
	ck := chunker.New(chunker.Config{
		MaxTokensPerChunk: cfg.Chunker.MaxTokensPerChunk,
		MaxTokensPerGroup: cfg.Chunker.MaxTokensPerGroup,
		MaxContextTokens:  cfg.Chunker.MaxContextTokens,
		ContextItemLimit:  cfg.Chunker.ContextItemLimit,
	}, registry, tokenizer.Count)

	scoringClient, reviewClient, err := buildClients(cfg)
	if err != nil {
		return err
	}

	engine := service.NewEngine(scoringClient, reviewClient,
		cfg.AI.MaxRetries, cfg.Scoring.BatchBudget, cfg.Scoring.DossierBudget, cfg.Scoring.DossierStrategy)
	selection := service.NewSelectionService(scoringClient, cfg.AI.MaxRetries)
	store := service.NewRunStore()
	reports := service.NewReports(cfg.Paths.ReportsRoot)

	orch := service.NewOrchestrator(store, reports, acquirer, ck, selection, engine, contentCache, cfg.AI.ScoringModel)

	// --- HTTP ---
	handlers := &sfhttp.Handlers{Orch: orch}

	r := chi.NewRouter()
	// RequestID must run before Logger so the ID reaches the logging context.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(sfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sfhttp.Logger)
	r.Use(sfotel.HTTPMiddleware(cfg.Otel.ServiceName))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", healthHandler(cfg))
	sfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildClients constructs the scoring and review AI clients for the
// configured provider, both guarded by one shared circuit breaker.
func buildClients(cfg *config.Config) (scoring, review aiclient.Client, err error) {
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	switch cfg.AI.Provider {
	case "anthropic":
		s := anthropic.New(cfg.AI.BaseURL, cfg.AI.ScoringModel, cfg.AI.APIKeyEnv, cfg.AI.Timeout)
		r := anthropic.New(cfg.AI.BaseURL, cfg.AI.ReviewModel, cfg.AI.APIKeyEnv, cfg.AI.Timeout)
		s.SetBreaker(breaker)
		r.SetBreaker(breaker)
		return s, r, nil
	case "openai":
		s := openaicompat.New(cfg.AI.BaseURL, cfg.AI.ScoringModel, cfg.AI.APIKeyEnv, cfg.AI.Timeout)
		r := openaicompat.New(cfg.AI.BaseURL, cfg.AI.ReviewModel, cfg.AI.APIKeyEnv, cfg.AI.Timeout)
		s.SetBreaker(breaker)
		r.SetBreaker(breaker)
		return s, r, nil
	default:
		return nil, nil, fmt.Errorf("config: unsupported ai.provider %q", cfg.AI.Provider)
	}
}

// healthHandler reports service liveness and the configured surface.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status       string `json:"status"`
		Provider     string `json:"provider"`
		ScoringModel string `json:"scoring_model"`
		ReviewModel  string `json:"review_model"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:       "ok",
			Provider:     cfg.AI.Provider,
			ScoringModel: cfg.AI.ScoringModel,
			ReviewModel:  cfg.AI.ReviewModel,
		})
	}
}

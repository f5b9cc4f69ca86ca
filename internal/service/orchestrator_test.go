package service

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/ScoreForge/internal/chunker"
	"github.com/Strob0t/ScoreForge/internal/domain/run"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/git"
	"github.com/Strob0t/ScoreForge/internal/repo"
	"github.com/Strob0t/ScoreForge/internal/strategy"
)

func wordCount(s string) int {
	return len(strings.Fields(s))
}

type mapCache map[string][]byte

func (m mapCache) Get(key string) ([]byte, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapCache) Set(key string, value []byte) { m[key] = value }

type orchFixture struct {
	orch     *Orchestrator
	store    *RunStore
	repoRoot string
	reports  *Reports
}

func newOrchFixture(t *testing.T, scoring, review *fakeClient) *orchFixture {
	t.Helper()
	repoRoot := t.TempDir()
	reportsRoot := t.TempDir()

	acquirer := repo.NewAcquirer(repoRoot, git.NewPool(1))
	registry := strategy.NewRegistry(strategy.Config{BoilerplateThreshold: 0.6})
	ck := chunker.New(chunker.Config{
		MaxTokensPerChunk: 800,
		MaxTokensPerGroup: 2500,
		MaxContextTokens:  200,
		ContextItemLimit:  15,
	}, registry, wordCount)

	engine := newTestEngine(scoring, review)
	store := NewRunStore()
	reports := NewReports(reportsRoot)

	orch := NewOrchestrator(store, reports, acquirer, ck, NewSelectionService(scoring, 1), engine, mapCache{}, "fake-model")
	return &orchFixture{orch: orch, store: store, repoRoot: repoRoot, reports: reports}
}

func (f *orchFixture) seedRepo(t *testing.T, name string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(f.repoRoot, name, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func waitForTerminal(t *testing.T, o *Orchestrator, runID string) run.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := o.Status(runID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.Status.Terminal() {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal state")
	return run.State{}
}

func TestRunPipelineEndToEnd(t *testing.T) {
	scoring := newFakeClient(
		`{"project_essence": "a widget", "primary_domain": "web", "primary_stack": "typescript"}`,
		`{"files": ["main.txt"]}`,
		`{"reviews": [{"file_path": "main.txt", "complexity": 6, "code_quality": 8, "maintainability": 7, "best_practices": 6}]}`,
	)
	review := newFakeClient(`{"final_score_multiplier": 1.1, "tech_stack": "typescript", "summary": "solid", "reasoning": "calibrated"}`)

	f := newOrchFixture(t, scoring, review)
	f.seedRepo(t, "widget", map[string]string{
		"main.txt": strings.TrimSpace(strings.Repeat("token ", 120)),
	})

	runID, files, err := f.orch.Start(context.Background(), "run-e2e", "https://example.com/acme/widget", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if runID != "run-e2e" || len(files) != 1 {
		t.Fatalf("unexpected start result: %s %v", runID, files)
	}

	st := waitForTerminal(t, f.orch, runID)
	if st.Status != run.StatusComplete {
		t.Fatalf("expected complete, got %s (error: %s)", st.Status, st.Error)
	}
	card := st.FinalScorecard
	if card == nil || len(card.ScoredFiles) != 1 {
		t.Fatalf("expected one scored file, got %+v", card)
	}

	sf := card.ScoredFiles[0]
	if sf.FilePath != "main.txt" || sf.HadError {
		t.Fatalf("unexpected scored file %+v", sf)
	}
	wantImpact := sf.AverageQuality * sf.AverageComplexity
	if math.Abs(sf.ImpactScore-wantImpact) > 1e-9 {
		t.Fatalf("impact %f, want %f", sf.ImpactScore, wantImpact)
	}

	if card.FinalProjectScore == nil {
		t.Fatal("expected final project score")
	}
	want := card.PreliminaryProjectScore * 1.1
	if math.Abs(*card.FinalProjectScore-want) > 1e-9 {
		t.Fatalf("final score %f, want %f", *card.FinalProjectScore, want)
	}

	if _, err := os.Stat(st.ScorecardPath); err != nil {
		t.Fatalf("calibrated scorecard missing on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.reports.RunDir("widget", runID), chunkingReportFile)); err != nil {
		t.Fatalf("chunking report missing: %v", err)
	}

	// Log IDs must be strictly increasing across the whole run.
	for i, entry := range st.LogHistory {
		if entry.ID != i+1 {
			t.Fatalf("log entry %d has id %d", i, entry.ID)
		}
	}
}

func TestRunEmptyRepositoryFailsInSelection(t *testing.T) {
	f := newOrchFixture(t, newFakeClient(), newFakeClient())
	if err := os.MkdirAll(filepath.Join(f.repoRoot, "hollow"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, _, err := f.orch.Start(context.Background(), "run-empty", "https://example.com/acme/hollow", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	st := waitForTerminal(t, f.orch, "run-empty")
	if st.Status != run.StatusError {
		t.Fatalf("expected error state, got %s", st.Status)
	}
	if st.Error != "no files were selected" {
		t.Fatalf("unexpected error message %q", st.Error)
	}
	if st.FinalScorecard != nil {
		t.Fatal("errored run must not carry a report")
	}
}

func TestStartReusesCachedCalibratedReport(t *testing.T) {
	// Empty fake queues: any AI call would error the run.
	f := newOrchFixture(t, newFakeClient(), newFakeClient())
	f.seedRepo(t, "widget", map[string]string{"main.txt": "token token token"})

	cached := &score.ProjectScorecard{RunID: "run-cached", RepoName: "widget", PreliminaryProjectScore: 5}
	if _, err := f.reports.WriteCalibrated("widget", "run-cached", cached); err != nil {
		t.Fatalf("seed cached report: %v", err)
	}

	_, _, err := f.orch.Start(context.Background(), "run-cached", "https://example.com/acme/widget", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	st, err := f.orch.Status("run-cached")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != run.StatusComplete {
		t.Fatalf("expected immediate complete from cache, got %s", st.Status)
	}
	if st.FinalScorecard == nil || st.FinalScorecard.RunID != "run-cached" {
		t.Fatalf("expected cached scorecard loaded, got %+v", st.FinalScorecard)
	}
}

func TestScoreFileOnDemandAndIdempotent(t *testing.T) {
	scoring := newFakeClient(
		`{"project_essence": "a widget", "primary_domain": "web", "primary_stack": "typescript"}`,
		`{"files": ["main.txt"]}`,
		`{"reviews": [{"file_path": "main.txt", "complexity": 6, "code_quality": 8, "maintainability": 7, "best_practices": 6}]}`,
		// One extra payload for the on-demand file.
		`{"reviews": [{"file_path": "extra.txt", "complexity": 3, "code_quality": 9, "maintainability": 9, "best_practices": 9}]}`,
	)
	review := newFakeClient(`{"final_score_multiplier": 1.0}`)

	f := newOrchFixture(t, scoring, review)
	f.seedRepo(t, "widget", map[string]string{
		"main.txt":  strings.TrimSpace(strings.Repeat("token ", 100)),
		"extra.txt": "alpha beta gamma delta",
	})

	_, _, err := f.orch.Start(context.Background(), "run-od", "https://example.com/acme/widget", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, f.orch, "run-od")
	if st.Status != run.StatusComplete {
		t.Fatalf("expected complete, got %s (%s)", st.Status, st.Error)
	}

	sf, err := f.orch.ScoreFile(context.Background(), "run-od", "extra.txt")
	if err != nil {
		t.Fatalf("score file: %v", err)
	}
	if sf.FilePath != "extra.txt" || sf.HadError {
		t.Fatalf("unexpected scored file %+v", sf)
	}

	st, _ = f.orch.Status("run-od")
	count := 0
	for _, s := range st.FinalScorecard.ScoredFiles {
		if s.FilePath == "extra.txt" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("extra.txt appears %d times", count)
	}
	for i := 1; i < len(st.FinalScorecard.ScoredFiles); i++ {
		if st.FinalScorecard.ScoredFiles[i].ImpactScore > st.FinalScorecard.ScoredFiles[i-1].ImpactScore {
			t.Fatal("scored files not re-sorted by impact after insertion")
		}
	}

	// A duplicate call returns the existing entry without touching the AI.
	remaining := len(scoring.queue)
	again, err := f.orch.ScoreFile(context.Background(), "run-od", "extra.txt")
	if err != nil {
		t.Fatalf("duplicate score file: %v", err)
	}
	if len(scoring.queue) != remaining {
		t.Fatal("duplicate call consumed AI responses")
	}
	if again.FilePath != "extra.txt" {
		t.Fatalf("unexpected duplicate result %+v", again)
	}
}

func TestFileContentDeniesEscapes(t *testing.T) {
	f := newOrchFixture(t, newFakeClient(), newFakeClient())
	f.seedRepo(t, "widget", map[string]string{"main.txt": "hello world"})
	_ = f.store.Create("run-fc", "https://example.com/acme/widget", "widget")

	data, err := f.orch.FileContent(context.Background(), "run-fc", "main.txt")
	if err != nil {
		t.Fatalf("file content: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content %q", data)
	}

	if _, err := f.orch.FileContent(context.Background(), "run-fc", "../../etc/passwd"); err == nil {
		t.Fatal("expected escape denial")
	}
	if _, err := f.orch.FileContent(context.Background(), "run-fc", "absent.txt"); err == nil {
		t.Fatal("expected not found for missing file")
	}
}

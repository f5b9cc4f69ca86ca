package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/ScoreForge/internal/chunker"
	"github.com/Strob0t/ScoreForge/internal/domain/run"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/git"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
	"github.com/Strob0t/ScoreForge/internal/repo"
	"github.com/Strob0t/ScoreForge/internal/service"
	"github.com/Strob0t/ScoreForge/internal/strategy"
)

type fakeClient struct {
	queue []string
}

func (f *fakeClient) Chat(_ context.Context, _ aiclient.Request) (*aiclient.Response, error) {
	if len(f.queue) == 0 {
		return nil, errors.New("fake client: queue exhausted")
	}
	content := f.queue[0]
	f.queue = f.queue[1:]
	return &aiclient.Response{Content: content, Usage: score.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

type noCache struct{}

func (noCache) Get(string) ([]byte, bool) { return nil, false }
func (noCache) Set(string, []byte)        {}

func newTestRouter(t *testing.T, payloads ...string) (chi.Router, string) {
	t.Helper()
	repoRoot := t.TempDir()

	client := &fakeClient{queue: payloads}
	acquirer := repo.NewAcquirer(repoRoot, git.NewPool(1))
	registry := strategy.NewRegistry(strategy.Config{BoilerplateThreshold: 0.6})
	ck := chunker.New(chunker.Config{
		MaxTokensPerChunk: 800,
		MaxTokensPerGroup: 2500,
		MaxContextTokens:  200,
		ContextItemLimit:  15,
	}, registry, func(s string) int { return len(strings.Fields(s)) })

	engine := service.NewEngine(client, client, 1, 5100, 16000, service.DossierGlobalTopImpact)
	orch := service.NewOrchestrator(
		service.NewRunStore(),
		service.NewReports(t.TempDir()),
		acquirer,
		ck,
		service.NewSelectionService(client, 1),
		engine,
		noCache{},
		"fake-model",
	)

	r := chi.NewRouter()
	MountRoutes(r, &Handlers{Orch: orch})
	return r, repoRoot
}

func seedRepo(t *testing.T, repoRoot, name string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(repoRoot, name, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStartAnalysisRequiresRepoURL(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/analysis", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStartAnalysisAcceptedWithFileList(t *testing.T) {
	r, repoRoot := newTestRouter(t,
		`{"project_essence": "x", "primary_domain": "web", "primary_stack": "ts"}`,
		`{"files": ["main.txt"]}`,
		`{"reviews": [{"file_path": "main.txt", "complexity": 5, "code_quality": 5, "maintainability": 5, "best_practices": 5}]}`,
		`{"final_score_multiplier": 1.0}`,
	)
	seedRepo(t, repoRoot, "widget", map[string]string{"main.txt": "alpha beta gamma"})

	body := `{"repoUrl": "https://example.com/acme/widget", "runId": "run-1"}`
	req := httptest.NewRequest(http.MethodPost, "/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID    string   `json:"runId"`
		AllFiles []string `json:"allFiles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "run-1" || len(resp.AllFiles) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStatusUnknownRunIs404(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/analysis/ghost/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatusProjectionCompleteCarriesReport(t *testing.T) {
	r, repoRoot := newTestRouter(t,
		`{"project_essence": "x", "primary_domain": "web", "primary_stack": "ts"}`,
		`{"files": ["main.txt"]}`,
		`{"reviews": [{"file_path": "main.txt", "complexity": 5, "code_quality": 5, "maintainability": 5, "best_practices": 5}]}`,
		`{"final_score_multiplier": 1.0}`,
	)
	seedRepo(t, repoRoot, "widget", map[string]string{"main.txt": "alpha beta gamma"})

	start := httptest.NewRequest(http.MethodPost, "/analysis",
		strings.NewReader(`{"repoUrl": "https://example.com/acme/widget", "runId": "run-s"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, start)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/analysis/run-s/status", nil)
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}

		var resp struct {
			Status run.Status      `json:"status"`
			Report json.RawMessage `json:"report"`
			Error  *string         `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status == run.StatusComplete {
			if string(resp.Report) == "null" {
				t.Fatal("complete status must carry a report")
			}
			if resp.Error != nil {
				t.Fatal("complete status must not carry an error")
			}
			break
		}
		if resp.Status == run.StatusError {
			t.Fatalf("run errored: %v", resp.Error)
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not complete in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFileContentQueryValidation(t *testing.T) {
	r, repoRoot := newTestRouter(t)
	seedRepo(t, repoRoot, "widget", map[string]string{"main.txt": "hello"})

	// Unknown run: 404 regardless of query.
	req := httptest.NewRequest(http.MethodGet, "/analysis/ghost/file-content?filePath=main.txt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// Missing query: 400.
	req = httptest.NewRequest(http.MethodGet, "/analysis/ghost/file-content", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScoreFileUnknownRunIs404(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/analysis/ghost/score-file",
		strings.NewReader(`{"filePath": "main.txt"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

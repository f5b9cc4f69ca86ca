package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/ScoreForge/internal/domain/run"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/repo"
	"github.com/Strob0t/ScoreForge/internal/service"
)

// Handlers bundles the orchestrator behind the HTTP surface.
type Handlers struct {
	Orch *service.Orchestrator
}

type startRequest struct {
	RepoURL string `json:"repoUrl"`
	RunID   string `json:"runId,omitempty"`
	Readme  string `json:"readme,omitempty"`
}

type startResponse struct {
	RunID    string   `json:"runId"`
	AllFiles []string `json:"allFiles"`
}

// StartAnalysis accepts a repository URL and launches (or reuses) a run.
func (h *Handlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startRequest](w, r)
	if !ok {
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repoUrl is required")
		return
	}

	// The run detaches from the request context once started (acquisition
	// itself rides the request); the orchestrator carries the request ID
	// forward for log correlation.
	runID, files, err := h.Orch.Start(r.Context(), req.RunID, req.RepoURL, req.Readme)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID, AllFiles: relPaths(files)})
}

type statusResponse struct {
	RunID      string                  `json:"runId"`
	Status     run.Status              `json:"status"`
	LogHistory []run.LogEntry          `json:"logHistory"`
	Report     *score.ProjectScorecard `json:"report"`
	Error      *string                 `json:"error"`
}

// GetStatus returns the polling projection of a run.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orch.Status(urlParam(r, "runId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := statusResponse{
		RunID:      st.RunID,
		Status:     st.Status,
		LogHistory: st.LogHistory,
	}
	if st.Status == run.StatusComplete {
		resp.Report = st.FinalScorecard
	}
	if st.Status == run.StatusError {
		resp.Error = &st.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

type scoreFileRequest struct {
	FilePath string `json:"filePath"`
}

// ScoreFile scores one additional file on demand.
func (h *Handlers) ScoreFile(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[scoreFileRequest](w, r)
	if !ok {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "filePath is required")
		return
	}

	sf, err := h.Orch.ScoreFile(context.WithoutCancel(r.Context()), urlParam(r, "runId"), req.FilePath)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sf)
}

// FileContent serves raw repository file bytes.
func (h *Handlers) FileContent(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("filePath")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "filePath query parameter is required")
		return
	}

	data, err := h.Orch.FileContent(r.Context(), urlParam(r, "runId"), filePath)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func relPaths(files []repo.Entry) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Rel
	}
	return paths
}

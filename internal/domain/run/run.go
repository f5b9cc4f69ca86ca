// Package run defines the Run domain entity for repository analysis jobs.
package run

import (
	"time"

	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
)

// Status represents the current pipeline stage of a run.
type Status string

const (
	StatusPreparing          Status = "preparing"
	StatusSelectingFiles     Status = "selecting_files"
	StatusChunkingAndScoring Status = "chunking_and_scoring"
	StatusFinalReview        Status = "final_review"
	StatusComplete           Status = "complete"
	StatusError              Status = "error"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPreparing, StatusSelectingFiles, StatusChunkingAndScoring,
		StatusFinalReview, StatusComplete, StatusError:
		return true
	}
	return false
}

// LogEntry is one append-only progress record. IDs are strictly increasing
// within a run; timestamps are monotonically non-decreasing.
type LogEntry struct {
	ID        int       `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// State holds everything the orchestrator tracks for one run. It is mutated
// only through the run store's log-appending update primitive.
type State struct {
	RunID          string                  `json:"run_id"`
	RepoURL        string                  `json:"repo_url"`
	RepoName       string                  `json:"repo_name"`
	Status         Status                  `json:"status"`
	LogHistory     []LogEntry              `json:"log_history"`
	ProjectContext *project.Context        `json:"project_context,omitempty"`
	FinalScorecard *score.ProjectScorecard `json:"final_scorecard,omitempty"`
	ScorecardPath  string                  `json:"scorecard_path,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

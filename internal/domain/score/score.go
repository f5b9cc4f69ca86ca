// Package score defines the scoring domain model: per-group AI scores,
// per-file aggregates, and the project scorecard.
package score

import "github.com/Strob0t/ScoreForge/internal/domain/chunk"

// Usage accumulates token counters returned by AI calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// AIScore is one scoring verdict for a chunk group. Numeric axes are in [0,10].
type AIScore struct {
	Complexity      float64 `json:"complexity"`
	CodeQuality     float64 `json:"code_quality"`
	Maintainability float64 `json:"maintainability"`
	BestPractices   float64 `json:"best_practices"`
	Strengths       string  `json:"strengths,omitempty"`
	Weaknesses      string  `json:"weaknesses,omitempty"`
	GroupSummary    string  `json:"group_summary,omitempty"`
}

// QualityAverage is the arithmetic mean of the three quality axes.
func (s AIScore) QualityAverage() float64 {
	return (s.CodeQuality + s.Maintainability + s.BestPractices) / 3
}

// ScoredChunkGroup pairs a chunk group with its AI score.
type ScoredChunkGroup struct {
	GroupID     int     `json:"group_id"`
	Score       AIScore `json:"score"`
	TotalTokens int     `json:"total_tokens"`
	Usage       Usage   `json:"usage"`
}

// ScoredFile is the immutable per-file scoring result.
type ScoredFile struct {
	FilePath            string                `json:"file_path"`
	TotalOriginalTokens int                   `json:"total_original_tokens"`
	FinalTokenCount     int                   `json:"final_token_count"`
	ImpactScore         float64               `json:"impact_score"`
	AverageComplexity   float64               `json:"average_complexity"`
	AverageQuality      float64               `json:"average_quality"`
	Usage               Usage                 `json:"usage"`
	Retries             int                   `json:"retries"`
	HadError            bool                  `json:"had_error"`
	ScoredChunkGroups   []ScoredChunkGroup    `json:"scored_chunk_groups"`
	ChunkingDetails     *chunk.TokenBreakdown `json:"chunking_details,omitempty"`
}

// Profile holds the token-weighted project-level means of the four axes.
type Profile struct {
	Complexity      float64 `json:"complexity"`
	Quality         float64 `json:"quality"`
	Maintainability float64 `json:"maintainability"`
	BestPractices   float64 `json:"best_practices"`
}

// WeightedScore collapses a profile into the preliminary project score using
// the 40/25/15/20 weighting over complexity/quality/maintainability/best practices.
func (p Profile) WeightedScore() float64 {
	return 0.40*p.Complexity + 0.25*p.Quality + 0.15*p.Maintainability + 0.20*p.BestPractices
}

// FinalReview is the calibration verdict from the final-review call.
type FinalReview struct {
	Multiplier    float64 `json:"final_score_multiplier"`
	TechStack     string  `json:"tech_stack,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
	DossierTokens int     `json:"dossier_tokens,omitempty"`
	Failed        bool    `json:"failed,omitempty"`
}

// ProjectScorecard is the end product of a run.
type ProjectScorecard struct {
	RunID                   string       `json:"run_id"`
	RepoName                string       `json:"repo_name"`
	Model                   string       `json:"model"`
	PreliminaryProjectScore float64      `json:"preliminary_project_score"`
	FinalProjectScore       *float64     `json:"final_project_score,omitempty"`
	MainDomain              string       `json:"main_domain"`
	TechStack               string       `json:"tech_stack"`
	ProjectEssence          string       `json:"project_essence"`
	Profile                 Profile      `json:"profile"`
	Usage                   Usage        `json:"usage"`
	TotalRetries            int          `json:"total_retries"`
	TotalFailedFiles        int          `json:"total_failed_files"`
	FinalReview             *FinalReview `json:"final_review,omitempty"`
	ScoredFiles             []ScoredFile `json:"scored_files"`
	Warnings                []string     `json:"warnings,omitempty"`
}

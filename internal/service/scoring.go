package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
)

// Engine orchestrates per-file and batched scoring plus final-review
// calibration.
type Engine struct {
	scoring    aiclient.Client
	review     aiclient.Client
	maxRetries int

	batchBudget     int
	dossierBudget   int
	dossierStrategy string
}

// NewEngine creates a scoring Engine. scoring and review may target
// different models.
func NewEngine(scoring, review aiclient.Client, maxRetries, batchBudget, dossierBudget int, dossierStrategy string) *Engine {
	return &Engine{
		scoring:         scoring,
		review:          review,
		maxRetries:      maxRetries,
		batchBudget:     batchBudget,
		dossierBudget:   dossierBudget,
		dossierStrategy: dossierStrategy,
	}
}

// ScoreFileGroups scores every group of a file in ascending start-line order,
// threading each group's summary into the next call as intra-file context.
// Group failures degrade to zeroed scores; retries stay 0 on this path, which
// has no batch-level recovery.
func (e *Engine) ScoreFileGroups(ctx context.Context, fcg *chunk.FileChunkGroup, pc *project.Context) score.ScoredFile {
	sf := score.ScoredFile{
		FilePath:            fcg.FilePath,
		TotalOriginalTokens: fcg.TotalFileTokens,
		FinalTokenCount:     fcg.FinalTokenCount,
		ChunkingDetails:     &fcg.TokenBreakdown,
	}

	intra := initialIntraContext
	for _, g := range fcg.GroupedChunks {
		msgs := groupScoreMessages(pc, intra, fcg.FilePath, g.CombinedText)
		result, usage, ok := aiclient.SafeJSONChat[score.AIScore](ctx, e.scoring, msgs, e.maxRetries)
		sf.Usage = sf.Usage.Add(usage)

		scg := score.ScoredChunkGroup{GroupID: g.ID, TotalTokens: g.TotalTokens, Usage: usage}
		if ok {
			scg.Score = *result
			intra = result.GroupSummary
			if intra == "" {
				intra = initialIntraContext
			}
		} else {
			scg.Score = score.AIScore{GroupSummary: failedGroupSummary}
			intra = failedGroupSummary
			slog.WarnContext(ctx, "chunk group scoring failed", "file", fcg.FilePath, "group", g.ID)
		}
		sf.ScoredChunkGroups = append(sf.ScoredChunkGroups, scg)
	}

	finalizeFileAverages(&sf)
	return sf
}

// finalizeFileAverages computes the token-weighted per-file averages over
// successful groups (complexity > 0) and derives the impact score.
func finalizeFileAverages(sf *score.ScoredFile) {
	var weight float64
	var c, q, m, b float64
	for _, g := range sf.ScoredChunkGroups {
		if g.Score.Complexity <= 0 {
			continue
		}
		w := float64(g.TotalTokens)
		weight += w
		c += w * g.Score.Complexity
		q += w * g.Score.CodeQuality
		m += w * g.Score.Maintainability
		b += w * g.Score.BestPractices
	}
	if weight == 0 {
		sf.HadError = true
		return
	}
	sf.AverageComplexity = c / weight
	sf.AverageQuality = (q + m + b) / (3 * weight)
	sf.ImpactScore = sf.AverageQuality * sf.AverageComplexity
}

// fileAxes returns the group-token-weighted per-file averages of the four
// axes, used for project aggregation.
func fileAxes(sf *score.ScoredFile) (c, q, m, b float64, ok bool) {
	var weight float64
	for _, g := range sf.ScoredChunkGroups {
		if g.Score.Complexity <= 0 {
			continue
		}
		w := float64(g.TotalTokens)
		weight += w
		c += w * g.Score.Complexity
		q += w * g.Score.CodeQuality
		m += w * g.Score.Maintainability
		b += w * g.Score.BestPractices
	}
	if weight == 0 {
		return 0, 0, 0, 0, false
	}
	return c / weight, q / weight, m / weight, b / weight, true
}

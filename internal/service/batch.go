package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
)

// Batchable reports whether a file rides the multi-file batch path: a single
// sendable group below the batch budget.
func Batchable(fcg *chunk.FileChunkGroup, budget int) bool {
	switch fcg.SendStrategy {
	case chunk.SendFullFile, chunk.SendSingleGroup:
		return fcg.FinalTokenCount < budget
	}
	return false
}

// PackBatches bin-packs batchable files: sort by final token count
// descending, then repeatedly scan the remaining list admitting every file
// that still fits the running sum, emitting the filled batch, and starting
// over with what is left.
func PackBatches(files []*chunk.FileChunkGroup, budget int) [][]*chunk.FileChunkGroup {
	remaining := make([]*chunk.FileChunkGroup, len(files))
	copy(remaining, files)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].FinalTokenCount > remaining[j].FinalTokenCount
	})

	var batches [][]*chunk.FileChunkGroup
	for len(remaining) > 0 {
		var batch []*chunk.FileChunkGroup
		var rest []*chunk.FileChunkGroup
		running := 0
		for _, f := range remaining {
			if running+f.FinalTokenCount <= budget {
				batch = append(batch, f)
				running += f.FinalTokenCount
			} else {
				rest = append(rest, f)
			}
		}
		if len(batch) == 0 {
			// A single file exceeding the budget cannot batch at all; the
			// caller's Batchable filter prevents this, but never loop on it.
			batch = remaining[:1]
			rest = remaining[1:]
		}
		batches = append(batches, batch)
		remaining = rest
	}
	return batches
}

type batchReview struct {
	FilePath string `json:"file_path"`
	score.AIScore
}

type batchPayload struct {
	Reviews []batchReview `json:"reviews"`
}

// ScoreBatches scores batchable files in packed batches, retrying files the
// model skipped as one fresh round of batches. Files still unmatched after
// the retry materialize as empty scored files with zeroed scores.
func (e *Engine) ScoreBatches(ctx context.Context, files []*chunk.FileChunkGroup, pc *project.Context) []score.ScoredFile {
	var scored []score.ScoredFile

	failed := e.scoreBatchRound(ctx, PackBatches(files, e.batchBudget), pc, 0, &scored)
	if len(failed) > 0 {
		slog.InfoContext(ctx, "retrying unmatched batch files", "count", len(failed))
		terminal := e.scoreBatchRound(ctx, PackBatches(failed, e.batchBudget), pc, 1, &scored)
		for _, f := range terminal {
			scored = append(scored, emptyScoredFile(f, 1))
		}
	}
	return scored
}

// scoreBatchRound scores each batch once, appending matched files to scored
// (with the given retries count) and returning the files no review matched.
func (e *Engine) scoreBatchRound(ctx context.Context, batches [][]*chunk.FileChunkGroup, pc *project.Context, retries int, scored *[]score.ScoredFile) []*chunk.FileChunkGroup {
	var failed []*chunk.FileChunkGroup
	for _, batch := range batches {
		results, ok := e.scoreBatch(ctx, batch, pc)
		if !ok {
			failed = append(failed, batch...)
			continue
		}
		for _, f := range batch {
			sf, matched := results[f.FilePath]
			if !matched {
				failed = append(failed, f)
				continue
			}
			sf.Retries = retries
			*scored = append(*scored, sf)
		}
	}
	return failed
}

// scoreBatch issues one batched call and reconciles the returned reviews
// against the batch by file-path suffix match.
func (e *Engine) scoreBatch(ctx context.Context, batch []*chunk.FileChunkGroup, pc *project.Context) (map[string]score.ScoredFile, bool) {
	paths := make([]string, len(batch))
	sections := make([]string, len(batch))
	total := 0
	for i, f := range batch {
		paths[i] = f.FilePath
		sections[i] = "FILE: " + f.FilePath + "\n\n" + combinedTextOf(f)
		total += f.FinalTokenCount
	}
	combined := strings.Join(sections, batchBoundary)

	payload, usage, ok := aiclient.SafeJSONChat[batchPayload](ctx, e.scoring, batchScoreMessages(pc, paths, combined), e.maxRetries)
	if !ok {
		return nil, false
	}

	results := make(map[string]score.ScoredFile)
	for _, review := range payload.Reviews {
		f := matchBySuffix(batch, review.FilePath)
		if f == nil {
			slog.WarnContext(ctx, "batch review matched no file", "file_path", review.FilePath)
			continue
		}

		share := 0.0
		if total > 0 {
			share = float64(f.FinalTokenCount) / float64(total)
		}
		fileUsage := score.Usage{
			PromptTokens:     int(float64(usage.PromptTokens) * share),
			CompletionTokens: usage.CompletionTokens / len(batch),
		}
		fileUsage.TotalTokens = fileUsage.PromptTokens + fileUsage.CompletionTokens

		sf := score.ScoredFile{
			FilePath:            f.FilePath,
			TotalOriginalTokens: f.TotalFileTokens,
			FinalTokenCount:     f.FinalTokenCount,
			Usage:               fileUsage,
			ChunkingDetails:     &f.TokenBreakdown,
			ScoredChunkGroups: []score.ScoredChunkGroup{{
				GroupID:     1,
				Score:       review.AIScore,
				TotalTokens: f.FinalTokenCount,
				Usage:       fileUsage,
			}},
		}
		finalizeFileAverages(&sf)
		results[f.FilePath] = sf
	}
	return results, true
}

// matchBySuffix finds the batch file whose path ends with the returned path;
// the model may echo a shortened name.
func matchBySuffix(batch []*chunk.FileChunkGroup, returned string) *chunk.FileChunkGroup {
	returned = strings.TrimPrefix(strings.TrimSpace(returned), "./")
	if returned == "" {
		return nil
	}
	for _, f := range batch {
		if f.FilePath == returned || strings.HasSuffix(f.FilePath, "/"+returned) {
			return f
		}
	}
	return nil
}

// emptyScoredFile materializes a terminal scoring failure.
func emptyScoredFile(fcg *chunk.FileChunkGroup, retries int) score.ScoredFile {
	return score.ScoredFile{
		FilePath:            fcg.FilePath,
		TotalOriginalTokens: fcg.TotalFileTokens,
		FinalTokenCount:     fcg.FinalTokenCount,
		Retries:             retries,
		HadError:            true,
		ChunkingDetails:     &fcg.TokenBreakdown,
	}
}

// combinedTextOf returns the single sendable group's text for a batchable file.
func combinedTextOf(fcg *chunk.FileChunkGroup) string {
	if len(fcg.GroupedChunks) == 0 {
		return ""
	}
	return fcg.GroupedChunks[0].CombinedText
}

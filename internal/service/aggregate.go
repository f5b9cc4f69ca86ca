package service

import (
	"sort"

	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
)

// BuildScorecard folds scored files into the preliminary project scorecard.
// The profile is the file-token-weighted mean (by total original tokens) over
// the per-file group-token-weighted averages of the four axes.
func BuildScorecard(runID, repoName, model string, pc *project.Context, files []score.ScoredFile, warnings []string) *score.ProjectScorecard {
	card := &score.ProjectScorecard{
		RunID:          runID,
		RepoName:       repoName,
		Model:          model,
		MainDomain:     pc.PrimaryDomain,
		TechStack:      pc.PrimaryStack,
		ProjectEssence: pc.ProjectEssence,
		ScoredFiles:    files,
		Warnings:       warnings,
	}

	var weight float64
	var c, q, m, b float64
	for i := range files {
		f := &files[i]
		card.Usage = card.Usage.Add(f.Usage)
		card.TotalRetries += f.Retries
		if f.HadError {
			card.TotalFailedFiles++
			continue
		}
		fc, fq, fm, fb, ok := fileAxes(f)
		if !ok {
			continue
		}
		w := float64(f.TotalOriginalTokens)
		weight += w
		c += w * fc
		q += w * fq
		m += w * fm
		b += w * fb
	}
	if weight > 0 {
		card.Profile = score.Profile{
			Complexity:      c / weight,
			Quality:         q / weight,
			Maintainability: m / weight,
			BestPractices:   b / weight,
		}
	}
	card.PreliminaryProjectScore = card.Profile.WeightedScore()

	SortByImpact(card.ScoredFiles)
	return card
}

// SortByImpact orders scored files by impact descending, ties broken by path
// for determinism.
func SortByImpact(files []score.ScoredFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ImpactScore != files[j].ImpactScore {
			return files[i].ImpactScore > files[j].ImpactScore
		}
		return files[i].FilePath < files[j].FilePath
	})
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain"
	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
)

const (
	// DossierGlobalTopImpact admits whole files by impact rank.
	DossierGlobalTopImpact = "global_top_impact"
	// DossierTopImpactPerFile admits each file's single strongest group.
	DossierTopImpactPerFile = "top_impact_per_file"
)

// multiplier bounds for the final-review calibration.
const (
	minMultiplier = 0.8
	maxMultiplier = 1.25
)

// BuildDossier assembles the evidence bundle for final review under the
// engine's dossier budget. Returns the rendered dossier and its token total.
func (e *Engine) BuildDossier(card *score.ProjectScorecard, chunked map[string]*chunk.FileChunkGroup) (string, int, error) {
	switch e.dossierStrategy {
	case DossierTopImpactPerFile:
		return buildTopImpactPerFile(card, chunked, e.dossierBudget)
	default:
		return buildGlobalTopImpact(card, chunked, e.dossierBudget)
	}
}

// buildGlobalTopImpact admits whole files in impact order, greedily taking
// every file whose groups still fit the budget.
func buildGlobalTopImpact(card *score.ProjectScorecard, chunked map[string]*chunk.FileChunkGroup, budget int) (string, int, error) {
	var b strings.Builder
	used := 0
	admitted := 0

	for i := range card.ScoredFiles {
		sf := &card.ScoredFiles[i]
		if sf.HadError {
			continue
		}
		fcg, ok := chunked[sf.FilePath]
		if !ok {
			continue
		}
		cost := 0
		for _, g := range fcg.GroupedChunks {
			cost += g.TotalTokens
		}
		if cost == 0 || used+cost > budget {
			continue
		}

		writeFileSection(&b, sf, fcg.GroupedChunks)
		used += cost
		admitted++
	}

	if admitted == 0 {
		return "", 0, domain.ErrEmptyDossier
	}
	return b.String(), used, nil
}

// buildTopImpactPerFile picks each file's highest-impact group, sorts the
// picks by impact, and admits greedily under the budget.
func buildTopImpactPerFile(card *score.ProjectScorecard, chunked map[string]*chunk.FileChunkGroup, budget int) (string, int, error) {
	type pick struct {
		sf     *score.ScoredFile
		group  chunk.Group
		scored score.ScoredChunkGroup
		impact float64
	}

	var picks []pick
	for i := range card.ScoredFiles {
		sf := &card.ScoredFiles[i]
		if sf.HadError {
			continue
		}
		fcg, ok := chunked[sf.FilePath]
		if !ok {
			continue
		}
		best := -1.0
		var bestPick pick
		for _, scg := range sf.ScoredChunkGroups {
			impact := scg.Score.QualityAverage() * scg.Score.Complexity
			if impact <= best {
				continue
			}
			for _, g := range fcg.GroupedChunks {
				if g.ID == scg.GroupID {
					best = impact
					bestPick = pick{sf: sf, group: g, scored: scg, impact: impact}
				}
			}
		}
		if best >= 0 {
			picks = append(picks, bestPick)
		}
	}

	sort.SliceStable(picks, func(i, j int) bool { return picks[i].impact > picks[j].impact })

	var b strings.Builder
	used := 0
	admitted := 0
	for _, p := range picks {
		if used+p.group.TotalTokens > budget {
			continue
		}
		fmt.Fprintf(&b, "### %s (impact %.2f)\n", p.sf.FilePath, p.impact)
		writeGroup(&b, p.group, p.scored.Score)
		used += p.group.TotalTokens
		admitted++
	}

	if admitted == 0 {
		return "", 0, domain.ErrEmptyDossier
	}
	return b.String(), used, nil
}

func writeFileSection(b *strings.Builder, sf *score.ScoredFile, groups []chunk.Group) {
	fmt.Fprintf(b, "### %s (impact %.2f)\n", sf.FilePath, sf.ImpactScore)
	for _, g := range groups {
		var s score.AIScore
		for _, scg := range sf.ScoredChunkGroups {
			if scg.GroupID == g.ID {
				s = scg.Score
				break
			}
		}
		writeGroup(b, g, s)
	}
}

func writeGroup(b *strings.Builder, g chunk.Group, s score.AIScore) {
	fmt.Fprintf(b, "// group %d: complexity %.1f, quality %.1f\n%s\n\n", g.ID, s.Complexity, s.CodeQuality, g.CombinedText)
}

// FinalReview sends the dossier for holistic calibration. A failed call
// degrades to a neutral multiplier of 1.0 rather than aborting the run.
func (e *Engine) FinalReview(ctx context.Context, card *score.ProjectScorecard, dossier string, dossierTokens int) *score.FinalReview {
	msgs := finalReviewMessages(&project.Context{
		ProjectEssence: card.ProjectEssence,
		PrimaryDomain:  card.MainDomain,
		PrimaryStack:   card.TechStack,
	}, card.PreliminaryProjectScore, len(card.ScoredFiles), dossier)

	result, usage, ok := aiclient.SafeJSONChat[score.FinalReview](ctx, e.review, msgs, e.maxRetries)
	card.Usage = card.Usage.Add(usage)

	if !ok {
		slog.WarnContext(ctx, "final review failed; defaulting multiplier to 1.0")
		return &score.FinalReview{Multiplier: 1.0, Failed: true, DossierTokens: dossierTokens}
	}

	review := *result
	review.DossierTokens = dossierTokens
	if review.Multiplier == 0 {
		// Parsed but missing the required field; stay neutral.
		review.Multiplier = 1.0
	}
	if review.Multiplier < minMultiplier {
		review.Multiplier = minMultiplier
	}
	if review.Multiplier > maxMultiplier {
		review.Multiplier = maxMultiplier
	}
	return &review
}

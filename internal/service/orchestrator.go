package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/ScoreForge/internal/adapter/otel"
	"github.com/Strob0t/ScoreForge/internal/chunker"
	"github.com/Strob0t/ScoreForge/internal/domain"
	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/run"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/logger"
	"github.com/Strob0t/ScoreForge/internal/repo"
)

// ContentCache is the orchestrator's view of the file-content L1 cache.
type ContentCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// Orchestrator owns run lifecycles: it drives the pipeline stages, persists
// report artifacts, and serves incremental operations.
type Orchestrator struct {
	store     *RunStore
	reports   *Reports
	acquirer  *repo.Acquirer
	chunker   *chunker.Chunker
	selection *SelectionService
	engine    *Engine
	content   ContentCache
	model     string
}

// NewOrchestrator wires the pipeline components together. model is recorded
// on scorecards as the scoring model identifier.
func NewOrchestrator(store *RunStore, reports *Reports, acquirer *repo.Acquirer, ck *chunker.Chunker, selection *SelectionService, engine *Engine, content ContentCache, model string) *Orchestrator {
	return &Orchestrator{
		store:     store,
		reports:   reports,
		acquirer:  acquirer,
		chunker:   ck,
		selection: selection,
		engine:    engine,
		content:   content,
		model:     model,
	}
}

// Start acquires the repository, registers the run, and either reuses the
// most recent calibrated artifact or launches the pipeline in the background.
// It returns the run ID and the repository's walked file list.
func (o *Orchestrator) Start(ctx context.Context, runID, repoURL, readmeOverride string) (string, []repo.Entry, error) {
	if repoURL == "" {
		return "", nil, fmt.Errorf("%w: repoUrl is required", domain.ErrValidation)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	meta, err := o.acquirer.Metadata(ctx, repoURL)
	if err != nil {
		return "", nil, err
	}

	if err := o.store.Create(runID, repoURL, meta.Name); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	_ = o.store.Update(runID, run.StatusPreparing, "repository acquired: "+meta.Name, nil)

	if path, ok := o.reports.LatestCalibrated(meta.Name, runID); ok {
		var card score.ProjectScorecard
		if err := ReadJSON(path, &card); err == nil {
			_ = o.store.Update(runID, run.StatusComplete, "loaded cached calibrated scorecard", func(st *run.State) {
				st.FinalScorecard = &card
				st.ScorecardPath = path
			})
			slog.InfoContext(ctx, "run served from cached report", "run_id", runID, "path", path)
			return runID, meta.Files, nil
		}
		slog.WarnContext(ctx, "cached report unreadable; re-running pipeline", "path", path, "error", err)
	}

	// The pipeline outlives the HTTP request: detach from its cancellation
	// but keep the request ID for log correlation.
	bg := logger.WithRunID(context.Background(), runID)
	if reqID := logger.RequestID(ctx); reqID != "" {
		bg = logger.WithRequestID(bg, reqID)
	}
	go o.pipeline(bg, runID, meta, readmeOverride)
	return runID, meta.Files, nil
}

// pipeline executes the linear run stages. Any stage error moves the run to
// the error state; partial artifacts already on disk persist.
func (o *Orchestrator) pipeline(ctx context.Context, runID string, meta *repo.Metadata, readmeOverride string) {
	ctx, span := otel.StartRunSpan(ctx, runID, meta.URL)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "pipeline panic", "panic", r)
			o.store.Fail(runID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// --- Stage: file selection ---
	_ = o.store.Update(runID, run.StatusSelectingFiles, "selecting files", nil)
	if len(meta.Files) == 0 {
		o.store.Fail(runID, "no files were selected")
		return
	}

	sel, err := o.selection.Select(ctx, meta, readmeOverride)
	if err != nil {
		o.store.Fail(runID, err.Error())
		return
	}
	if len(sel.Files) == 0 {
		o.store.Fail(runID, "no files were selected")
		return
	}
	if _, err := o.reports.WriteJSON(meta.Name, runID, selectionReportFile, sel); err != nil {
		slog.WarnContext(ctx, "selection report write failed", "error", err)
	}
	pc := sel.Context
	_ = o.store.Update(runID, run.StatusSelectingFiles,
		fmt.Sprintf("selected %d files (%d flagged)", len(sel.Files), len(sel.Flagged)),
		func(st *run.State) { st.ProjectContext = &pc })

	// --- Stage: chunking and scoring ---
	_ = o.store.Update(runID, run.StatusChunkingAndScoring, "chunking selected files", nil)
	chunked := o.chunkSelection(runID, meta, sel.Files)
	if _, err := o.reports.WriteJSON(meta.Name, runID, chunkingReportFile, chunked); err != nil {
		slog.WarnContext(ctx, "chunking report write failed", "error", err)
	}

	scored := o.scoreChunked(ctx, runID, chunked, &pc)
	if len(scored) == 0 {
		o.store.Fail(runID, "no files could be scored")
		return
	}

	warnings := sel.Warnings
	for _, f := range sel.Flagged {
		warnings = append(warnings, fmt.Sprintf("flagged as vendored: %s (%s)", f.Path, f.Reason))
	}
	card := BuildScorecard(runID, meta.Name, o.model, &pc, scored, warnings)
	if _, err := o.reports.WriteJSON(meta.Name, runID, scorecardReportFile, card); err != nil {
		slog.WarnContext(ctx, "scorecard write failed", "error", err)
	}
	_ = o.store.Update(runID, run.StatusChunkingAndScoring,
		fmt.Sprintf("preliminary score %.2f over %d files", card.PreliminaryProjectScore, len(card.ScoredFiles)), nil)

	// --- Stage: final review ---
	_ = o.store.Update(runID, run.StatusFinalReview, "building dossier for final review", nil)
	byPath := make(map[string]*chunk.FileChunkGroup, len(chunked))
	for _, fcg := range chunked {
		byPath[fcg.FilePath] = fcg
	}
	dossier, dossierTokens, err := o.engine.BuildDossier(card, byPath)
	if err != nil {
		o.store.Fail(runID, err.Error())
		return
	}

	fr := o.engine.FinalReview(ctx, card, dossier, dossierTokens)
	card.FinalReview = fr
	final := card.PreliminaryProjectScore * fr.Multiplier
	card.FinalProjectScore = &final

	path, err := o.reports.WriteCalibrated(meta.Name, runID, card)
	if err != nil {
		o.store.Fail(runID, "persist calibrated scorecard: "+err.Error())
		return
	}

	_ = o.store.Update(runID, run.StatusComplete,
		fmt.Sprintf("final score %.2f (multiplier %.2f)", final, fr.Multiplier),
		func(st *run.State) {
			st.FinalScorecard = card
			st.ScorecardPath = path
		})
	slog.InfoContext(ctx, "run complete", "final_score", final)
}

// chunkSelection chunks every selected file. Parse failures are demoted: the
// file is skipped with a log entry.
func (o *Orchestrator) chunkSelection(runID string, meta *repo.Metadata, selected []string) []*chunk.FileChunkGroup {
	byRel := make(map[string]string, len(meta.Files))
	for _, f := range meta.Files {
		byRel[f.Rel] = f.Abs
	}

	var out []*chunk.FileChunkGroup
	for _, rel := range selected {
		abs, ok := byRel[rel]
		if !ok {
			continue
		}
		data, err := os.ReadFile(abs) //nolint:gosec // G304: path comes from the walked tree
		if err != nil {
			_ = o.store.Update(runID, run.StatusChunkingAndScoring, "skipped unreadable file: "+rel, nil)
			continue
		}
		fcg, err := o.chunker.ChunkFile(string(data), rel)
		if err != nil {
			_ = o.store.Update(runID, run.StatusChunkingAndScoring, "skipped unparseable file: "+rel, nil)
			continue
		}
		out = append(out, fcg)
	}
	return out
}

// scoreChunked routes files to batched or per-file scoring by send strategy.
func (o *Orchestrator) scoreChunked(ctx context.Context, runID string, chunked []*chunk.FileChunkGroup, pc *project.Context) []score.ScoredFile {
	var batchable []*chunk.FileChunkGroup
	var individual []*chunk.FileChunkGroup
	for _, fcg := range chunked {
		switch {
		case fcg.SendStrategy == chunk.SendUnprocessed:
			_ = o.store.Update(runID, run.StatusChunkingAndScoring, "unprocessed (oversized) file: "+fcg.FilePath, nil)
		case Batchable(fcg, o.engine.batchBudget):
			batchable = append(batchable, fcg)
		default:
			individual = append(individual, fcg)
		}
	}

	scored := o.engine.ScoreBatches(ctx, batchable, pc)
	for _, fcg := range individual {
		scored = append(scored, o.engine.ScoreFileGroups(ctx, fcg, pc))
		_ = o.store.Update(runID, run.StatusChunkingAndScoring,
			fmt.Sprintf("scored %s (%d groups)", fcg.FilePath, len(fcg.GroupedChunks)), nil)
	}
	return scored
}

// Status returns the run state snapshot for the polling API.
func (o *Orchestrator) Status(runID string) (run.State, error) {
	return o.store.Get(runID)
}

// ScoreFile scores one additional file on demand. A file already on the
// scorecard is returned as-is without new AI calls; otherwise the file is
// chunked, scored, inserted in impact order, and the scorecard artifact is
// rewritten atomically.
func (o *Orchestrator) ScoreFile(ctx context.Context, runID, filePath string) (*score.ScoredFile, error) {
	ctx = logger.WithRunID(ctx, runID)
	st, err := o.store.Get(runID)
	if err != nil {
		return nil, err
	}
	if st.FinalScorecard == nil {
		return nil, fmt.Errorf("%w: run %s has no scorecard yet", domain.ErrValidation, runID)
	}
	for i := range st.FinalScorecard.ScoredFiles {
		if st.FinalScorecard.ScoredFiles[i].FilePath == filePath {
			return &st.FinalScorecard.ScoredFiles[i], nil
		}
	}

	meta, err := o.acquirer.Metadata(ctx, st.RepoURL)
	if err != nil {
		return nil, err
	}
	abs := ""
	for _, f := range meta.Files {
		if f.Rel == filePath {
			abs = f.Abs
			break
		}
	}
	if abs == "" {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, filePath)
	}

	data, err := os.ReadFile(abs) //nolint:gosec // G304: path comes from the walked tree
	if err != nil {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, filePath)
	}
	fcg, err := o.chunker.ChunkFile(string(data), filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	pc := st.ProjectContext
	if pc == nil {
		pc = &project.Context{
			ProjectEssence: st.FinalScorecard.ProjectEssence,
			PrimaryDomain:  st.FinalScorecard.MainDomain,
			PrimaryStack:   st.FinalScorecard.TechStack,
		}
	}

	var sf score.ScoredFile
	if Batchable(fcg, o.engine.batchBudget) {
		results := o.engine.ScoreBatches(ctx, []*chunk.FileChunkGroup{fcg}, pc)
		if len(results) == 0 {
			return nil, fmt.Errorf("scoring %s produced no result", filePath)
		}
		sf = results[0]
	} else {
		sf = o.engine.ScoreFileGroups(ctx, fcg, pc)
	}

	var updated *score.ProjectScorecard
	err = o.store.Update(runID, st.Status, "scored additional file: "+filePath, func(rs *run.State) {
		card := rs.FinalScorecard
		card.ScoredFiles = append(card.ScoredFiles, sf)
		card.Usage = card.Usage.Add(sf.Usage)
		card.TotalRetries += sf.Retries
		if sf.HadError {
			card.TotalFailedFiles++
		}
		SortByImpact(card.ScoredFiles)
		updated = card
	})
	if err != nil {
		return nil, err
	}

	if st.ScorecardPath != "" {
		if err := o.reports.RewriteJSON(st.ScorecardPath, updated); err != nil {
			slog.WarnContext(ctx, "scorecard rewrite failed", "run_id", runID, "error", err)
		}
	}
	return &sf, nil
}

// FileContent serves the raw bytes of a repository file, denying any path
// that escapes the repository root.
func (o *Orchestrator) FileContent(ctx context.Context, runID, filePath string) ([]byte, error) {
	st, err := o.store.Get(runID)
	if err != nil {
		return nil, err
	}
	meta, err := o.acquirer.Metadata(ctx, st.RepoURL)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(meta.LocalPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(filePath)))
	if err != nil {
		return nil, err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: path %s escapes repository root", domain.ErrForbidden, filePath)
	}

	if data, ok := o.content.Get(abs); ok {
		return data, nil
	}
	data, err := os.ReadFile(abs) //nolint:gosec // G304: path is confined to the repository root above
	if err != nil {
		return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, filePath)
	}
	o.content.Set(abs, data)
	return data, nil
}

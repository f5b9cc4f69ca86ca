package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report artifact names under <reports_root>/<repo>/run-<runId>/.
const (
	chunkingReportFile  = "chunking-analysis.json"
	selectionReportFile = "file-selection.json"
	scorecardReportFile = "project-scorecard.json"
	finalReviewsDir     = "final-reviews2"
)

// Reports manages the filesystem report layout for runs.
type Reports struct {
	root  string
	clock func() time.Time
}

// NewReports creates a Reports rooted at root.
func NewReports(root string) *Reports {
	return &Reports{root: root, clock: time.Now}
}

// RunDir returns the artifact directory for a run.
func (r *Reports) RunDir(repoName, runID string) string {
	return filepath.Join(r.root, repoName, "run-"+runID)
}

// WriteJSON atomically writes v as indented JSON to name inside the run
// directory (write-temp + rename), returning the final path.
func (r *Reports) WriteJSON(repoName, runID, name string, v any) (string, error) {
	final := filepath.Join(r.RunDir(repoName, runID), name)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("reports: create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reports: marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("reports: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("reports: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("reports: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("reports: rename %s: %w", name, err)
	}
	return final, nil
}

// RewriteJSON atomically replaces an existing artifact at path.
func (r *Reports) RewriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("reports: marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("reports: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reports: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reports: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reports: rename %s: %w", path, err)
	}
	return nil
}

// WriteCalibrated writes a calibrated scorecard under final-reviews2 with a
// timestamped name.
func (r *Reports) WriteCalibrated(repoName, runID string, v any) (string, error) {
	ts := r.clock().UTC().Format("20060102-150405")
	return r.WriteJSON(repoName, runID, filepath.Join(finalReviewsDir, "calibrated-scorecard-"+ts+".json"), v)
}

// LatestCalibrated returns the most recently modified calibrated scorecard
// for the run, ordered by full modification time. ok is false when none
// exists.
func (r *Reports) LatestCalibrated(repoName, runID string) (path string, ok bool) {
	dir := filepath.Join(r.RunDir(repoName, runID), finalReviewsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// ReadJSON loads a JSON artifact into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the reports layout
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

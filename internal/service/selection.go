package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
	"github.com/Strob0t/ScoreForge/internal/repo"
)

// maxReadmeBytes bounds the README excerpt fed to context inference.
const maxReadmeBytes = 4096

// SelectionService runs the two-stage AI pipeline: infer the project context,
// then select the file set to score.
type SelectionService struct {
	client     aiclient.Client
	maxRetries int
}

// NewSelectionService creates a SelectionService using the scoring-model client.
func NewSelectionService(client aiclient.Client, maxRetries int) *SelectionService {
	return &SelectionService{client: client, maxRetries: maxRetries}
}

type selectionPayload struct {
	Files []string `json:"files"`
}

// Select infers the project context from the repository and resolves the
// AI-chosen paths against its file tree. Paths that match nothing produce
// warnings, not failures.
func (s *SelectionService) Select(ctx context.Context, meta *repo.Metadata, readmeOverride string) (*project.Selection, error) {
	readme := readmeOverride
	if readme == "" {
		readme = repo.ReadmeExcerpt(meta.LocalPath, maxReadmeBytes)
	}
	tree := fileTree(meta.Files)

	pc, ctxUsage, ok := aiclient.SafeJSONChat[project.Context](ctx, s.client, contextMessages(readme, tree), s.maxRetries)
	if !ok {
		return nil, fmt.Errorf("selection: project context inference failed")
	}

	payload, selUsage, ok := aiclient.SafeJSONChat[selectionPayload](ctx, s.client, selectionMessages(pc, tree), s.maxRetries)
	if !ok {
		return nil, fmt.Errorf("selection: file selection failed")
	}

	sel := &project.Selection{Context: *pc}
	usage := ctxUsage.Add(selUsage)
	sel.PromptTokens = usage.PromptTokens
	sel.OutputTokens = usage.CompletionTokens

	seen := make(map[string]bool)
	for _, line := range payload.Files {
		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		if path, reason, flagged := splitFlag(entry); flagged {
			sel.Flagged = append(sel.Flagged, project.FlaggedFile{Path: path, Reason: reason})
			continue
		}
		resolved := resolvePath(entry, meta.Files)
		if len(resolved) == 0 {
			sel.Warnings = append(sel.Warnings, fmt.Sprintf("selected path %q matched no files", entry))
			continue
		}
		for _, rel := range resolved {
			if !seen[rel] {
				seen[rel] = true
				sel.Files = append(sel.Files, rel)
			}
		}
	}

	slog.InfoContext(ctx, "file selection resolved",
		"repo", meta.Name,
		"selected", len(sel.Files),
		"flagged", len(sel.Flagged),
		"warnings", len(sel.Warnings),
	)
	return sel, nil
}

// splitFlag detects the "<path> # <reason>" form marking suspected vendored
// code.
func splitFlag(entry string) (path, reason string, flagged bool) {
	i := strings.Index(entry, " # ")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i+3:]), true
}

// resolvePath matches a selected path against the repository tree by exact
// match or prefix-with-separator (directory expansion).
func resolvePath(sel string, files []repo.Entry) []string {
	sel = strings.TrimSuffix(strings.TrimPrefix(sel, "./"), "/")
	var matches []string
	for _, f := range files {
		if f.Rel == sel || strings.HasPrefix(f.Rel, sel+"/") {
			matches = append(matches, f.Rel)
		}
	}
	return matches
}

// fileTree renders the walked entries as one path per line.
func fileTree(files []repo.Entry) string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Rel
	}
	return strings.Join(paths, "\n")
}

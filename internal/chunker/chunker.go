// Package chunker fragments source files along language-aware boundaries
// under token budgets, preserving enclosing context, and emits the exact
// token accounting consumed by the scoring engine.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/strategy"
	"github.com/Strob0t/ScoreForge/internal/tokenizer"
)

const (
	headerMarker     = "// ---- file context ----"
	shellPlaceholder = "/* ... chunked members ... */"
	endOfSubsMarker  = "// ---- end of sub-chunks ----"
)

// Config carries the chunking budgets.
type Config struct {
	MaxTokensPerChunk int
	MaxTokensPerGroup int
	MaxContextTokens  int
	ContextItemLimit  int
}

// Chunker turns file contents into FileChunkGroups.
type Chunker struct {
	cfg      Config
	registry *strategy.Registry
	count    tokenizer.CountFunc
}

// New creates a Chunker. count is the process token counter; tests may pass a
// deterministic fake.
func New(cfg Config, registry *strategy.Registry, count tokenizer.CountFunc) *Chunker {
	return &Chunker{cfg: cfg, registry: registry, count: count}
}

// ChunkFile fragments code under the configured budgets. The result is
// immutable and deterministic for identical inputs.
func (c *Chunker) ChunkFile(code, path string) (*chunk.FileChunkGroup, error) {
	strat := c.registry.ForFile(path)

	tree, err := strat.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}

	header := c.buildHeader(strat, tree, code, path)
	headerTokens := c.count(header)
	totalFileTokens := c.count(code)

	chunks := c.collectChunks(strat, tree, code)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].StartLine < chunks[j].StartLine
	})

	var skipped []chunk.SkippedContent
	for i := range chunks {
		if chunks[i].Oversized {
			continue
		}
		if reason := strat.ShouldSkip(chunks[i]); reason != "" {
			chunks[i].SkipReason = reason
			skipped = append(skipped, chunk.SkippedContent{
				StartLine: chunks[i].StartLine,
				EndLine:   chunks[i].EndLine,
				Type:      chunks[i].Type,
				Reason:    reason,
				Tokens:    chunks[i].CodeTokens,
			})
		}
	}

	var oversized []chunk.Chunk
	for _, ch := range chunks {
		if ch.Oversized {
			oversized = append(oversized, ch)
		}
	}

	fcg := &chunk.FileChunkGroup{
		FilePath:        path,
		TotalFileTokens: totalFileTokens,
		Chunks:          chunks,
		OversizedChunks: oversized,
		SkippedContent:  skipped,
		ContextHeader:   header,
	}

	if totalFileTokens+headerTokens <= c.cfg.MaxTokensPerGroup && len(oversized) == 0 {
		c.finalizeFullFile(fcg, code, header, headerTokens)
		return fcg, nil
	}

	groups := c.groupChunks(chunks, headerTokens)
	switch {
	case len(groups) == 0:
		// Only oversized or skipped content; nothing sendable.
		fcg.SendStrategy = chunk.SendUnprocessed
	case len(groups) == 1:
		fcg.SendStrategy = chunk.SendSingleGroup
	default:
		fcg.SendStrategy = chunk.SendMultipleGroups
	}

	shellTokens := c.finalizeGroups(groups, header)
	fcg.GroupedChunks = groups

	final := 0
	codeInGroups := 0
	for _, g := range groups {
		final += g.TotalTokens
		for _, ch := range g.Chunks {
			codeInGroups += ch.CodeTokens
		}
	}
	fcg.FinalTokenCount = final
	fcg.TokenBreakdown = breakdown(totalFileTokens, codeInGroups, len(groups)*headerTokens, shellTokens, final)
	return fcg, nil
}

// buildHeader assembles the context header: a file banner, a marker line, and
// the strategy's header items capped by count, then truncated from the tail
// until it fits the context budget.
func (c *Chunker) buildHeader(strat strategy.Strategy, tree strategy.Tree, code, path string) string {
	lines := []string{"// File: " + path, headerMarker}
	items := strat.HeaderItems(tree, code)
	if limit := c.cfg.ContextItemLimit; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	lines = append(lines, items...)

	header := strings.Join(lines, "\n")
	for len(lines) > 2 && c.count(header) > c.cfg.MaxContextTokens {
		lines = lines[:len(lines)-1]
		header = strings.Join(lines, "\n")
	}
	return header
}

// collectChunks walks top-level nodes, sub-chunking or fallback-splitting any
// node above the per-chunk budget.
func (c *Chunker) collectChunks(strat strategy.Strategy, tree strategy.Tree, code string) []chunk.Chunk {
	var chunks []chunk.Chunk
	for _, node := range strat.TopLevelNodes(tree, code) {
		tokens := c.count(node.Text)
		if tokens <= c.cfg.MaxTokensPerChunk {
			chunks = append(chunks, chunk.Chunk{
				OriginalText: node.Text,
				CodeTokens:   tokens,
				StartLine:    node.StartLine,
				EndLine:      node.EndLine,
				Type:         node.Type,
			})
			continue
		}

		subs := strat.SubNodes(tree, code, node)
		if len(subs) == 0 {
			chunks = append(chunks, strategy.SplitNodeByLines(node, c.cfg.MaxTokensPerChunk, c.count)...)
			continue
		}

		shell := c.buildShell(code, node, subs)
		for _, sub := range subs {
			subTokens := c.count(sub.Text)
			chunks = append(chunks, chunk.Chunk{
				OriginalText: sub.Text,
				CodeTokens:   subTokens,
				StartLine:    sub.StartLine,
				EndLine:      sub.EndLine,
				Type:         sub.Type,
				ShellContext: shell,
				Oversized:    subTokens > c.cfg.MaxTokensPerChunk,
			})
		}
	}
	return chunks
}

// buildShell trims the parent's scaffolding around its sub-chunks: opening
// text up to the first sub-node, a placeholder, then closing text after the
// last sub-node.
func (c *Chunker) buildShell(code string, parent strategy.Node, subs []strategy.Node) *chunk.ShellContext {
	opening := strings.TrimRight(code[parent.StartByte:subs[0].StartByte], " \t\n")
	closing := strings.TrimLeft(code[subs[len(subs)-1].EndByte:parent.EndByte], " \t\n")
	text := opening + "\n" + shellPlaceholder + "\n" + closing
	return &chunk.ShellContext{Text: text, Tokens: c.count(text)}
}

// groupChunks packs active chunks greedily in file order under the group
// budget net of the header.
func (c *Chunker) groupChunks(chunks []chunk.Chunk, headerTokens int) []chunk.Group {
	budget := c.cfg.MaxTokensPerGroup - headerTokens

	var groups []chunk.Group
	var current []chunk.Chunk
	running := 0
	var currentShell *chunk.ShellContext

	flush := func() {
		if len(current) == 0 {
			return
		}
		groups = append(groups, chunk.Group{
			ID:     len(groups) + 1,
			Chunks: current,
		})
		current = nil
		running = 0
		currentShell = nil
	}

	for _, ch := range chunks {
		if !ch.Active() {
			continue
		}
		cost := ch.CodeTokens + c.separatorTokens(ch)
		if ch.ShellContext != nil && ch.ShellContext != currentShell {
			cost += ch.ShellContext.Tokens
		}
		if running+cost > budget && len(current) > 0 {
			flush()
			// The shell context re-enters with the chunk in the new group.
			cost = ch.CodeTokens + c.separatorTokens(ch)
			if ch.ShellContext != nil {
				cost += ch.ShellContext.Tokens
			}
		}
		current = append(current, ch)
		running += cost
		currentShell = ch.ShellContext
	}
	flush()
	return groups
}

// separatorTokens is the budget reserve for a chunk's separator preamble.
func (c *Chunker) separatorTokens(ch chunk.Chunk) int {
	return c.count(separatorFor(ch)) + 2
}

func separatorFor(ch chunk.Chunk) string {
	return fmt.Sprintf("\n// ---- chunk: lines %d-%d (%s) ----\n", ch.StartLine, ch.EndLine, ch.Type)
}

// finalizeGroups renders each group's combined text and returns the total
// shell-context tokens emitted across groups.
func (c *Chunker) finalizeGroups(groups []chunk.Group, header string) int {
	shellTotal := 0
	for i := range groups {
		g := &groups[i]
		var b strings.Builder
		b.WriteString(header)

		var currentShell *chunk.ShellContext
		start, end := g.Chunks[0].StartLine, 0
		for _, ch := range g.Chunks {
			if ch.StartLine < start {
				start = ch.StartLine
			}
			if ch.EndLine > end {
				end = ch.EndLine
			}

			if ch.ShellContext != currentShell {
				if currentShell != nil {
					b.WriteString("\n" + endOfSubsMarker + "\n")
				}
				if ch.ShellContext != nil {
					b.WriteString("\n" + ch.ShellContext.Text + "\n")
					shellTotal += ch.ShellContext.Tokens
				}
				currentShell = ch.ShellContext
			}

			b.WriteString(separatorFor(ch))
			b.WriteString(ch.OriginalText)
		}
		if currentShell != nil {
			b.WriteString("\n" + endOfSubsMarker + "\n")
		}

		g.CombinedText = b.String()
		g.TotalTokens = c.count(g.CombinedText)
		g.StartLine = start
		g.EndLine = end
	}
	return shellTotal
}

// finalizeFullFile emits the single full-file group: header plus the entire
// original code verbatim.
func (c *Chunker) finalizeFullFile(fcg *chunk.FileChunkGroup, code, header string, headerTokens int) {
	combined := header
	if code != "" {
		combined = header + "\n" + code
	}
	total := c.count(combined)

	full := chunk.Chunk{
		OriginalText: code,
		CodeTokens:   fcg.TotalFileTokens,
		StartLine:    1,
		EndLine:      1 + strings.Count(strings.TrimSuffix(code, "\n"), "\n"),
		Type:         "full_file",
	}
	fcg.SendStrategy = chunk.SendFullFile
	fcg.GroupedChunks = []chunk.Group{{
		ID:           1,
		Chunks:       []chunk.Chunk{full},
		CombinedText: combined,
		TotalTokens:  total,
		StartLine:    full.StartLine,
		EndLine:      full.EndLine,
	}}
	fcg.FinalTokenCount = total
	fcg.TokenBreakdown = breakdown(fcg.TotalFileTokens, fcg.TotalFileTokens, headerTokens, 0, total)
}

// breakdown derives the separator share by subtraction so the accounting
// identities reconcile exactly.
func breakdown(original, codeInGroups, headerInGroups, shellInGroups, finalSent int) chunk.TokenBreakdown {
	savings := original - finalSent
	pct := 0.0
	if original > 0 {
		pct = float64(savings) / float64(original)
	}
	return chunk.TokenBreakdown{
		OriginalFile:         original,
		CodeInGroups:         codeInGroups,
		FileHeaderInGroups:   headerInGroups,
		ShellContextInGroups: shellInGroups,
		SeparatorInGroups:    finalSent - codeInGroups - headerInGroups - shellInGroups,
		FinalSent:            finalSent,
		TotalSavings:         savings,
		SavingsPercentage:    pct,
	}
}

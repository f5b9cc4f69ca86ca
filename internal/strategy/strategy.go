// Package strategy maps file names to language strategies: the capability set
// the chunker consumes to fragment a source file along syntactic boundaries.
package strategy

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/tokenizer"
)

// Node is a syntactic unit produced by a strategy: a top-level declaration or
// a sub-unit inside one. Byte offsets index into the file's code; lines are
// 1-based and inclusive.
type Node struct {
	Type      string
	Text      string
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
}

// Tree is an opaque parse result handed back to the strategy that built it.
// The declarative strategy returns a nil Tree and treats the whole file as a
// single pseudo-node.
type Tree interface{}

// Strategy is the per-language capability set.
type Strategy interface {
	// Name identifies the strategy in reports and logs.
	Name() string

	// Parse builds a syntax tree for code. A nil Tree with nil error means
	// the strategy does not parse and works on raw text.
	Parse(code string) (Tree, error)

	// TopLevelNodes returns the independent units of the file in source order.
	TopLevelNodes(t Tree, code string) []Node

	// SubNodes returns the children inside n's body suitable as independent
	// sub-chunks, in source order. Empty when n is indivisible.
	SubNodes(t Tree, code string, n Node) []Node

	// HeaderItems returns the contextual frame of the file: imports, pragmas,
	// small type aliases and constants, one string per item.
	HeaderItems(t Tree, code string) []string

	// ShouldSkip returns a non-empty reason when the chunk is boilerplate or
	// low-signal and must not be sent for scoring.
	ShouldSkip(c chunk.Chunk) string
}

// Config tunes strategy construction.
type Config struct {
	BoilerplateThreshold float64 // minimum code-to-total line ratio
	ForceSimple          bool    // collapse every lookup to the simple-text strategy
}

// Registry resolves a strategy for a file path by extension.
type Registry struct {
	cfg Config
}

// NewRegistry creates a Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.BoilerplateThreshold <= 0 {
		cfg.BoilerplateThreshold = 0.6
	}
	return &Registry{cfg: cfg}
}

// ForFile returns the strategy for path. Unknown extensions fall back to the
// simple-text strategy, as does every lookup when ForceSimple is set.
func (r *Registry) ForFile(path string) Strategy {
	if r.cfg.ForceSimple {
		return newSimpleText(r.cfg)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return newTypeScript(ext, r.cfg)
	case ".sol":
		return newSolidity(r.cfg)
	case ".json", ".yaml", ".yml", ".toml", ".md", ".txt":
		return newDeclarative(r.cfg)
	default:
		return newSimpleText(r.cfg)
	}
}

// SplitNodeByLines is the fallback splitter shared by all strategies: it
// accumulates lines of n.Text into parts of at most maxTokens tokens; a single
// line above maxTokens becomes a part of its own, above the limit. Parts
// carry type "<node_type>_part_<n>" and are never marked oversized, so they
// always enter a group.
func SplitNodeByLines(n Node, maxTokens int, count tokenizer.CountFunc) []chunk.Chunk {
	lines := strings.Split(n.Text, "\n")
	var parts []chunk.Chunk
	var buf []string
	bufTokens := 0
	lineNo := n.StartLine

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, "\n")
		// Parts must concatenate back to the parent text, so every part but
		// the last keeps its trailing newline.
		if endLine < n.EndLine {
			text += "\n"
		}
		parts = append(parts, chunk.Chunk{
			OriginalText: text,
			CodeTokens:   count(text),
			StartLine:    lineNo,
			EndLine:      endLine,
			Type:         n.Type + "_part_" + strconv.Itoa(len(parts)+1),
		})
		lineNo = endLine + 1
		buf = buf[:0]
		bufTokens = 0
	}

	for i, line := range lines {
		// A part boundary mid-node must keep the newline accounting exact:
		// every line except the last contributes its trailing newline.
		lineTokens := count(line + "\n")
		if i == len(lines)-1 {
			lineTokens = count(line)
		}
		if bufTokens+lineTokens > maxTokens && len(buf) > 0 {
			flush(n.StartLine + i - 1)
		}
		buf = append(buf, line)
		bufTokens += lineTokens
	}
	flush(n.EndLine)

	return parts
}

// codeRatio returns the share of non-blank lines carrying code rather than
// comments. Blank lines are not counted.
func codeRatio(text string) float64 {
	lines := strings.Split(text, "\n")
	total, code := 0, 0
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		if inBlock {
			if strings.Contains(trimmed, "*/") {
				inBlock = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "/*") {
			if !strings.Contains(trimmed, "*/") {
				inBlock = true
			}
			continue
		}
		code++
	}
	if total == 0 {
		return 0
	}
	return float64(code) / float64(total)
}

// lineOfByte returns the 1-based line containing byte offset b of code.
func lineOfByte(code string, b int) int {
	if b > len(code) {
		b = len(code)
	}
	return 1 + strings.Count(code[:b], "\n")
}

package strategy

import (
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
)

// declarativeStrategy treats the whole file as a single atom: configuration,
// markup, and data files have no useful syntactic sub-structure for scoring.
type declarativeStrategy struct {
	cfg Config
}

func newDeclarative(cfg Config) *declarativeStrategy {
	return &declarativeStrategy{cfg: cfg}
}

func (s *declarativeStrategy) Name() string { return "declarative" }

func (s *declarativeStrategy) Parse(string) (Tree, error) { return nil, nil }

func (s *declarativeStrategy) TopLevelNodes(_ Tree, code string) []Node {
	return wholeFileNode(code, "declarative_file")
}

func (s *declarativeStrategy) SubNodes(Tree, string, Node) []Node { return nil }

func (s *declarativeStrategy) HeaderItems(Tree, string) []string { return nil }

func (s *declarativeStrategy) ShouldSkip(chunk.Chunk) string { return "" }

// simpleTextStrategy is the fallback for unknown extensions and the collapse
// target of the force-simple flag. Oversized files split on line boundaries.
type simpleTextStrategy struct {
	cfg Config
}

func newSimpleText(cfg Config) *simpleTextStrategy {
	return &simpleTextStrategy{cfg: cfg}
}

func (s *simpleTextStrategy) Name() string { return "simple-text" }

func (s *simpleTextStrategy) Parse(string) (Tree, error) { return nil, nil }

func (s *simpleTextStrategy) TopLevelNodes(_ Tree, code string) []Node {
	return wholeFileNode(code, "text_file")
}

func (s *simpleTextStrategy) SubNodes(Tree, string, Node) []Node { return nil }

func (s *simpleTextStrategy) HeaderItems(Tree, string) []string { return nil }

func (s *simpleTextStrategy) ShouldSkip(chunk.Chunk) string { return "" }

func wholeFileNode(code, nodeType string) []Node {
	if code == "" {
		return nil
	}
	return []Node{{
		Type:      nodeType,
		Text:      code,
		StartByte: 0,
		EndByte:   len(code),
		StartLine: 1,
		EndLine:   1 + strings.Count(strings.TrimSuffix(code, "\n"), "\n"),
	}}
}

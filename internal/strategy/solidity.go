package strategy

import (
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
)

// solidityStrategy fragments Solidity sources with a brace-matching scanner.
// No Solidity tree-sitter grammar ships with the bindings in use, so contracts
// and their members are located by keyword plus balanced-brace scanning, which
// is sufficient for chunk boundaries.
type solidityStrategy struct {
	cfg Config
}

func newSolidity(cfg Config) *solidityStrategy {
	return &solidityStrategy{cfg: cfg}
}

func (s *solidityStrategy) Name() string { return "solidity" }

// Parse is a no-op; the scanner works on raw text.
func (s *solidityStrategy) Parse(code string) (Tree, error) { return nil, nil }

var solTopKeywords = []string{"contract", "interface", "library", "abstract contract"}

var solSubKeywords = []string{"function", "modifier", "constructor", "event", "struct", "enum", "error", "receive", "fallback"}

func (s *solidityStrategy) TopLevelNodes(_ Tree, code string) []Node {
	return scanBlocks(code, 0, solTopKeywords)
}

func (s *solidityStrategy) SubNodes(_ Tree, code string, n Node) []Node {
	open := strings.Index(n.Text, "{")
	if open < 0 {
		return nil
	}
	// Scan only the contract body; offsets shift back to file coordinates.
	body := n.Text[open+1:]
	if close := strings.LastIndex(body, "}"); close >= 0 {
		body = body[:close]
	}
	subs := scanBlocks(body, n.StartByte+open+1, solSubKeywords)
	for i := range subs {
		subs[i].StartLine = lineOfByte(code, subs[i].StartByte)
		subs[i].EndLine = lineOfByte(code, subs[i].EndByte-1)
	}
	return subs
}

func (s *solidityStrategy) HeaderItems(_ Tree, code string) []string {
	var items []string
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "pragma ") ||
			strings.HasPrefix(trimmed, "import ") ||
			strings.HasPrefix(trimmed, "// SPDX-License-Identifier:") {
			items = append(items, trimmed)
		}
	}
	return items
}

func (s *solidityStrategy) ShouldSkip(c chunk.Chunk) string {
	switch {
	case c.Type == "event" || c.Type == "error":
		return "trivial declaration"
	case c.Type == "struct" || c.Type == "enum":
		if strings.Count(c.OriginalText, "\n") <= 4 {
			return "simple type definition"
		}
	}
	if codeRatio(c.OriginalText) < s.cfg.BoilerplateThreshold {
		return "low code-to-comment ratio"
	}
	return ""
}

// scanBlocks finds keyword-introduced declarations and extends each through
// its balanced-brace body (or to the terminating semicolon for braceless
// declarations such as events).
func scanBlocks(code string, baseOffset int, keywords []string) []Node {
	var nodes []Node
	lines := strings.Split(code, "\n")

	// Byte offset of each line start.
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1
	}

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		kw := matchKeyword(trimmed, keywords)
		if kw == "" {
			i++
			continue
		}

		start := offsets[i]
		depth := 0
		opened := false
		end := -1
		for j := start; j < len(code); j++ {
			switch code[j] {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth == 0 {
					end = j + 1
				}
			case ';':
				if !opened {
					end = j + 1
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			end = len(code)
		}

		text := code[start:end]
		endLine := i + strings.Count(text, "\n")
		nodes = append(nodes, Node{
			Type:      kw,
			Text:      text,
			StartByte: baseOffset + start,
			EndByte:   baseOffset + end,
			StartLine: i + 1,
			EndLine:   endLine + 1,
		})
		i = endLine + 1
	}
	return nodes
}

func matchKeyword(line string, keywords []string) string {
	for _, kw := range keywords {
		if line == kw || strings.HasPrefix(line, kw+" ") || strings.HasPrefix(line, kw+"(") {
			if strings.Contains(kw, " ") {
				return strings.Fields(kw)[1]
			}
			return kw
		}
	}
	return ""
}

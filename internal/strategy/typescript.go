package strategy

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
)

// maxHeaderItemBytes bounds a single header item (type alias, interface,
// constant) so one large declaration cannot swallow the context budget.
const maxHeaderItemBytes = 240

// typescriptStrategy handles the TypeScript/JavaScript dialect family via
// tree-sitter.
type typescriptStrategy struct {
	lang *sitter.Language
	name string
	cfg  Config
}

func newTypeScript(ext string, cfg Config) *typescriptStrategy {
	switch ext {
	case ".tsx", ".jsx":
		return &typescriptStrategy{lang: tsx.GetLanguage(), name: "typescript", cfg: cfg}
	case ".js", ".mjs", ".cjs":
		return &typescriptStrategy{lang: javascript.GetLanguage(), name: "typescript", cfg: cfg}
	default:
		return &typescriptStrategy{lang: typescript.GetLanguage(), name: "typescript", cfg: cfg}
	}
}

func (s *typescriptStrategy) Name() string { return s.name }

// tsTree pairs the parsed tree with its source so node text can be sliced.
type tsTree struct {
	root   *sitter.Node
	source []byte
}

func (s *typescriptStrategy) Parse(code string) (Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(s.lang)
	source := []byte(code)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("typescript parse: %w", err)
	}
	return &tsTree{root: tree.RootNode(), source: source}, nil
}

func (s *typescriptStrategy) TopLevelNodes(t Tree, code string) []Node {
	tt, ok := t.(*tsTree)
	if !ok || tt.root == nil {
		return nil
	}

	var nodes []Node
	for i := 0; i < int(tt.root.NamedChildCount()); i++ {
		child := tt.root.NamedChild(i)
		if child == nil {
			continue
		}

		decl := child
		if child.Type() == "export_statement" {
			// Export wrappers are transparent: chunk the wrapped declaration.
			if inner := child.ChildByFieldName("declaration"); inner != nil {
				decl = inner
			}
		}

		switch decl.Type() {
		case "import_statement", "comment":
			continue
		case "lexical_declaration", "variable_declaration":
			if !functionValued(decl) {
				continue
			}
		}

		nodes = append(nodes, toNode(decl, tt.source))
	}
	return nodes
}

func (s *typescriptStrategy) SubNodes(t Tree, code string, n Node) []Node {
	tt, ok := t.(*tsTree)
	if !ok || tt.root == nil {
		return nil
	}
	astNode := findByRange(tt.root, n.StartByte, n.EndByte)
	if astNode == nil {
		return nil
	}
	body := bodyOf(astNode)
	if body == nil {
		return nil
	}

	var subs []Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		subs = append(subs, toNode(child, tt.source))
	}
	return subs
}

func (s *typescriptStrategy) HeaderItems(t Tree, code string) []string {
	tt, ok := t.(*tsTree)
	if !ok || tt.root == nil {
		return nil
	}

	var items []string
	for i := 0; i < int(tt.root.NamedChildCount()); i++ {
		child := tt.root.NamedChild(i)
		if child == nil {
			continue
		}
		decl := child
		if child.Type() == "export_statement" {
			if inner := child.ChildByFieldName("declaration"); inner != nil {
				decl = inner
			}
		}

		switch decl.Type() {
		case "import_statement":
			items = append(items, decl.Content(tt.source))
		case "type_alias_declaration", "interface_declaration", "enum_declaration":
			if decl.EndByte()-decl.StartByte() <= maxHeaderItemBytes {
				items = append(items, decl.Content(tt.source))
			}
		case "lexical_declaration", "variable_declaration":
			if !functionValued(decl) && decl.EndByte()-decl.StartByte() <= maxHeaderItemBytes {
				items = append(items, decl.Content(tt.source))
			}
		}
	}
	return items
}

func (s *typescriptStrategy) ShouldSkip(c chunk.Chunk) string {
	switch c.Type {
	case "type_alias_declaration":
		return "simple type definition"
	case "interface_declaration":
		if strings.Count(c.OriginalText, "\n") <= 3 {
			return "trivial interface"
		}
	}
	if codeRatio(c.OriginalText) < s.cfg.BoilerplateThreshold {
		return "low code-to-comment ratio"
	}
	return ""
}

// functionValued reports whether a variable declaration binds at least one
// function-like value.
func functionValued(decl *sitter.Node) bool {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d == nil || d.Type() != "variable_declarator" {
			continue
		}
		value := d.ChildByFieldName("value")
		if value == nil {
			continue
		}
		switch value.Type() {
		case "arrow_function", "function_expression", "function", "generator_function":
			return true
		}
	}
	return false
}

// bodyOf returns the block child holding a node's members, if any.
func bodyOf(n *sitter.Node) *sitter.Node {
	if body := n.ChildByFieldName("body"); body != nil {
		switch body.Type() {
		case "class_body", "statement_block", "enum_body", "object", "interface_body":
			return body
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "class_body", "statement_block", "enum_body", "interface_body":
			return child
		}
	}
	return nil
}

// findByRange locates the named node spanning exactly [start, end).
func findByRange(root *sitter.Node, start, end int) *sitter.Node {
	if int(root.StartByte()) == start && int(root.EndByte()) == end {
		return root
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		if int(child.StartByte()) > end || int(child.EndByte()) < start {
			continue
		}
		if found := findByRange(child, start, end); found != nil {
			return found
		}
	}
	return nil
}

func toNode(n *sitter.Node, source []byte) Node {
	return Node{
		Type:      n.Type(),
		Text:      n.Content(source),
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
}

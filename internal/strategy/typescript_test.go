package strategy

import (
	"strings"
	"testing"
)

const tsSample = `import { thing } from "./thing";
import fs from "fs";

type ID = string;

const LIMIT = 10;

export const handler = async (req) => {
	return thing(req);
};

export class Widget {
	private count = 0;

	render() {
		return this.count;
	}

	reset() {
		this.count = 0;
	}
}

const plainValue = 42;

export function main() {
	return new Widget();
}
`

func parseTS(t *testing.T, code string) (*typescriptStrategy, Tree) {
	t.Helper()
	s := newTypeScript(".ts", Config{BoilerplateThreshold: 0.6})
	tree, err := s.Parse(code)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return s, tree
}

func TestTypeScriptTopLevelNodesUnwrapExports(t *testing.T) {
	s, tree := parseTS(t, tsSample)
	nodes := s.TopLevelNodes(tree, tsSample)

	var types []string
	for _, n := range nodes {
		types = append(types, n.Type)
	}

	// Imports are excluded; the export wrappers are unwrapped; the plain
	// non-function const is filtered out; the function-valued const stays.
	for _, n := range nodes {
		if strings.HasPrefix(n.Text, "export ") {
			t.Errorf("export wrapper not unwrapped: %q", n.Text)
		}
		if strings.Contains(n.Text, "plainValue") {
			t.Errorf("non-function const not filtered: %q", n.Text)
		}
		if strings.HasPrefix(n.Text, "import ") {
			t.Errorf("import leaked into top-level nodes: %q", n.Text)
		}
	}

	var hasClass, hasFunc, hasHandler bool
	for _, n := range nodes {
		switch n.Type {
		case "class_declaration":
			hasClass = true
		case "function_declaration":
			hasFunc = true
		case "lexical_declaration":
			hasHandler = true
		}
	}
	if !hasClass || !hasFunc || !hasHandler {
		t.Fatalf("missing expected nodes, got types %v", types)
	}
}

func TestTypeScriptSubNodesOfClass(t *testing.T) {
	s, tree := parseTS(t, tsSample)
	nodes := s.TopLevelNodes(tree, tsSample)

	var class Node
	for _, n := range nodes {
		if n.Type == "class_declaration" {
			class = n
		}
	}
	if class.Type == "" {
		t.Fatal("class node not found")
	}

	subs := s.SubNodes(tree, tsSample, class)
	if len(subs) < 2 {
		t.Fatalf("expected class members as sub-nodes, got %d", len(subs))
	}
	var sawRender bool
	for _, sub := range subs {
		if strings.Contains(sub.Text, "render()") {
			sawRender = true
		}
		if sub.StartLine < class.StartLine || sub.EndLine > class.EndLine {
			t.Errorf("sub-node %q outside parent span", sub.Type)
		}
	}
	if !sawRender {
		t.Fatal("expected render() among sub-nodes")
	}
}

func TestTypeScriptHeaderItems(t *testing.T) {
	s, tree := parseTS(t, tsSample)
	items := s.HeaderItems(tree, tsSample)

	joined := strings.Join(items, "\n")
	if !strings.Contains(joined, `import { thing } from "./thing";`) {
		t.Fatalf("imports missing from header: %v", items)
	}
	if !strings.Contains(joined, "type ID = string;") {
		t.Fatalf("small type alias missing from header: %v", items)
	}
	if !strings.Contains(joined, "const LIMIT = 10;") {
		t.Fatalf("small non-function const missing from header: %v", items)
	}
	if strings.Contains(joined, "handler") {
		t.Fatalf("function-valued const must not be a header item: %v", items)
	}
}

func TestTypeScriptLineNumbersAreOneBased(t *testing.T) {
	code := "const a = () => 1;\n"
	s, tree := parseTS(t, code)
	nodes := s.TopLevelNodes(tree, code)
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %d", len(nodes))
	}
	if nodes[0].StartLine != 1 {
		t.Fatalf("expected 1-based start line, got %d", nodes[0].StartLine)
	}
}

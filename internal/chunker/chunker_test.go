package chunker

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/strategy"
)

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func newTestChunker(cfg Config) *Chunker {
	if cfg.MaxTokensPerChunk == 0 {
		cfg = Config{
			MaxTokensPerChunk: 800,
			MaxTokensPerGroup: 2500,
			MaxContextTokens:  200,
			ContextItemLimit:  15,
		}
	}
	registry := strategy.NewRegistry(strategy.Config{BoilerplateThreshold: 0.6})
	return New(cfg, registry, wordCount)
}

// repeatLines builds text with n lines of w words each.
func repeatLines(n, w int) string {
	line := strings.TrimSpace(strings.Repeat("tok ", w))
	lines := make([]string, n)
	for i := range lines {
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func TestEmptyFileYieldsHeaderOnlyFullFile(t *testing.T) {
	c := newTestChunker(Config{})
	fcg, err := c.ChunkFile("", "empty.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if fcg.SendStrategy != chunk.SendFullFile {
		t.Fatalf("expected full_file, got %s", fcg.SendStrategy)
	}
	if len(fcg.GroupedChunks) != 1 {
		t.Fatalf("expected one group, got %d", len(fcg.GroupedChunks))
	}
	if fcg.GroupedChunks[0].CombinedText != fcg.ContextHeader {
		t.Fatal("expected combined text to be just the header")
	}
}

func TestSmallFileFullFileEndsWithCodeVerbatim(t *testing.T) {
	c := newTestChunker(Config{})
	code := repeatLines(10, 12) // 120 tokens
	fcg, err := c.ChunkFile(code, "small.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if fcg.SendStrategy != chunk.SendFullFile {
		t.Fatalf("expected full_file, got %s", fcg.SendStrategy)
	}
	g := fcg.GroupedChunks[0]
	if !strings.HasSuffix(g.CombinedText, code) {
		t.Fatal("full_file combined text must end with the original code verbatim")
	}
	if !strings.HasPrefix(g.CombinedText, fcg.ContextHeader) {
		t.Fatal("full_file combined text must start with the header")
	}
	if len(g.Chunks) != 1 || g.Chunks[0].Type != "full_file" {
		t.Fatalf("expected a single synthetic full_file chunk, got %+v", g.Chunks)
	}
	if fcg.FinalTokenCount != g.TotalTokens {
		t.Fatalf("final token count %d != group total %d", fcg.FinalTokenCount, g.TotalTokens)
	}
}

func TestLargeFileSplitsIntoMultipleGroups(t *testing.T) {
	c := newTestChunker(Config{
		MaxTokensPerChunk: 800,
		MaxTokensPerGroup: 2500,
		MaxContextTokens:  200,
		ContextItemLimit:  15,
	})
	code := repeatLines(400, 10) // ~4000 tokens
	fcg, err := c.ChunkFile(code, "big.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if fcg.SendStrategy != chunk.SendMultipleGroups {
		t.Fatalf("expected multiple_groups, got %s", fcg.SendStrategy)
	}
	if len(fcg.Chunks) < 5 {
		t.Fatalf("expected >=5 chunks, got %d", len(fcg.Chunks))
	}
	if len(fcg.GroupedChunks) < 2 {
		t.Fatalf("expected >=2 groups, got %d", len(fcg.GroupedChunks))
	}
	for _, g := range fcg.GroupedChunks {
		if g.TotalTokens > 2500 {
			t.Errorf("group %d exceeds budget: %d tokens", g.ID, g.TotalTokens)
		}
		if len(g.Chunks) == 0 {
			t.Errorf("group %d is empty", g.ID)
		}
	}
}

func TestEveryActiveChunkInExactlyOneGroup(t *testing.T) {
	c := newTestChunker(Config{
		MaxTokensPerChunk: 50,
		MaxTokensPerGroup: 120,
		MaxContextTokens:  40,
		ContextItemLimit:  15,
	})
	code := repeatLines(60, 5)
	fcg, err := c.ChunkFile(code, "file.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	seen := make(map[int]int)
	for _, g := range fcg.GroupedChunks {
		for _, ch := range g.Chunks {
			seen[ch.StartLine]++
		}
	}
	for _, ch := range fcg.Chunks {
		if !ch.Active() {
			continue
		}
		if seen[ch.StartLine] != 1 {
			t.Errorf("active chunk at line %d appears %d times in groups", ch.StartLine, seen[ch.StartLine])
		}
	}
}

func TestTokenBreakdownReconcilesExactly(t *testing.T) {
	c := newTestChunker(Config{
		MaxTokensPerChunk: 100,
		MaxTokensPerGroup: 300,
		MaxContextTokens:  40,
		ContextItemLimit:  15,
	})
	code := repeatLines(120, 6)
	fcg, err := c.ChunkFile(code, "file.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	b := fcg.TokenBreakdown
	if got := b.CodeInGroups + b.FileHeaderInGroups + b.ShellContextInGroups + b.SeparatorInGroups; got != b.FinalSent {
		t.Fatalf("breakdown does not reconcile: parts sum %d, final %d", got, b.FinalSent)
	}
	if b.TotalSavings != b.OriginalFile-b.FinalSent {
		t.Fatalf("savings %d != original %d - final %d", b.TotalSavings, b.OriginalFile, b.FinalSent)
	}
	sumGroups := 0
	for _, g := range fcg.GroupedChunks {
		sumGroups += g.TotalTokens
	}
	if fcg.FinalTokenCount != sumGroups {
		t.Fatalf("final token count %d != sum of group totals %d", fcg.FinalTokenCount, sumGroups)
	}
}

func TestChunkerDeterminism(t *testing.T) {
	c := newTestChunker(Config{
		MaxTokensPerChunk: 80,
		MaxTokensPerGroup: 200,
		MaxContextTokens:  40,
		ContextItemLimit:  15,
	})
	code := repeatLines(100, 7)

	a, err := c.ChunkFile(code, "file.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	b, err := c.ChunkFile(code, "file.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("chunker output is not deterministic")
	}
}

func TestGroupsOrderedByStartLine(t *testing.T) {
	c := newTestChunker(Config{
		MaxTokensPerChunk: 60,
		MaxTokensPerGroup: 150,
		MaxContextTokens:  40,
		ContextItemLimit:  15,
	})
	code := repeatLines(80, 6)
	fcg, err := c.ChunkFile(code, "file.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	lastEnd := 0
	for _, g := range fcg.GroupedChunks {
		if g.StartLine <= lastEnd {
			t.Fatalf("group %d starts at %d, before previous end %d", g.ID, g.StartLine, lastEnd)
		}
		lastEnd = g.EndLine
	}
}

func TestHeaderStartsWithFileBanner(t *testing.T) {
	c := newTestChunker(Config{})
	fcg, err := c.ChunkFile("hello world", "dir/name.txt")
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if !strings.HasPrefix(fcg.ContextHeader, "// File: dir/name.txt") {
		t.Fatalf("unexpected header: %q", fcg.ContextHeader)
	}
}

package service

import (
	"context"
	"errors"

	"github.com/Strob0t/ScoreForge/internal/domain/chunk"
	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/domain/score"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
)

// fakeClient returns canned JSON payloads in order, recording every request.
type fakeClient struct {
	queue    []string
	requests []aiclient.Request
	usage    score.Usage
}

func newFakeClient(payloads ...string) *fakeClient {
	return &fakeClient{
		queue: payloads,
		usage: score.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}

func (f *fakeClient) Chat(_ context.Context, req aiclient.Request) (*aiclient.Response, error) {
	f.requests = append(f.requests, req)
	if len(f.queue) == 0 {
		return nil, errors.New("fake client: queue exhausted")
	}
	content := f.queue[0]
	f.queue = f.queue[1:]
	return &aiclient.Response{Content: content, Usage: f.usage}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

// singleGroupFile builds a batchable FileChunkGroup with the given final
// token count.
func singleGroupFile(path string, finalTokens int) *chunk.FileChunkGroup {
	return &chunk.FileChunkGroup{
		FilePath:        path,
		TotalFileTokens: finalTokens,
		SendStrategy:    chunk.SendSingleGroup,
		FinalTokenCount: finalTokens,
		GroupedChunks: []chunk.Group{{
			ID:           1,
			CombinedText: "// " + path,
			TotalTokens:  finalTokens,
			StartLine:    1,
			EndLine:      10,
		}},
	}
}

// multiGroupFile builds a FileChunkGroup with n sendable groups.
func multiGroupFile(path string, n, tokensPerGroup int) *chunk.FileChunkGroup {
	fcg := &chunk.FileChunkGroup{
		FilePath:        path,
		TotalFileTokens: n * tokensPerGroup,
		SendStrategy:    chunk.SendMultipleGroups,
		FinalTokenCount: n * tokensPerGroup,
	}
	for i := 1; i <= n; i++ {
		fcg.GroupedChunks = append(fcg.GroupedChunks, chunk.Group{
			ID:           i,
			CombinedText: "// group",
			TotalTokens:  tokensPerGroup,
			StartLine:    (i-1)*10 + 1,
			EndLine:      i * 10,
		})
	}
	return fcg
}

func newTestEngine(scoring, review aiclient.Client) *Engine {
	return NewEngine(scoring, review, 1, 5100, 16000, DossierGlobalTopImpact)
}

func testContext() *project.Context {
	return &project.Context{
		ProjectEssence: "a sample project",
		PrimaryDomain:  "web",
		PrimaryStack:   "typescript",
	}
}

func paths(files []*chunk.FileChunkGroup) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FilePath
	}
	return out
}

func indexScored(files []score.ScoredFile) map[string]score.ScoredFile {
	out := make(map[string]score.ScoredFile, len(files))
	for _, f := range files {
		out[f.FilePath] = f
	}
	return out
}

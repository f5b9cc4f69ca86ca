package aiclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/ScoreForge/internal/domain/score"
)

// safeJSONBackoff is the linear backoff step between JSON-chat attempts.
const safeJSONBackoff = 300 * time.Millisecond

// SafeJSONChat requests a JSON-mode completion and decodes the content into T,
// retrying call and parse failures up to maxRetries with linear backoff.
// Usage accumulates across every attempt, including failed ones. ok is false
// after exhaustion; callers treat that as a scoring failure, not an error.
func SafeJSONChat[T any](ctx context.Context, c Client, msgs []Message, maxRetries int) (out *T, usage score.Usage, ok bool) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.Chat(ctx, Request{Messages: msgs, JSONOutput: true})
		if resp != nil {
			usage = usage.Add(resp.Usage)
		}
		if err == nil {
			var v T
			if jsonErr := json.Unmarshal([]byte(stripFences(resp.Content)), &v); jsonErr == nil {
				return &v, usage, true
			}
			slog.WarnContext(ctx, "safe json chat: unparseable payload", "model", c.Model(), "attempt", attempt)
		} else {
			slog.WarnContext(ctx, "safe json chat: call failed", "model", c.Model(), "attempt", attempt, "error", err)
		}

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, usage, false
		case <-time.After(time.Duration(attempt) * safeJSONBackoff):
		}
	}
	return nil, usage, false
}

// stripFences removes a surrounding markdown code fence, which JSON-mode
// models still occasionally emit.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

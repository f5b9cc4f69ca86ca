// Package aiclient defines the universal chat-completion port implemented by
// the provider adapters.
package aiclient

import (
	"context"
	"fmt"

	"github.com/Strob0t/ScoreForge/internal/domain/score"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// Request carries the messages and generation parameters for one call.
type Request struct {
	Messages    []Message
	JSONOutput  bool
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

// Response is the provider-neutral completion result.
type Response struct {
	Content string
	Usage   score.Usage
}

// Client is the chat-completion contract shared by all provider adapters.
type Client interface {
	// Chat executes one completion. Implementations enforce the configured
	// per-call timeout and map failures to TransportError or ProviderError.
	Chat(ctx context.Context, req Request) (*Response, error)

	// Model returns the model identifier this client targets.
	Model() string
}

// TransportError indicates the request never produced a protocol-level
// response (DNS, connect, timeout).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError indicates the provider answered with a protocol-level failure.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

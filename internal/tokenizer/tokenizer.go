// Package tokenizer provides the process-wide token counter used as the sole
// cost metric across chunking, batching, and dossier budgeting.
package tokenizer

import (
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// CountFunc counts tokens in a string. Pipeline components take a CountFunc so
// tests can substitute a deterministic fake.
type CountFunc func(string) int

var (
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
)

// Init builds the process-wide cl100k_base encoder. It is safe to call more
// than once; subsequent calls are no-ops.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	if enc != nil {
		return nil
	}
	e, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	enc = e
	return nil
}

// Close drops the encoder. Count panics after Close until Init is called again.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	enc = nil
}

// Count returns the number of cl100k_base tokens in s. Count("") is 0.
// Counts are deterministic and stable within a process.
func Count(s string) int {
	if s == "" {
		return 0
	}
	mu.Lock()
	e := enc
	mu.Unlock()
	if e == nil {
		panic("tokenizer: Count called before Init")
	}
	return len(e.Encode(s, nil, nil))
}

// Truncate cuts s to at most maxTokens tokens, decoding the truncated token
// slice back to text.
func Truncate(s string, maxTokens int) string {
	mu.Lock()
	e := enc
	mu.Unlock()
	if e == nil {
		panic("tokenizer: Truncate called before Init")
	}
	tokens := e.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	return e.Decode(tokens[:maxTokens])
}

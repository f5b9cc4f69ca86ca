// Package git wraps the git CLI for repository fetching, with a shared
// concurrency limit so simultaneous runs cannot exhaust the host.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent git CLI operations with a weighted semaphore. All
// clone calls across runs go through one shared Pool.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool allowing at most limit concurrent git operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Clone performs a shallow clone of url into destPath, waiting for a pool
// slot first. Returns ctx.Err() if the context ends while waiting.
func (p *Pool) Clone(ctx context.Context, url, destPath string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	if _, err := run(ctx, "", "clone", "--depth", "1", url, destPath); err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// run executes a git command and returns its stdout.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

// Package repo acquires remote repositories into a local cache and enumerates
// their scoreable files.
package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/ScoreForge/internal/domain"
	"github.com/Strob0t/ScoreForge/internal/git"
)

// prunedDirs are never descended into during a walk.
var prunedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
}

// Entry is one file found by a walk.
type Entry struct {
	Rel string `json:"rel"`
	Abs string `json:"abs"`
}

// Metadata describes an acquired repository. It is shared by URL across
// concurrent runs.
type Metadata struct {
	URL       string  `json:"url"`
	Name      string  `json:"name"`
	LocalPath string  `json:"local_path"`
	Files     []Entry `json:"files"`
}

// Acquirer fetches repositories under a cache root, memoizing metadata by URL
// with first-writer-wins semantics.
type Acquirer struct {
	root string
	pool *git.Pool

	mu    sync.Mutex
	cache map[string]*urlEntry
}

type urlEntry struct {
	once sync.Once
	meta *Metadata
	err  error
}

// NewAcquirer creates an Acquirer caching repositories under root.
func NewAcquirer(root string, pool *git.Pool) *Acquirer {
	return &Acquirer{root: root, pool: pool, cache: make(map[string]*urlEntry)}
}

// RepoName derives a repository's basename from its URL.
func RepoName(url string) string {
	name := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Acquire ensures a local checkout of url exists and returns its path.
// An existing checkout is reused; acquisition is idempotent.
func (a *Acquirer) Acquire(ctx context.Context, url string) (string, error) {
	name := RepoName(url)
	if name == "" {
		return "", fmt.Errorf("%w: cannot derive repository name from %q", domain.ErrRepoAcquire, url)
	}

	dest := filepath.Join(a.root, name)
	if _, err := os.Stat(dest); err == nil {
		slog.InfoContext(ctx, "repository reused", "url", url, "path", dest)
		return dest, nil
	}

	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", fmt.Errorf("%w: create cache root: %v", domain.ErrRepoAcquire, err)
	}
	if err := a.pool.Clone(ctx, url, dest); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRepoAcquire, err)
	}
	slog.InfoContext(ctx, "repository cloned", "url", url, "path", dest)
	return dest, nil
}

// Metadata acquires url (once per process) and enumerates its files. The
// first caller populates the entry; concurrent callers for the same URL
// observe the first writer's result.
func (a *Acquirer) Metadata(ctx context.Context, url string) (*Metadata, error) {
	a.mu.Lock()
	entry, ok := a.cache[url]
	if !ok {
		entry = &urlEntry{}
		a.cache[url] = entry
	}
	a.mu.Unlock()

	entry.once.Do(func() {
		path, err := a.Acquire(ctx, url)
		if err != nil {
			entry.err = err
			return
		}
		files, err := Walk(path, false)
		if err != nil {
			entry.err = fmt.Errorf("%w: walk: %v", domain.ErrRepoAcquire, err)
			return
		}
		entry.meta = &Metadata{
			URL:       url,
			Name:      RepoName(url),
			LocalPath: path,
			Files:     files,
		}
	})
	return entry.meta, entry.err
}

// Walk enumerates files under root, pruning version-control, dependency,
// dist, and build directories. Hidden (dot-prefixed) names are excluded
// unless includeHidden is set.
func Walk(root string, includeHidden bool) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if prunedDirs[name] || (!includeHidden && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeHidden && strings.HasPrefix(name, ".") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		entries = append(entries, Entry{Rel: filepath.ToSlash(rel), Abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadmeExcerpt returns up to maxBytes of the repository's README, or ""
// when none exists.
func ReadmeExcerpt(root string, maxBytes int) string {
	matches, _ := filepath.Glob(filepath.Join(root, "README*"))
	if len(matches) == 0 {
		matches, _ = filepath.Glob(filepath.Join(root, "readme*"))
	}
	if len(matches) == 0 {
		return ""
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return ""
	}
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return string(data)
}

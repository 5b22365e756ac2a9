// Package workspacetest provides a Fetcher that serves source trees from memory.
package workspacetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dcm-project/service-orchestrator/internal/workspace"
)

// Fetcher materialises Repos[url] on clone. Unknown urls fail like an
// unreachable remote. Pull re-writes the current content of the repository
// the directory was cloned from and bumps its revision.
type Fetcher struct {
	mu       sync.Mutex
	Repos    map[string]map[string]string
	PullErr  error
	origins  map[string]string
	revision int
}

var _ workspace.Fetcher = (*Fetcher)(nil)

func NewFetcher() *Fetcher {
	return &Fetcher{Repos: map[string]map[string]string{}, origins: map[string]string{}}
}

// AddRepo registers a repository with the given files.
func (f *Fetcher) AddRepo(url string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Repos[url] = files
}

func (f *Fetcher) Clone(_ context.Context, url, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.Repos[url]
	if !ok {
		return "", errors.New("repository not found")
	}
	if err := writeTree(dir, files); err != nil {
		return "", err
	}
	f.origins[dir] = url
	return f.nextRevision(), nil
}

func (f *Fetcher) Pull(_ context.Context, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PullErr != nil {
		return "", f.PullErr
	}
	url, ok := f.origins[dir]
	if !ok {
		return "", fmt.Errorf("%s is not a clone", dir)
	}
	if err := writeTree(dir, f.Repos[url]); err != nil {
		return "", err
	}
	return f.nextRevision(), nil
}

func (f *Fetcher) nextRevision() string {
	f.revision++
	return fmt.Sprintf("rev-%d", f.revision)
}

func writeTree(dir string, files map[string]string) error {
	for name, content := range files {
		target := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

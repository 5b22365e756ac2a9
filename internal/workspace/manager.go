package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dcm-project/service-orchestrator/internal/store/model"
)

// diagnosticsDir holds the output of the last failed build or run of each
// service, outside the workspaces so it never reaches a build context.
// Service ids never start with a dot, so it cannot clash with a workspace.
const diagnosticsDir = ".diagnostics"

var (
	ErrAlreadyExists       = errors.New("workspace already exists")
	ErrSourceFetch         = errors.New("source fetch failed")
	ErrInvalidOverridePath = errors.New("invalid override path")
)

// Workspace is a materialised service directory.
type Workspace struct {
	Path     string
	Revision string
}

// Manager owns the per-service directories under a single root.
type Manager struct {
	root    string
	envFile string
	fetcher Fetcher
}

func NewManager(root, envFile string, fetcher Fetcher) *Manager {
	return &Manager{root: root, envFile: envFile, fetcher: fetcher}
}

func (m *Manager) Path(id string) string {
	return filepath.Join(m.root, id)
}

func (m *Manager) Exists(id string) (bool, error) {
	_, err := os.Stat(m.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Create materialises the workspace for id. Source-backed modes clone the
// locator; otherwise the directory starts empty. A failed clone leaves
// nothing behind.
func (m *Manager) Create(ctx context.Context, id, sourceLocator string, mode model.Mode, files map[string]string) (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, err
	}
	dir := m.Path(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return nil, err
	}

	ws := &Workspace{Path: dir}
	if mode.SourceBacked() && sourceLocator != "" {
		revision, err := m.fetcher.Clone(ctx, sourceLocator, dir)
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceFetch, sourceLocator, err)
		}
		ws.Revision = revision
		slog.Info("fetched source", "service_id", id, "revision", revision)
	}

	if err := m.ApplyOverrides(id, files); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return ws, nil
}

// ApplyOverrides writes files into the workspace, replacing fetched content.
// Paths are confined to the workspace.
func (m *Manager) ApplyOverrides(id string, files map[string]string) error {
	dir := m.Path(id)
	for name, content := range files {
		rel, err := sanitizeOverridePath(name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// CheckOverridePaths reports the first override path that cannot be written.
func CheckOverridePaths(files map[string]string) error {
	for name := range files {
		if _, err := sanitizeOverridePath(name); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeOverridePath(name string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOverridePath, name)
	}
	if first, _, _ := strings.Cut(rel, "/"); first == ".git" {
		return "", fmt.Errorf("%w: %q points into .git", ErrInvalidOverridePath, name)
	}
	return rel, nil
}

// Sync refreshes the source tree of id and returns the new head revision.
func (m *Manager) Sync(ctx context.Context, id string) (string, error) {
	revision, err := m.fetcher.Pull(ctx, m.Path(id))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}
	return revision, nil
}

// Destroy removes the workspace and the diagnostic of id. Removing a missing
// workspace is not an error.
func (m *Manager) Destroy(id string) error {
	if err := os.RemoveAll(m.Path(id)); err != nil {
		return err
	}
	return m.ClearDiagnostic(id)
}

// DiagnosticPath is where the diagnostic of id is kept.
func (m *Manager) DiagnosticPath(id string) string {
	return filepath.Join(m.root, diagnosticsDir, id+".log")
}

func (m *Manager) WriteDiagnostic(id, text string) error {
	p := m.DiagnosticPath(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(text), 0o644)
}

// ReadDiagnostic returns nil when the last run left no diagnostic.
func (m *Manager) ReadDiagnostic(id string) (*string, error) {
	data, err := os.ReadFile(m.DiagnosticPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	text := string(data)
	return &text, nil
}

func (m *Manager) ClearDiagnostic(id string) error {
	err := os.Remove(m.DiagnosticPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// EnvFile returns the env file under the service's workspace root, or ""
// when there is none.
func (m *Manager) EnvFile(id, workspaceRoot string) string {
	if m.envFile == "" {
		return ""
	}
	p := filepath.Join(m.Path(id), workspaceRoot, m.envFile)
	if info, err := os.Stat(p); err != nil || info.IsDir() {
		return ""
	}
	return p
}

// BuildDir is the directory holding the build descriptor of a service.
func (m *Manager) BuildDir(id, workspaceRoot string) string {
	return filepath.Join(m.Path(id), workspaceRoot)
}

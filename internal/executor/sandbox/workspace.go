package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

const workspacePrefix = "tracecode_"

// Workspace is a directory owned by exactly one execution.
type Workspace struct {
	ID  string
	Dir string
}

// WriteSource materializes code verbatim as name inside the workspace.
func (w *Workspace) WriteSource(name, code string) (string, error) {
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceWrite, path, err)
	}
	return path, nil
}

// WorkspaceManager hands out and tears down per-execution directories
// under a common root.
type WorkspaceManager struct {
	root   string
	logger *slog.Logger
}

// NewWorkspaceManager returns a manager rooted at root, or os.TempDir()
// when root is empty.
func NewWorkspaceManager(root string, logger *slog.Logger) *WorkspaceManager {
	if root == "" {
		root = os.TempDir()
	}
	return &WorkspaceManager{root: root, logger: logger}
}

// Root returns the directory workspaces are created under.
func (m *WorkspaceManager) Root() string { return m.root }

// Acquire creates a fresh, uniquely named directory. xid values are unique
// across goroutines and processes, and os.Mkdir fails rather than reusing a
// path that already exists.
func (m *WorkspaceManager) Acquire() (*Workspace, error) {
	id := xid.New().String()
	dir := filepath.Join(m.root, workspacePrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspace, err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Release removes the workspace tree. It is safe to call more than once and
// on a nil workspace. Failures are logged only: by the time Release runs the
// result has already been computed.
func (m *WorkspaceManager) Release(ws *Workspace) {
	if ws == nil || ws.Dir == "" {
		return
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		m.logger.Warn("workspace cleanup failed",
			slog.String("dir", ws.Dir),
			slog.Any("error", err),
		)
	}
}

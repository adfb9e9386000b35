package sandbox

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkspaceManager_AcquireRelease(t *testing.T) {
	root := t.TempDir()
	m := NewWorkspaceManager(root, discardLogger())

	ws, err := m.Acquire()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir), workspacePrefix))
	assert.Equal(t, root, filepath.Dir(ws.Dir))

	info, err := os.Stat(ws.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	path, err := ws.WriteSource("main.py", "print('hi')\n")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))

	m.Release(ws)
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))

	// idempotent
	m.Release(ws)
	m.Release(nil)
	m.Release(&Workspace{})
}

func TestWorkspaceManager_ConcurrentAcquireIsUnique(t *testing.T) {
	m := NewWorkspaceManager(t.TempDir(), discardLogger())

	const n = 64
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := m.Acquire()
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[ws.Dir], "duplicate workspace %s", ws.Dir)
			seen[ws.Dir] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestWorkspaceManager_AcquireFailsOnMissingRoot(t *testing.T) {
	m := NewWorkspaceManager(filepath.Join(t.TempDir(), "does", "not", "exist"), discardLogger())
	_, err := m.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkspace)
	assert.True(t, IsWorkspaceError(err))
}

func TestWorkspaceManager_DefaultRoot(t *testing.T) {
	m := NewWorkspaceManager("", discardLogger())
	assert.Equal(t, os.TempDir(), m.Root())
}

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSandboxCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "base")

	sb, err := NewSandbox(dir)
	require.NoError(t, err)

	info, err := os.Stat(sb.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolvePath(t *testing.T) {
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "movie.mp4", false},
		{"nested path", "a/b/c.mp4", false},
		{"dot segments collapse inside", "a/../b.mp4", false},
		{"escape via dotdot", "../outside.mp4", true},
		{"deep escape", "a/../../outside.mp4", true},
		{"absolute path", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := sb.ResolvePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resolved, sb.BaseDir()))
		})
	}
}

func TestAtomicWriteReader(t *testing.T) {
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sb.AtomicWriteReader("sub/movie.mp4", strings.NewReader("payload")))

	path, err := sb.ResolvePath("sub/movie.mp4")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// No temp file debris left behind.
	entries, err := sb.List("sub")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicPublish(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "staged.mp4")
	require.NoError(t, os.WriteFile(srcPath, []byte("original bytes"), 0640))

	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sb.AtomicPublish(srcPath, "staged.mp4"))

	ok, err := sb.Exists("staged.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	// Source no longer exists after publish.
	_, err = os.Stat(srcPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveAllGuardsBaseDir(t *testing.T) {
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	err = sb.RemoveAll(".")
	require.Error(t, err)

	_, statErr := os.Stat(sb.BaseDir())
	assert.NoError(t, statErr)
}

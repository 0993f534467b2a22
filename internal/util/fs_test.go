package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveAllSafely(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "workspace")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "nested", "a.txt"), []byte("a"), 0644))

	require.NoError(t, RemoveAllSafely(target))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)

	t.Run("Missing path is not an error", func(t *testing.T) {
		assert.NoError(t, RemoveAllSafely(filepath.Join(base, "gone")))
	})
}

func TestDeletedName(t *testing.T) {
	name := DeletedName("/tmp/x", time.Unix(1700000000, 0))
	assert.True(t, strings.HasPrefix(name, "/tmp/x_deleted-1700000000-"))
	assert.Len(t, strings.TrimPrefix(name, "/tmp/x_deleted-1700000000-"), 8)
}

func TestMoveFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "a.zip")
	dst := filepath.Join(base, "plugins", "a", "1-0", "a.zip")
	require.NoError(t, os.WriteFile(src, []byte("zip"), 0644))

	require.NoError(t, MoveFile(src, dst))

	assert.False(t, Exists(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
}

func TestRemoveEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "keep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep", "f"), nil, 0644))

	removed, err := RemoveEmptyDirs(root)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.False(t, Exists(filepath.Join(root, "a")))
	assert.True(t, Exists(filepath.Join(root, "keep", "f")))

	removed, err = RemoveEmptyDirs(filepath.Join(root, "missing"))
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"Nested file", "myplugin/myplugin.php", false},
		{"Parent traversal", "../evil.php", true},
		{"Hidden traversal", "a/../../evil.php", true},
		{"Absolute", "/etc/passwd", true},
		{"Empty", "", true},
		{"Dots in name", "a/..b/c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SafeJoin(base, tt.rel)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureWritableDir(t *testing.T) {
	base := t.TempDir()
	assert.NoError(t, EnsureWritableDir(filepath.Join(base, "new", "dir")))
	assert.True(t, Exists(filepath.Join(base, "new", "dir")))

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, EnsureWritableDir(file))
	assert.Error(t, EnsureWritableDir(""))
}

package analyzer_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eHtmlu/peak-publisher/internal/analyzer"
)

const mainFile = `<?php
/**
 * Plugin Name: My Plugin
 * Version: 1.0.0
 * Requires PHP: 8.1
 * Update URI: https://updates.example.com/myplugin */
`

func TestDetectRoot(t *testing.T) {
	tests := []struct {
		name     string
		fsys     fstest.MapFS
		expected string
	}{
		{"Single folder", fstest.MapFS{"myplugin/myplugin.php": {Data: []byte(mainFile)}}, "myplugin"},
		{"File at root", fstest.MapFS{"myplugin.php": {Data: []byte(mainFile)}}, "."},
		{"Folder and file", fstest.MapFS{"a/x.php": {}, "readme.txt": {}}, "."},
		{"Two folders", fstest.MapFS{"a/x.php": {}, "b/y.php": {}}, "."},
		{"Empty", fstest.MapFS{}, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := analyzer.DetectRoot(tt.fsys)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, root)
		})
	}
}

func TestParseManifest(t *testing.T) {
	m, err := analyzer.ParseManifest(strings.NewReader(mainFile))
	require.NoError(t, err)
	assert.Equal(t, "My Plugin", m.Name)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "8.1", m.RequiresPHP)
	assert.Equal(t, "https://updates.example.com/myplugin", m.UpdateURI)
	assert.Empty(t, m.Author)

	t.Run("Hash comments and CRLF", func(t *testing.T) {
		m, err := analyzer.ParseManifest(strings.NewReader("<?php\r\n# Plugin Name: Other ?>\r\n# Author: Jane\r\n"))
		require.NoError(t, err)
		assert.Equal(t, "Other", m.Name)
		assert.Equal(t, "Jane", m.Author)
	})
}

func TestFindManifest(t *testing.T) {
	fsys := fstest.MapFS{
		"myplugin/helpers.php":        {Data: []byte("<?php // nothing here")},
		"myplugin/myplugin.php":       {Data: []byte(mainFile)},
		"myplugin/readme.txt":         {Data: []byte("Plugin Name: Not PHP")},
		"myplugin/includes/deep.php":  {Data: []byte("<?php /* Plugin Name: Deep */")},
		"other/includes/nested/x.php": {Data: []byte("<?php /* Plugin Name: Nested */")},
	}

	t.Run("Root level only", func(t *testing.T) {
		p, m, err := analyzer.FindManifest(fsys, "myplugin", 0)
		require.NoError(t, err)
		assert.Equal(t, "myplugin/myplugin.php", p)
		assert.Equal(t, "My Plugin", m.Name)
	})

	t.Run("Shallower match wins", func(t *testing.T) {
		p, _, err := analyzer.FindManifest(fsys, "myplugin", 3)
		require.NoError(t, err)
		assert.Equal(t, "myplugin/myplugin.php", p)
	})

	t.Run("Depth bound", func(t *testing.T) {
		p, m, err := analyzer.FindManifest(fsys, "other", 1)
		require.NoError(t, err)
		assert.Empty(t, p)
		assert.Nil(t, m)

		p, m, err = analyzer.FindManifest(fsys, "other", 2)
		require.NoError(t, err)
		assert.Equal(t, "other/includes/nested/x.php", p)
		assert.Equal(t, "Nested", m.Name)
	})
}

func TestSizeAndCount(t *testing.T) {
	fsys := fstest.MapFS{
		"myplugin/myplugin.php":   {Data: []byte("12345")},
		"myplugin/assets/app.js":  {Data: []byte("123")},
		"myplugin/assets/app.css": {Data: []byte("12")},
	}

	size, count, err := analyzer.SizeAndCount(fsys, "myplugin")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.Equal(t, int64(5), count)

	size, count, err = analyzer.SizeAndCount(fsys, "myplugin/myplugin.php")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, int64(1), count)

	_, _, err = analyzer.SizeAndCount(fsys, "missing")
	assert.Error(t, err)
}

func writeTree(t *testing.T, root string, files map[string]string, order []string) {
	t.Helper()
	for _, name := range order {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(files[name]), 0644))
	}
}

func TestContentFingerprint(t *testing.T) {
	files := map[string]string{
		"myplugin/myplugin.php": mainFile,
		"myplugin/a/b.txt":      "b",
		"myplugin/z.txt":        "z",
	}
	first := filepath.Join(t.TempDir(), "first")
	second := filepath.Join(t.TempDir(), "second")
	writeTree(t, first, files, []string{"myplugin/myplugin.php", "myplugin/a/b.txt", "myplugin/z.txt"})
	writeTree(t, second, files, []string{"myplugin/z.txt", "myplugin/a/b.txt", "myplugin/myplugin.php"})

	h1, err := analyzer.ContentFingerprint(os.DirFS(first))
	require.NoError(t, err)
	h2, err := analyzer.ContentFingerprint(os.DirFS(second))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	mapFS := fstest.MapFS{}
	for name, data := range files {
		mapFS[name] = &fstest.MapFile{Data: []byte(data)}
	}
	h3, err := analyzer.ContentFingerprint(mapFS)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	t.Run("Content change", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(second, "myplugin", "z.txt"), []byte("changed"), 0644))
		h, err := analyzer.ContentFingerprint(os.DirFS(second))
		require.NoError(t, err)
		assert.NotEqual(t, h1, h)
	})

	t.Run("Rename", func(t *testing.T) {
		renamed := fstest.MapFS{}
		for name, f := range mapFS {
			renamed[strings.Replace(name, "z.txt", "y.txt", 1)] = f
		}
		h, err := analyzer.ContentFingerprint(renamed)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h)
	})
}

func TestEnsureTopLevelFolder(t *testing.T) {
	t.Run("Wraps a flat tree", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "unpacked")
		writeTree(t, root, map[string]string{"myplugin.php": mainFile, "inc/a.php": "<?php"}, []string{"myplugin.php", "inc/a.php"})

		changed, err := analyzer.EnsureTopLevelFolder(root, "myplugin.php", true)
		require.NoError(t, err)
		assert.True(t, changed)

		top, err := analyzer.DetectRoot(os.DirFS(root))
		require.NoError(t, err)
		assert.Equal(t, "myplugin", top)
		_, err = fs.Stat(os.DirFS(root), "myplugin/inc/a.php")
		assert.NoError(t, err)
	})

	t.Run("Not allowed", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "unpacked")
		writeTree(t, root, map[string]string{"myplugin.php": mainFile}, []string{"myplugin.php"})

		changed, err := analyzer.EnsureTopLevelFolder(root, "myplugin.php", false)
		require.NoError(t, err)
		assert.False(t, changed)
		_, err = os.Stat(filepath.Join(root, "myplugin.php"))
		assert.NoError(t, err)
	})

	t.Run("Already wrapped", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "unpacked")
		writeTree(t, root, map[string]string{"myplugin/myplugin.php": mainFile}, []string{"myplugin/myplugin.php"})

		changed, err := analyzer.EnsureTopLevelFolder(root, "myplugin/myplugin.php", true)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

package testutil

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// PluginHeader returns a minimal plugin main file declaring name and
// version.
func PluginHeader(name, version string) string {
	return "<?php\n/**\n * Plugin Name: " + name + "\n * Version: " + version + "\n */\n"
}

// CreateTestZip writes a zip archive named name into dir. Keys of files
// are entry names; a key ending in "/" creates a directory entry.
func CreateTestZip(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create temp zip file: %v", err)
	}
	defer file.Close()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	zipWriter := zip.NewWriter(file)
	for _, n := range names {
		w, err := zipWriter.Create(n)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", n, err)
		}
		if strings.HasSuffix(n, "/") {
			continue
		}
		if _, err := w.Write([]byte(files[n])); err != nil {
			t.Fatalf("Failed to write entry '%s' in zip: %v", n, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to finish zip: %v", err)
	}
	return filePath
}

// ReadZip returns the entries of a zip archive keyed by name. Directory
// entries map to "".
func ReadZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open zip %s: %v", path, err)
	}
	defer r.Close()

	out := make(map[string]string, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

// WriteTree creates the given files below root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(data), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

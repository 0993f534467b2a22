// Package analyzer inspects an extracted plugin archive: where its root
// folder is, which file carries the plugin header, how big it is, and a
// fingerprint of its content.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eHtmlu/peak-publisher/internal/util"
)

// DetectRoot returns the single top-level directory of fsys, or "." when
// the tree has top-level files or more than one top-level entry.
func DetectRoot(fsys fs.FS) (string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read tree root: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return entries[0].Name(), nil
	}
	return ".", nil
}

// HasTopLevelFolder reports whether the tree is wrapped in exactly one
// folder.
func HasTopLevelFolder(fsys fs.FS) (bool, error) {
	root, err := DetectRoot(fsys)
	if err != nil {
		return false, err
	}
	return root != ".", nil
}

// EnsureTopLevelFolder moves the whole tree under a new folder named
// after the manifest file (extension stripped) when the tree has no
// single top-level folder. It reports whether the tree was changed; with
// allowed == false, or without a manifest to name the folder after, it
// never changes anything.
func EnsureTopLevelFolder(treeRoot, manifestPath string, allowed bool) (bool, error) {
	if !allowed || manifestPath == "" {
		return false, nil
	}
	has, err := HasTopLevelFolder(os.DirFS(treeRoot))
	if err != nil || has {
		return false, err
	}

	base := path.Base(manifestPath)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" || name == "." {
		return false, fmt.Errorf("cannot derive a folder name from %q", manifestPath)
	}

	staging := treeRoot + "-" + util.RandomToken(8)
	if err := os.Rename(treeRoot, staging); err != nil {
		return false, fmt.Errorf("failed to move tree aside: %w", err)
	}
	if err := os.MkdirAll(treeRoot, 0755); err != nil {
		return false, fmt.Errorf("failed to recreate tree root: %w", err)
	}
	if err := os.Rename(staging, filepath.Join(treeRoot, name)); err != nil {
		return false, fmt.Errorf("failed to move tree under %s: %w", name, err)
	}
	return true, nil
}

// SizeAndCount returns the total file size below name and its number of
// entries. A file counts as one entry, a directory as itself plus all of
// its descendants.
func SizeAndCount(fsys fs.FS, name string) (int64, int64, error) {
	var size, count int64
	err := fs.WalkDir(fsys, name, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		count++
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return size, count, nil
}

// ContentFingerprint hashes every entry path below the root of fsys and
// the content of every regular file. The per-entry hashes are sorted
// before they are combined, so identical trees produce the same value
// regardless of traversal order.
func ContentFingerprint(fsys fs.FS) (string, error) {
	var sums []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		sums = append(sums, hashString(p))
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := hashFile(fsys, p)
		if err != nil {
			return err
		}
		sums = append(sums, sum)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint tree: %w", err)
	}

	sort.Strings(sums)
	return hashString(strings.Join(sums, "")), nil
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hashFile(fsys fs.FS, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

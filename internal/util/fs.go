package util

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeletedMarker is inserted into the name of a tree that is about to be
// removed.
const DeletedMarker = "_deleted-"

// RandomToken returns n lowercase hex characters (n <= 32).
func RandomToken(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// DeletedName is the name path is renamed to before it gets removed.
func DeletedName(path string, now time.Time) string {
	return fmt.Sprintf("%s%s%d-%s", path, DeletedMarker, now.Unix(), RandomToken(8))
}

// RemoveAllSafely renames path out of the way and then deletes it
// recursively, so readers never see a half-deleted tree under the
// original name. A path that does not exist is not an error.
func RemoveAllSafely(path string) error {
	trash := DeletedName(path, time.Now())
	if err := os.Rename(path, trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to move %s aside for deletion: %w", path, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return fmt.Errorf("failed to delete %s: %w", trash, err)
	}
	return nil
}

// MoveFile moves src to dst, creating the parent directory of dst.
// When a rename is not possible (different devices) it copies and
// removes the source instead.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, errors.Join(renameErr, err))
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveEmptyDirs deletes every empty directory below root, deepest
// first, and keeps root itself. It returns the number removed.
func RemoveEmptyDirs(root string) (int, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err == nil {
			removed++
		}
	}
	return removed, nil
}

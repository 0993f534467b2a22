// Package archive lists, extracts and builds the zip archives plugins
// are uploaded and distributed as.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/util"
)

// ErrNotZip is returned for files that are not zip archives.
var ErrNotZip = errors.New("not a zip archive")

// Writer builds a zip archive of everything below baseDir. Entry names
// are relative to baseDir.
type Writer interface {
	Name() string
	Write(ctx context.Context, out io.Writer, baseDir string) error
}

// Archiver reads zip archives with mholt/archives and writes them with
// the first Writer that succeeds.
type Archiver struct {
	writers []Writer
	logger  *zap.Logger
}

// New returns an Archiver that writes with mholt/archives and falls back
// to archive/zip.
func New(logger *zap.Logger) *Archiver {
	return NewWithWriters(logger, ArchivesWriter{}, StdlibWriter{})
}

// NewWithWriters returns an Archiver trying writers in order.
func NewWithWriters(logger *zap.Logger, writers ...Writer) *Archiver {
	return &Archiver{writers: writers, logger: logger}
}

func openZip(ctx context.Context, path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	format, _, err := archives.Identify(ctx, filepath.Base(path), f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	if _, ok := format.(archives.Zip); !ok {
		f.Close()
		return nil, fmt.Errorf("%w: detected %s", ErrNotZip, format.Extension())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// List returns the entry names of the zip archive at path.
func (a *Archiver) List(ctx context.Context, path string) ([]string, error) {
	f, err := openZip(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	err = archives.Zip{}.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		names = append(names, info.NameInArchive)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}
	return names, nil
}

// Extract unpacks the zip archive at path into dest. Entries that would
// land outside dest are rejected and symlinks are skipped.
func (a *Archiver) Extract(ctx context.Context, path, dest string) error {
	f, err := openZip(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	err = archives.Zip{}.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		name := strings.TrimSuffix(info.NameInArchive, "/")
		if name == "" {
			return nil
		}
		target, err := util.SafeJoin(dest, name)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0755)
		case info.Mode()&os.ModeSymlink != 0 || info.LinkTarget != "":
			a.logger.Warn("skipping symlink in archive", zap.String("entry", name))
			return nil
		}
		return writeEntry(info, target)
	})
	if err != nil {
		return fmt.Errorf("failed to extract archive: %w", err)
	}
	return nil
}

func writeEntry(info archives.FileInfo, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	src, err := info.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Create writes a zip archive of baseDir to dest and returns the name of
// the writer that produced it. A writer that fails leaves nothing behind
// and the next one is tried.
func (a *Archiver) Create(ctx context.Context, dest, baseDir string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	var errs []error
	for _, w := range a.writers {
		err := writeWith(ctx, w, dest, baseDir)
		if err == nil {
			return w.Name(), nil
		}
		a.logger.Warn("archive writer failed",
			zap.String("writer", w.Name()), zap.String("dest", dest), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
	}
	return "", fmt.Errorf("no archive writer succeeded: %w", errors.Join(errs...))
}

func writeWith(ctx context.Context, w Writer, dest, baseDir string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, out, baseDir); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

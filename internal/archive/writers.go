package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
)

// ArchivesWriter writes archives with mholt/archives.
type ArchivesWriter struct{}

func (ArchivesWriter) Name() string { return "archives" }

func (ArchivesWriter) Write(ctx context.Context, out io.Writer, baseDir string) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return err
	}
	// Each top-level entry is walked recursively under its own name.
	filenames := make(map[string]string, len(entries))
	for _, e := range entries {
		filenames[filepath.Join(baseDir, e.Name())] = e.Name()
	}
	files, err := archives.FilesFromDisk(ctx, nil, filenames)
	if err != nil {
		return err
	}
	return archives.Zip{}.Archive(ctx, out, files)
}

// StdlibWriter writes archives with archive/zip. It is the fallback when
// ArchivesWriter fails.
type StdlibWriter struct{}

func (StdlibWriter) Name() string { return "zip" }

func (StdlibWriter) Write(ctx context.Context, out io.Writer, baseDir string) error {
	zw := zip.NewWriter(out)
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		if d.IsDir() {
			header.Name = name + "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		header.Name = name
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

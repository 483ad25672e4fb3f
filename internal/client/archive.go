package client

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// ArchiveName is the upload name used for a zipped directory.
func ArchiveName(dir string) string {
	return filepath.Base(filepath.Clean(dir)) + ".zip"
}

// WriteZip writes dir as a zip archive to w. Entries are rooted at the
// directory's base name and use forward slashes. Anything that is not a
// regular file or directory is skipped.
func WriteZip(w io.Writer, dir string) error {
	dir = filepath.Clean(dir)
	root := filepath.Base(dir)

	zw := zip.NewWriter(w)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		return addFileToZip(zw, p, path.Join(root, filepath.ToSlash(rel)))
	})
	if err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func addFileToZip(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}
	return nil
}

// UploadDir zips dir on the fly and uploads it as ArchiveName(dir).
func (c *Client) UploadDir(ctx context.Context, dir string) (*UploadResult, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteZip(pw, dir))
	}()
	defer pr.Close()

	return c.Upload(ctx, ArchiveName(dir), "application/zip", pr)
}

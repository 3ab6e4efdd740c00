// Package archive packs and unpacks resource bundles as gzip-compressed tarballs
// holding a single top-level directory.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize caps any single extracted file.
const DefaultMaxFileSize = 16 << 30

var ErrInvalidArchive = errors.New("invalid archive")

// TopLevelDir returns the first path element of the archive's first entry.
func TopLevelDir(tarGzPath string) (string, error) {
	f, err := os.Open(tarGzPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer gzr.Close()

	header, err := tar.NewReader(gzr).Next()
	if err == io.EOF {
		return "", fmt.Errorf("%w: empty archive", ErrInvalidArchive)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	name := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(header.Name)), "./")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return name, nil
}

// Extract unpacks tarGzPath under destDir. Entries escaping destDir are rejected.
func Extract(tarGzPath, destDir string) error {
	return ExtractWithMaxBytes(tarGzPath, destDir, DefaultMaxFileSize)
}

func ExtractWithMaxBytes(tarGzPath, destDir string, maxFileSize int64) error {
	f, err := os.Open(tarGzPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer gzr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read header: %v", ErrInvalidArchive, err)
		}

		cleanName := filepath.Clean(header.Name)
		if filepath.IsAbs(cleanName) || cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: entry escapes destination: %s", ErrInvalidArchive, header.Name)
		}
		target := filepath.Join(destDir, cleanName)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			if header.Size > maxFileSize {
				return fmt.Errorf("%w: file too large: %s", ErrInvalidArchive, header.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			out, err := os.OpenFile(target, os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode)&0o777|0o600)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			if _, err := io.CopyN(out, tr, header.Size); err != nil {
				out.Close()
				return fmt.Errorf("%w: copy %s: %v", ErrInvalidArchive, header.Name, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// links and devices are not part of resource bundles
		}
	}
}

// Pack writes srcDir into outPath with every entry rooted at arcName.
func Pack(srcDir, outPath, arcName string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(outPath)
		}
	}()

	gzw := gzip.NewWriter(out)
	tw := tar.NewWriter(gzw)

	walkErr := filepath.Walk(srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(arcName, rel))
		if !fi.Mode().IsRegular() && !fi.IsDir() {
			return nil
		}
		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = name
		if fi.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

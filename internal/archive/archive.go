// Package archive produces sequential tar.gz archives of source trees
// together with a per-file digest manifest, optionally wrapped in
// OpenSSL-compatible streaming encryption.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// Manifest receives one line per archived file, in sha256sum format.
type Manifest interface {
	Add(digest, path string) error
}

// ManifestWriter adapts an io.Writer into a Manifest.
type ManifestWriter struct {
	W io.Writer
}

// Add writes a "digest  path" line.
func (m ManifestWriter) Add(digest, p string) error {
	_, err := fmt.Fprintf(m.W, "%s  %s\n", digest, p)
	return err
}

// Create archives every source tree into w as tar.gz. Each source is
// placed at the top level of the archive under its own base name; every
// regular file is hashed while being copied and reported to the manifest.
// Symlinks and special files are not archived.
func Create(ctx context.Context, sources []string, w io.Writer, manifest Manifest, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, source := range sources {
		if err := addSource(ctx, tw, source, manifest, log); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalize gzip stream: %w", err)
	}
	return nil
}

func addSource(ctx context.Context, tw *tar.Writer, source string, manifest Manifest, log *zap.Logger) error {
	abs, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("resolve source %q: %w", source, err)
	}
	base := filepath.Base(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat source %q: %w", source, err)
	}
	if !info.IsDir() {
		return addFile(tw, abs, base, info, manifest, log)
	}

	return filepath.WalkDir(abs, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %q: %w", p, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return fmt.Errorf("relativize %q: %w", p, err)
		}
		entryInfo, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", p, err)
		}
		name := path.Join(base, filepath.ToSlash(rel))
		return addFile(tw, p, name, entryInfo, manifest, log)
	})
}

func addFile(tw *tar.Writer, diskPath, archivePath string, info fs.FileInfo, manifest Manifest, log *zap.Logger) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("build tar header for %q: %w", diskPath, err)
	}
	header.Name = archivePath
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %q: %w", archivePath, err)
	}

	f, err := os.Open(diskPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", diskPath, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tw, hasher), f); err != nil {
		return fmt.Errorf("archive %q: %w", diskPath, err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if manifest != nil {
		if err := manifest.Add(digest, archivePath); err != nil {
			return fmt.Errorf("record digest of %q: %w", archivePath, err)
		}
	}
	log.Debug("archived file",
		zap.String("path", archivePath), zap.String("sha256", digest))
	return nil
}

// Extract unpacks a tar.gz stream produced by Create into dest. Paths are
// sanitized so an archive cannot escape the destination directory.
func Extract(ctx context.Context, r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar stream: %w", err)
		}

		name := filepath.FromSlash(path.Clean(header.Name))
		if filepath.IsAbs(name) || name == ".." || len(name) >= 3 && name[:3] == ".."+string(filepath.Separator) {
			return fmt.Errorf("archive entry %q escapes destination", header.Name)
		}
		target := filepath.Join(dest, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %q: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create directory for %q: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(header.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("create file %q: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("extract %q: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %q: %w", target, err)
			}
		default:
			// Link and special entries are never produced by Create.
			continue
		}
	}
}

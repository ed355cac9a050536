package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCreateAndExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "project", "notes.txt"), "some notes")
	writeFile(t, filepath.Join(src, "project", "data", "blob.bin"), "binary data")

	var buf, manifest bytes.Buffer
	err := Create(context.Background(), []string{filepath.Join(src, "project")},
		&buf, ManifestWriter{W: &manifest}, nil)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Extract(context.Background(), bytes.NewReader(buf.Bytes()), dest))

	got, err := os.ReadFile(filepath.Join(dest, "project", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "some notes", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "project", "data", "blob.bin"))
	require.NoError(t, err)
	assert.Equal(t, "binary data", string(got))
}

func TestManifestListsEveryFileWithItsDigest(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "project", "a.txt"), "aaa")
	writeFile(t, filepath.Join(src, "project", "b.txt"), "bbb")

	var buf, manifest bytes.Buffer
	err := Create(context.Background(), []string{filepath.Join(src, "project")},
		&buf, ManifestWriter{W: &manifest}, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(manifest.String()), "\n")
	require.Len(t, lines, 2)

	wantA := sha256.Sum256([]byte("aaa"))
	wantB := sha256.Sum256([]byte("bbb"))
	assert.Contains(t, lines, fmt.Sprintf("%s  project/a.txt", hex.EncodeToString(wantA[:])))
	assert.Contains(t, lines, fmt.Sprintf("%s  project/b.txt", hex.EncodeToString(wantB[:])))
}

func TestCreateAcceptsSingleFileSource(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "single.txt"), "alone")

	var buf bytes.Buffer
	err := Create(context.Background(), []string{filepath.Join(src, "single.txt")}, &buf, nil, nil)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Extract(context.Background(), bytes.NewReader(buf.Bytes()), dest))

	got, err := os.ReadFile(filepath.Join(dest, "single.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alone", string(got))
}

func TestCreateSkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "project", "real.txt"), "real")
	require.NoError(t, os.Symlink(
		filepath.Join(src, "project", "real.txt"),
		filepath.Join(src, "project", "link.txt")))

	var buf, manifest bytes.Buffer
	err := Create(context.Background(), []string{filepath.Join(src, "project")},
		&buf, ManifestWriter{W: &manifest}, nil)
	require.NoError(t, err)

	assert.NotContains(t, manifest.String(), "link.txt")
}

func TestEncryptedArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "project", "secret.txt"), "hidden content")

	key := []byte("opensesame")
	salt := []byte("01234567")

	var buf bytes.Buffer
	enc, err := NewEncryptWriter(&buf, key, salt)
	require.NoError(t, err)
	require.NoError(t, Create(context.Background(), []string{filepath.Join(src, "project")}, enc, nil, nil))
	require.NoError(t, enc.Close())

	dec, err := NewDecryptReader(bytes.NewReader(buf.Bytes()), key)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Extract(context.Background(), dec, dest))

	got, err := os.ReadFile(filepath.Join(dest, "project", "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hidden content", string(got))
}

func TestExtractRejectsEscapingPaths(t *testing.T) {
	// A hand-built archive with a traversal entry must not escape dest.
	var buf bytes.Buffer
	require.NoError(t, buildArchiveWithEntry(&buf, "../escape.txt", "gotcha"))

	dest := t.TempDir()
	err := Extract(context.Background(), bytes.NewReader(buf.Bytes()), dest)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func buildArchiveWithEntry(w io.Writer, name, content string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	header := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.WriteString(tw, content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

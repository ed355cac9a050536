package indexer

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynzrand/yuunagi/internal/storage"
	"github.com/lynzrand/yuunagi/internal/storage/sqlite"
)

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// backdate pushes the mtime of every node under root into the past so a
// fresh scan records index times strictly newer than all mtimes.
func backdate(t *testing.T, root string, when time.Time) {
	t.Helper()
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chtimes(path, when, when)
	}))
}

func TestScanIndexesTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tree", "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "tree", "sub", "b.txt"), "world")

	store := testStore(t)
	ix := New(store)

	sum, err := ix.Scan(context.Background(), root, filepath.Join(root, "tree"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Files)
	assert.Equal(t, int64(2), sum.Dirs)
	assert.Equal(t, int64(10), sum.HashedBytes)

	entry, found, err := store.GetPath(context.Background(), "tree/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	want := sha256.Sum256([]byte("hello"))
	assert.Equal(t, want[:], entry.Hash)
	assert.Equal(t, storage.KindFile, entry.Kind)
	assert.Equal(t, int64(5), entry.Size)

	entry, found, err = store.GetPath(context.Background(), "tree/sub")
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, entry.Hash)
	assert.Equal(t, storage.KindDirectory, entry.Kind)
}

func TestRescanUnchangedTreeHashesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tree", "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "tree", "sub", "b.txt"), "world")
	backdate(t, root, time.Now().Add(-time.Hour))

	store := testStore(t)
	ix := New(store)
	ctx := context.Background()

	_, err := ix.Scan(ctx, root, filepath.Join(root, "tree"))
	require.NoError(t, err)

	first, _, err := store.GetPath(ctx, "tree/a.txt")
	require.NoError(t, err)

	sum, err := ix.Scan(ctx, root, filepath.Join(root, "tree"))
	require.NoError(t, err)
	assert.Zero(t, sum.Files, "no file should be re-hashed")
	assert.Zero(t, sum.HashedBytes)
	assert.Equal(t, int64(2), sum.Skipped)

	second, _, err := store.GetPath(ctx, "tree/a.txt")
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.True(t, second.IndexedAt.Equal(first.IndexedAt),
		"skipped file must keep its original index time")
}

func TestModifiedFileIsRehashedSiblingsAreNot(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(tree, "a.txt"), "hello")
	writeFile(t, filepath.Join(tree, "b.txt"), "world")
	backdate(t, root, time.Now().Add(-time.Hour))

	store := testStore(t)
	ix := New(store)
	ctx := context.Background()

	_, err := ix.Scan(ctx, root, tree)
	require.NoError(t, err)

	oldA, _, err := store.GetPath(ctx, "tree/a.txt")
	require.NoError(t, err)

	// Modify b and bump its mtime and the directory's past the index
	// time, as a real edit through the directory would.
	writeFile(t, filepath.Join(tree, "b.txt"), "WORLD!")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(tree, "b.txt"), future, future))
	require.NoError(t, os.Chtimes(tree, future, future))

	sum, err := ix.Scan(ctx, root, tree)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Files, "only the modified file is re-hashed")
	assert.Equal(t, int64(1), sum.Skipped)

	newA, _, err := store.GetPath(ctx, "tree/a.txt")
	require.NoError(t, err)
	assert.Equal(t, oldA.Hash, newA.Hash)
	assert.True(t, newA.IndexedAt.Equal(oldA.IndexedAt), "sibling entry untouched")

	newB, _, err := store.GetPath(ctx, "tree/b.txt")
	require.NoError(t, err)
	want := sha256.Sum256([]byte("WORLD!"))
	assert.Equal(t, want[:], newB.Hash)
}

func TestQuietDirectorySkipsFilesButVisitsSubdirs(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(tree, "top.txt"), "top")
	writeFile(t, filepath.Join(tree, "sub", "nested.txt"), "nested")
	backdate(t, root, time.Now().Add(-time.Hour))

	store := testStore(t)
	ix := New(store)
	ctx := context.Background()

	_, err := ix.Scan(ctx, root, tree)
	require.NoError(t, err)

	// Change the nested file and mark only the subdirectory as touched.
	// The top directory's mtime stays old, so its file child is trusted,
	// but the subdirectory must still be descended into.
	writeFile(t, filepath.Join(tree, "sub", "nested.txt"), "NESTED2")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(tree, "sub", "nested.txt"), future, future))
	require.NoError(t, os.Chtimes(filepath.Join(tree, "sub"), future, future))

	sum, err := ix.Scan(ctx, root, tree)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Files, "nested file re-hashed despite quiet parent")
	assert.Equal(t, int64(1), sum.Skipped, "top-level file skipped without a store lookup")

	nested, _, err := store.GetPath(ctx, "tree/sub/nested.txt")
	require.NoError(t, err)
	want := sha256.Sum256([]byte("NESTED2"))
	assert.Equal(t, want[:], nested.Hash)
}

func TestSymlinksAreRecordedWithoutHash(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(tree, "target.txt"), "data")
	require.NoError(t, os.Symlink(filepath.Join(tree, "target.txt"), filepath.Join(tree, "link")))

	store := testStore(t)
	ix := New(store)

	sum, err := ix.Scan(context.Background(), root, tree)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Links)

	entry, found, err := store.GetPath(context.Background(), "tree/link")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, storage.KindSoftLink, entry.Kind)
	assert.Nil(t, entry.Hash)
}

func TestCancelledScanKeepsCommittedEntriesAndResumes(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(tree, "a.txt"), "aaa")
	writeFile(t, filepath.Join(tree, "b.txt"), "bbb")
	backdate(t, root, time.Now().Add(-time.Hour))

	store := testStore(t)

	// Cancel after the first file commit.
	ctx, cancel := context.WithCancel(context.Background())
	ix := New(store, WithProgress(&cancelAfterNodes{cancel: cancel, after: 1}))

	_, err := ix.Scan(ctx, root, tree)
	require.ErrorIs(t, err, context.Canceled)

	// The directory must not be marked complete.
	_, found, err := store.GetPath(context.Background(), "tree")
	require.NoError(t, err)
	assert.False(t, found, "interrupted directory is not committed")

	// An identical invocation finishes the job, skipping committed work.
	sum, err := New(store).Scan(context.Background(), root, tree)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Skipped)
	assert.Equal(t, int64(1), sum.Files)

	_, found, err = store.GetPath(context.Background(), "tree")
	require.NoError(t, err)
	assert.True(t, found)
}

// cancelAfterNodes cancels the scan context once a number of nodes
// completed, simulating an operator interrupt at a unit boundary.
type cancelAfterNodes struct {
	cancel context.CancelFunc
	after  int
	count  int
}

func (c *cancelAfterNodes) SetTotals(nodes, bytes int64) {}
func (c *cancelAfterNodes) Bytes(n int64)                {}
func (c *cancelAfterNodes) BeginFile(p string, s int64)  {}
func (c *cancelAfterNodes) EndFile(p string)             {}

func (c *cancelAfterNodes) Node() {
	c.count++
	if c.count >= c.after {
		c.cancel()
	}
}

func TestUnreadableSubtreeIsSkippedNotFatal(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	tree := filepath.Join(root, "tree")
	writeFile(t, filepath.Join(tree, "ok.txt"), "fine")
	locked := filepath.Join(tree, "locked")
	writeFile(t, filepath.Join(locked, "secret.txt"), "nope")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	store := testStore(t)
	sum, err := New(store).Scan(context.Background(), root, tree)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Files)
	assert.Equal(t, int64(1), sum.AccessErrors)

	_, found, err := store.GetPath(context.Background(), "tree/ok.txt")
	require.NoError(t, err)
	assert.True(t, found)
}

package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lynzrand/yuunagi/internal/storage"
)

// chunkSize is the size of the reusable read buffer used while hashing.
const chunkSize = 8 * 1024 * 1024

// Store describes the persistence operations required by the indexer.
type Store interface {
	GetPath(ctx context.Context, path string) (storage.PathEntry, bool, error)
	UpsertPath(ctx context.Context, entry storage.PathEntry) error
}

// Summary reports what a scan did.
type Summary struct {
	// Files, Dirs and Links count entries committed during this scan.
	Files int64
	Dirs  int64
	Links int64
	// Skipped counts files whose cached hash was still valid.
	Skipped int64
	// HashedBytes is the number of bytes actually read and hashed.
	HashedBytes int64
	// AccessErrors counts subtrees abandoned because of filesystem errors.
	AccessErrors int64
}

// Indexer walks filesystem subtrees and maintains the content-addressed
// path index. A file is re-hashed only when its modification time is newer
// than its last successful index pass, so an interrupted scan can be
// resumed by re-running it with the same arguments.
type Indexer struct {
	store    Store
	log      *zap.Logger
	progress Progress

	// buf is reused across files; the indexer is single-threaded.
	buf []byte
}

// Option customizes an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for skip and error reporting.
func WithLogger(log *zap.Logger) Option {
	return func(ix *Indexer) {
		ix.log = log
	}
}

// WithProgress sets the sink that receives scan counters.
func WithProgress(p Progress) Option {
	return func(ix *Indexer) {
		ix.progress = p
	}
}

// New constructs an Indexer backed by the supplied store.
func New(store Store, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    store,
		log:      zap.NewNop(),
		progress: NopProgress{},
		buf:      make([]byte, chunkSize),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Scan indexes the subtree rooted at subtree. Stored paths are made
// relative to relRoot and POSIX-separated. Committed entries survive
// cancellation; a directory's own entry is only committed after every
// child completed, so a later scan re-descends into partially indexed
// directories.
func (ix *Indexer) Scan(ctx context.Context, relRoot, subtree string) (Summary, error) {
	relAbs, err := filepath.Abs(relRoot)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve relative root %q: %w", relRoot, err)
	}
	subtreeAbs, err := filepath.Abs(subtree)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve scan path %q: %w", subtree, err)
	}
	if _, err := os.Lstat(subtreeAbs); err != nil {
		return Summary{}, fmt.Errorf("stat scan path %q: %w", subtree, err)
	}

	if _, nop := ix.progress.(NopProgress); !nop {
		ix.estimate(ctx, subtreeAbs)
	}

	var sum Summary
	err = ix.addPath(ctx, relAbs, subtreeAbs, &sum)
	return sum, err
}

// estimate walks the subtree read-only to give the progress sink totals to
// display against. Errors are ignored; the estimate only has to be rough.
func (ix *Indexer) estimate(ctx context.Context, subtree string) {
	var nodes, bytes int64
	_ = filepath.WalkDir(subtree, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		nodes++
		if entry.Type().IsRegular() {
			if info, infoErr := entry.Info(); infoErr == nil {
				bytes += info.Size()
			}
		}
		return nil
	})
	ix.progress.SetTotals(nodes, bytes)
}

// addPath dispatches a single node by kind.
func (ix *Indexer) addPath(ctx context.Context, relRoot, path string, sum *Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		ix.log.Warn("cannot stat path, skipping subtree",
			zap.String("path", path), zap.Error(err))
		sum.AccessErrors++
		return nil
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return ix.addLink(ctx, relRoot, path, sum)
	case info.IsDir():
		return ix.addDir(ctx, relRoot, path, info, sum)
	case info.Mode().IsRegular():
		return ix.addFile(ctx, relRoot, path, info, sum)
	default:
		// Sockets, devices and other special nodes are not archivable.
		ix.log.Debug("ignoring special file", zap.String("path", path))
		return nil
	}
}

func (ix *Indexer) addFile(ctx context.Context, relRoot, path string, info fs.FileInfo, sum *Summary) error {
	relPath, err := relativePath(relRoot, path)
	if err != nil {
		return err
	}

	existing, found, err := ix.store.GetPath(ctx, relPath)
	if err != nil {
		return err
	}

	// A file with a committed hash is only re-read when it was modified
	// after its last index pass.
	if found && existing.Hash != nil && !info.ModTime().After(existing.IndexedAt) {
		ix.log.Debug("skipping already indexed file", zap.String("path", relPath))
		ix.progress.Bytes(info.Size())
		ix.progress.Node()
		sum.Skipped++
		return nil
	}

	ix.progress.BeginFile(relPath, info.Size())
	defer ix.progress.EndFile(relPath)

	f, err := os.Open(path)
	if err != nil {
		ix.log.Warn("cannot open file", zap.String("path", path), zap.Error(err))
		sum.AccessErrors++
		return nil
	}
	defer f.Close()

	hasher := sha256.New()
	var hashed int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := f.Read(ix.buf)
		if n > 0 {
			hasher.Write(ix.buf[:n])
			hashed += int64(n)
			ix.progress.Bytes(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			ix.log.Warn("read failed mid-file, entry not committed",
				zap.String("path", path), zap.Error(readErr))
			sum.AccessErrors++
			return nil
		}
	}

	entry := storage.PathEntry{
		Path:      relPath,
		Hash:      hasher.Sum(nil),
		Kind:      storage.KindFile,
		Size:      info.Size(),
		IndexedAt: time.Now(),
	}
	if err := ix.store.UpsertPath(ctx, entry); err != nil {
		return err
	}

	ix.progress.Node()
	sum.Files++
	sum.HashedBytes += hashed
	return nil
}

func (ix *Indexer) addDir(ctx context.Context, relRoot, path string, info fs.FileInfo, sum *Summary) error {
	relPath, err := relativePath(relRoot, path)
	if err != nil {
		return err
	}

	existing, found, err := ix.store.GetPath(ctx, relPath)
	if err != nil {
		return err
	}

	// The directory's mtime tracks its child list. Strictly older than the
	// last index pass means no direct child was added, removed or renamed
	// since, so file children can be trusted. Subdirectories are recursed
	// into regardless: their own mtimes are independent, and a quiet
	// parent proves nothing about a nested subtree.
	fullRescan := !found || !info.ModTime().Before(existing.IndexedAt)
	if !fullRescan {
		ix.log.Debug("directory unchanged, skipping file children",
			zap.String("path", relPath))
	}

	children, err := os.ReadDir(path)
	if err != nil {
		ix.log.Warn("cannot read directory, skipping subtree",
			zap.String("path", path), zap.Error(err))
		sum.AccessErrors++
		return nil
	}

	for _, child := range children {
		childPath := filepath.Join(path, child.Name())
		if child.IsDir() || fullRescan {
			if err := ix.addPath(ctx, relRoot, childPath, sum); err != nil {
				return err
			}
			continue
		}
		// Trusted file child: advance progress from its cached on-disk
		// size without touching the store.
		if childInfo, infoErr := child.Info(); infoErr == nil {
			ix.progress.Bytes(childInfo.Size())
		}
		ix.progress.Node()
		sum.Skipped++
	}

	// Committed only after every child resolved (post-order), so an
	// interrupted scan never records this directory as complete.
	entry := storage.PathEntry{
		Path:      relPath,
		Hash:      nil,
		Kind:      storage.KindDirectory,
		Size:      0,
		IndexedAt: time.Now(),
	}
	if err := ix.store.UpsertPath(ctx, entry); err != nil {
		return err
	}

	ix.progress.Node()
	sum.Dirs++
	return nil
}

func (ix *Indexer) addLink(ctx context.Context, relRoot, path string, sum *Summary) error {
	relPath, err := relativePath(relRoot, path)
	if err != nil {
		return err
	}

	entry := storage.PathEntry{
		Path:      relPath,
		Hash:      nil,
		Kind:      storage.KindSoftLink,
		Size:      0,
		IndexedAt: time.Now(),
	}
	if err := ix.store.UpsertPath(ctx, entry); err != nil {
		return err
	}

	ix.progress.Node()
	sum.Links++
	return nil
}

func relativePath(relRoot, path string) (string, error) {
	rel, err := filepath.Rel(relRoot, path)
	if err != nil {
		return "", fmt.Errorf("relativize %q against %q: %w", path, relRoot, err)
	}
	return filepath.ToSlash(rel), nil
}

package indexer

// Progress receives monotonically increasing counters from a scan. The
// indexer never blocks on a sink; implementations must return quickly.
//
// SetTotals is called once after the estimation walk with the expected
// node and byte counts. Node and Bytes advance the corresponding counters.
// BeginFile and EndFile bracket the hashing of a single file so a display
// can show per-file progress.
type Progress interface {
	SetTotals(nodes, bytes int64)
	Node()
	Bytes(n int64)
	BeginFile(path string, size int64)
	EndFile(path string)
}

// NopProgress discards all progress updates. Scans configured with it also
// skip the estimation walk, since totals are only used to size a display.
type NopProgress struct{}

// SetTotals implements Progress.
func (NopProgress) SetTotals(nodes, bytes int64) {}

// Node implements Progress.
func (NopProgress) Node() {}

// Bytes implements Progress.
func (NopProgress) Bytes(n int64) {}

// BeginFile implements Progress.
func (NopProgress) BeginFile(path string, size int64) {}

// EndFile implements Progress.
func (NopProgress) EndFile(path string) {}

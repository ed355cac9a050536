package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
)

// consoleProgress renders scan counters as a single rewritten terminal
// line. It satisfies indexer.Progress and never blocks the scan: updates
// are throttled by wall clock, not by terminal speed.
type consoleProgress struct {
	w io.Writer

	totalNodes int64
	totalBytes int64
	nodes      int64
	bytes      int64
	current    string

	lastDraw time.Time
}

func newConsoleProgress(w io.Writer) *consoleProgress {
	return &consoleProgress{w: w}
}

func (c *consoleProgress) SetTotals(nodes, bytes int64) {
	c.totalNodes = nodes
	c.totalBytes = bytes
	c.draw(true)
}

func (c *consoleProgress) Node() {
	c.nodes++
	c.draw(false)
}

func (c *consoleProgress) Bytes(n int64) {
	c.bytes += n
	c.draw(false)
}

func (c *consoleProgress) BeginFile(path string, size int64) {
	c.current = path
	c.draw(true)
}

func (c *consoleProgress) EndFile(path string) {
	c.current = ""
}

// Finish clears the progress line.
func (c *consoleProgress) Finish() {
	fmt.Fprintf(c.w, "\r%-100s\r", "")
}

func (c *consoleProgress) draw(force bool) {
	now := time.Now()
	if !force && now.Sub(c.lastDraw) < 150*time.Millisecond {
		return
	}
	c.lastDraw = now

	line := fmt.Sprintf("%d/%d nodes  %s/%s",
		c.nodes, c.totalNodes,
		units.BytesSize(float64(c.bytes)), units.BytesSize(float64(c.totalBytes)))
	if c.current != "" {
		name := c.current
		if len(name) > 48 {
			name = "..." + name[len(name)-45:]
		}
		line += "  " + name
	}
	fmt.Fprintf(c.w, "\r%-100s", line)
}

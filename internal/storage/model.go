package storage

import "time"

// EntryKind classifies an indexed filesystem node. The numeric values are
// part of the stored representation and must not be reordered.
type EntryKind int

const (
	// KindFile is a regular file carrying a content hash.
	KindFile EntryKind = 0
	// KindDirectory is a directory; directories carry no hash.
	KindDirectory EntryKind = 1
	// KindSoftLink is a symbolic link, recorded but never followed.
	KindSoftLink EntryKind = 2
	// KindHardLink is reserved for hard links; the walker does not
	// currently emit it.
	KindHardLink EntryKind = 3
)

// String returns the human-readable name of the kind.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	case KindSoftLink:
		return "soft_link"
	case KindHardLink:
		return "hard_link"
	default:
		return "unknown"
	}
}

// PathEntry represents one indexed filesystem node.
type PathEntry struct {
	// Path is the POSIX-style path relative to the chosen logical root.
	Path string
	// Hash is the whole-file SHA-256 digest; nil for directories and links,
	// and nil for files that have never completed an index pass.
	Hash []byte
	Kind EntryKind
	// Size is the byte length for files and zero otherwise.
	Size int64
	// IndexedAt is the time of the last successful (re)index of this entry.
	IndexedAt time.Time
}

// Category is an administrative label applied to groups of similar content.
type Category struct {
	ID          string
	Description string
}

// PathGroup is a named collection of paths sharing a prefix, the unit of
// distribution packing. Prefixes are not required to be disjoint; sizes of
// overlapping groups are double-counted.
type PathGroup struct {
	Prefix string
	// Category is empty when the group is uncategorized.
	Category string
	// Compressible marks groups whose contents compress well. The flag is
	// set by an operator or an external sampling tool.
	Compressible bool
}

// GroupSize is the aggregated byte size of every indexed path owned by a
// group prefix.
type GroupSize struct {
	Prefix string
	Size   int64
}

// Assignment maps a path group onto a target volume.
type Assignment struct {
	Group  string
	Volume string
}

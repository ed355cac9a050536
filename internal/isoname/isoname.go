// Package isoname allocates 8.3 short names for files placed on legacy
// ISO 9660 filesystems. The disc-image builder requests one name per
// directory entry; allocation state is scoped to a single directory.
package isoname

import (
	"hash/fnv"
	"math/rand"
	"strings"
)

const base36Digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// invalidChars are replaced with underscores before allocation.
const invalidChars = " :*?<>|+='\"[]"

// Provider hands out unique 8.3 names within one directory.
type Provider struct {
	taken        map[string]struct{}
	prefixCounts map[string]int
}

// NewProvider creates an empty allocator.
func NewProvider() *Provider {
	return &Provider{
		taken:        make(map[string]struct{}),
		prefixCounts: make(map[string]int),
	}
}

// Name allocates an 8.3 name for the given filename. The name must be a
// pure filename without path separators. Allocation order:
//
//  1. the sanitized, uppercased name itself, when it already fits 8.3;
//  2. a 5-letter prefix with a "~N" collision suffix (N up to 4);
//  3. a 2-letter prefix plus a 4-digit base36 hash of the original name,
//     again with a "~N" suffix (N up to 10);
//  4. a fully random 8-character name.
func (p *Provider) Name(name string, isDir bool) string {
	name = sanitize(name, isDir)
	stem, ext := splitExt(name)

	if len(stem) <= 8 && len(ext) <= 3 {
		candidate := strings.ToUpper(name)
		if _, ok := p.taken[candidate]; !ok {
			p.taken[candidate] = struct{}{}
			return candidate
		}
	}

	ext83 := ""
	if ext != "" {
		ext83 = "." + truncate(strings.ToUpper(ext), 3)
	}
	stem83 := truncate(strings.ToUpper(stem), 8)

	if name := p.suffixed(truncate(stem83, 5), ext83, 4); name != "" {
		return name
	}

	// Too many neighbors share the first letters; fall back to a hashed
	// middle section.
	hashed := truncate(stem83, 2) + base36(hashName(name), 4)
	if name := p.suffixed(hashed, ext83, 10); name != "" {
		return name
	}

	// Last resort: random names until one is free.
	for {
		candidate := base36(rand.Uint32(), 8) + ext83
		if _, ok := p.taken[candidate]; !ok {
			p.taken[candidate] = struct{}{}
			return candidate
		}
	}
}

// suffixed tries to allocate prefix~N, incrementing N up to limit.
func (p *Provider) suffixed(prefix, ext string, limit int) string {
	count, seen := p.prefixCounts[prefix]
	if seen {
		if count >= limit {
			return ""
		}
		count++
	}
	p.prefixCounts[prefix] = count

	name := prefix + "~" + base36(uint32(count), 1) + ext
	p.taken[name] = struct{}{}
	return name
}

func sanitize(name string, isDir bool) string {
	name = strings.Trim(name, ".")
	for _, c := range invalidChars {
		name = strings.ReplaceAll(name, string(c), "_")
	}
	if isDir {
		// Directories cannot carry extensions.
		name = strings.ReplaceAll(name, ".", "_")
	}
	return name
}

// splitExt separates the extension (without its dot) from the stem.
func splitExt(name string) (string, string) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name, ""
	}
	return name[:dot], name[dot+1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// base36 renders n as base36 digits, least significant first, padded to
// the requested width.
func base36(n uint32, digits int) string {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		b.WriteByte(base36Digits[n%36])
		n /= 36
	}
	return b.String()
}

func hashName(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

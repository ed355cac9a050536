// Package packer assigns size-annotated items to fixed-capacity volumes
// using a single-pass first-fit heuristic with a bounded reorder buffer.
package packer

// MaxDelay is the capacity of the reorder buffer. Items that miss the
// current volume wait here, in order, for a later volume.
const MaxDelay = 5

// Item is one packable unit, identified by an opaque id.
type Item struct {
	ID   string
	Size int64
}

// Volume is one finalized target container.
type Volume struct {
	Index int
	Used  int64
	Items []Item
}

// Result is the outcome of a packing run.
type Result struct {
	Volumes []Volume
	// Overflows counts the times the reorder buffer was full and a
	// non-fitting item forced the current volume to close early. The item
	// itself is carried over to the next volume, never dropped.
	Overflows int
}

// Pack consumes items from next in order and distributes them over
// sequentially numbered volumes of the given capacity.
//
// Per volume the reorder buffer is drained head-first while its head still
// fits, then fresh items are pulled from the stream. An item that does not
// fit is buffered for a later volume; when the buffer is full the item is
// held back and becomes the first candidate for the next volume. An item
// placed into an empty volume is always accepted, so an item larger than
// the capacity occupies a volume of its own rather than blocking progress.
//
// Every returned volume except single-item ones satisfies Used <= capacity.
func Pack(next func() (Item, bool), capacity int64) Result {
	var (
		res     Result
		delayed []Item
		carried *Item
	)

	for volIdx := 0; ; volIdx++ {
		vol := Volume{Index: volIdx}

		place := func(item Item) {
			vol.Items = append(vol.Items, item)
			vol.Used += item.Size
		}

		// A held-back item is what closed the previous volume; it gets
		// first claim on this one.
		if carried != nil {
			place(*carried)
			carried = nil
		}

		for len(delayed) > 0 {
			head := delayed[0]
			if vol.Used+head.Size <= capacity || len(vol.Items) == 0 {
				place(head)
				delayed = delayed[1:]
				continue
			}
			break
		}

		for vol.Used < capacity {
			item, ok := next()
			if !ok {
				break
			}
			if vol.Used+item.Size <= capacity || len(vol.Items) == 0 {
				place(item)
				continue
			}
			if len(delayed) < MaxDelay {
				delayed = append(delayed, item)
				continue
			}
			held := item
			carried = &held
			res.Overflows++
			break
		}

		// An empty volume means the buffer is drained and the stream is
		// exhausted.
		if len(vol.Items) == 0 {
			break
		}

		res.Volumes = append(res.Volumes, vol)
	}

	return res
}

// FromSlice adapts a slice of items into the stream form Pack consumes.
func FromSlice(items []Item) func() (Item, bool) {
	i := 0
	return func() (Item, bool) {
		if i >= len(items) {
			return Item{}, false
		}
		item := items[i]
		i++
		return item, true
	}
}

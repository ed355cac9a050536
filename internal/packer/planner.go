package packer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lynzrand/yuunagi/internal/storage"
)

// DefaultCategoryLabel names volumes of a packing run that spans every
// category.
const DefaultCategoryLabel = "all"

// PlanStore describes the persistence operations required by the planner.
type PlanStore interface {
	GroupSizes(ctx context.Context, category string, unassignedOnly bool) ([]storage.GroupSize, error)
	AssignGroup(ctx context.Context, group, volume string) error
	ClearAssignments(ctx context.Context, volumePattern string) error
	Volumes(ctx context.Context, pattern string) ([]string, error)
}

// PlanOptions configures a packing run.
type PlanOptions struct {
	// Category restricts the run to groups in one category. Empty means
	// all groups.
	Category string
	// Capacity is the volume size in bytes.
	Capacity int64
	// Redo clears this category's prior assignments and re-plans from
	// volume zero. Without it, already assigned groups keep their volumes
	// and numbering continues where the last run stopped.
	Redo bool
}

// Planner runs the packing heuristic over aggregated group sizes from the
// store and records the resulting assignments, one volume at a time, so
// that a failure mid-run leaves every earlier volume durable.
type Planner struct {
	store PlanStore
	log   *zap.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(store PlanStore, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{store: store, log: log}
}

// Plan packs unassigned groups onto volumes named "<category>_vol<N>" and
// writes the assignments back to the store.
func (p *Planner) Plan(ctx context.Context, opts PlanOptions) (Result, error) {
	if opts.Capacity <= 0 {
		return Result{}, fmt.Errorf("volume capacity must be positive, got %d", opts.Capacity)
	}

	label := opts.Category
	if label == "" {
		label = DefaultCategoryLabel
	}

	start := 0
	if opts.Redo {
		if err := p.store.ClearAssignments(ctx, label+"_vol%"); err != nil {
			return Result{}, err
		}
	} else {
		next, err := p.nextVolumeIndex(ctx, label)
		if err != nil {
			return Result{}, err
		}
		start = next
	}

	sizes, err := p.store.GroupSizes(ctx, opts.Category, true)
	if err != nil {
		return Result{}, err
	}

	items := make([]Item, 0, len(sizes))
	for _, size := range sizes {
		items = append(items, Item{ID: size.Prefix, Size: size.Size})
	}

	res := Pack(FromSlice(items), opts.Capacity)
	if res.Overflows > 0 {
		p.log.Warn("reorder buffer overflowed; some volumes were closed early",
			zap.Int("times", res.Overflows))
	}

	for i := range res.Volumes {
		vol := &res.Volumes[i]
		vol.Index += start
		name := VolumeName(label, vol.Index)
		for _, item := range vol.Items {
			if err := p.store.AssignGroup(ctx, item.ID, name); err != nil {
				return res, fmt.Errorf("finalize volume %s: %w", name, err)
			}
		}
		p.log.Info("volume finalized",
			zap.String("volume", name),
			zap.Int("groups", len(vol.Items)),
			zap.Int64("used", vol.Used))
	}

	return res, nil
}

// VolumeName renders the storage name of a volume.
func VolumeName(label string, index int) string {
	return fmt.Sprintf("%s_vol%d", label, index)
}

// nextVolumeIndex continues numbering after the highest volume already
// recorded for the category.
func (p *Planner) nextVolumeIndex(ctx context.Context, label string) (int, error) {
	existing, err := p.store.Volumes(ctx, label+"_vol%")
	if err != nil {
		return 0, err
	}

	next := 0
	prefix := label + "_vol"
	for _, name := range existing {
		suffix := strings.TrimPrefix(name, prefix)
		n, convErr := strconv.Atoi(suffix)
		if convErr != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

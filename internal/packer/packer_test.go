package packer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestPackDelayedItemFillsLaterVolume(t *testing.T) {
	items := []Item{
		{ID: "a", Size: 30},
		{ID: "b", Size: 80},
		{ID: "c", Size: 20},
		{ID: "d", Size: 10},
		{ID: "e", Size: 90},
	}

	res := Pack(FromSlice(items), 100)

	require.Len(t, res.Volumes, 3)
	assert.Equal(t, []string{"a", "c", "d"}, ids(res.Volumes[0].Items))
	assert.Equal(t, int64(60), res.Volumes[0].Used)
	assert.Equal(t, []string{"b"}, ids(res.Volumes[1].Items))
	assert.Equal(t, []string{"e"}, ids(res.Volumes[2].Items))
	assert.Zero(t, res.Overflows)

	seen := make(map[string]int)
	for _, vol := range res.Volumes {
		assert.True(t, vol.Used <= 100 || len(vol.Items) == 1)
		for _, item := range vol.Items {
			seen[item.ID]++
		}
	}
	for _, item := range items {
		assert.Equal(t, 1, seen[item.ID], "item %s placed exactly once", item.ID)
	}
}

func TestPackOversizedItemGetsExclusiveVolume(t *testing.T) {
	res := Pack(FromSlice([]Item{{ID: "big", Size: 150}}), 100)

	require.Len(t, res.Volumes, 1)
	assert.Equal(t, []string{"big"}, ids(res.Volumes[0].Items))
	assert.Equal(t, int64(150), res.Volumes[0].Used)
}

func TestPackOversizedAmongRegularItems(t *testing.T) {
	items := []Item{
		{ID: "a", Size: 60},
		{ID: "big", Size: 150},
		{ID: "b", Size: 40},
	}

	res := Pack(FromSlice(items), 100)

	require.Len(t, res.Volumes, 2)
	assert.Equal(t, []string{"a", "b"}, ids(res.Volumes[0].Items))
	assert.Equal(t, []string{"big"}, ids(res.Volumes[1].Items))
}

func TestPackFullReorderBufferCarriesInsteadOfDropping(t *testing.T) {
	items := []Item{{ID: "small", Size: 10}}
	for i := 0; i < 6; i++ {
		items = append(items, Item{ID: string(rune('p'+i)), Size: 95})
	}
	items = append(items, Item{ID: "tail", Size: 20})

	res := Pack(FromSlice(items), 100)

	assert.Positive(t, res.Overflows)

	seen := make(map[string]int)
	for _, vol := range res.Volumes {
		assert.True(t, vol.Used <= 100 || len(vol.Items) == 1,
			"volume %d over capacity with %d items", vol.Index, len(vol.Items))
		for _, item := range vol.Items {
			seen[item.ID]++
		}
	}
	require.Len(t, seen, len(items))
	for _, item := range items {
		assert.Equal(t, 1, seen[item.ID], "item %s placed exactly once", item.ID)
	}
}

func TestPackEmptyStream(t *testing.T) {
	res := Pack(FromSlice(nil), 100)
	assert.Empty(t, res.Volumes)
	assert.Zero(t, res.Overflows)
}

func TestPackVolumeIndicesAreSequential(t *testing.T) {
	items := []Item{
		{ID: "a", Size: 100},
		{ID: "b", Size: 100},
		{ID: "c", Size: 100},
	}

	res := Pack(FromSlice(items), 100)

	require.Len(t, res.Volumes, 3)
	for i, vol := range res.Volumes {
		assert.Equal(t, i, vol.Index)
	}
}

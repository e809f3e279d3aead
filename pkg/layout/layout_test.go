package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/layout"
)

func TestAllocate_PageAndSlotCounts(t *testing.T) {
	cases := []struct {
		batchSize, pages, lastPageSlots int
	}{
		{1, 1, 1},
		{6, 1, 6},
		{7, 2, 1},
		{12, 2, 6},
		{13, 3, 1},
	}
	for _, c := range cases {
		l := layout.New()
		l.Allocate(c.batchSize)

		require.Len(t, l.Pages(), c.pages, "pages for batch of %d", c.batchSize)
		assert.Equal(t, c.batchSize, l.Size())
		assert.Len(t, l.Pages()[c.pages-1].Slots, c.lastPageSlots,
			"final page of batch %d leaves stretch space, not phantom slots", c.batchSize)

		total := 0
		for _, p := range l.Pages() {
			total += len(p.Slots)
		}
		assert.Equal(t, c.batchSize, total)
	}
}

func TestAllocate_RowMajorOrder(t *testing.T) {
	l := layout.New(layout.WithSlotsPerPage(6), layout.WithColumns(3))
	l.Allocate(6)

	slots := l.Slots()
	require.Len(t, slots, 6)
	assert.Equal(t, 0, slots[0].Row)
	assert.Equal(t, 0, slots[0].Col)
	assert.Equal(t, 0, slots[2].Row)
	assert.Equal(t, 2, slots[2].Col)
	assert.Equal(t, 1, slots[3].Row)
	assert.Equal(t, 0, slots[3].Col)
}

func TestReplaceNext_FIFOBySlot(t *testing.T) {
	l := layout.New()
	l.Allocate(3)

	// Jobs settle out of submission order; slots fill in slot order anyway.
	third := &domain.Artifact{ID: "job-3"}
	first := &domain.Artifact{ID: "job-1"}

	require.True(t, l.ReplaceNext(third))
	require.True(t, l.ReplaceNext(first))

	slots := l.Slots()
	assert.Equal(t, "job-3", slots[0].Artifact.ID)
	assert.Equal(t, "job-1", slots[1].Artifact.ID)
	assert.False(t, slots[2].Occupied())
	assert.Equal(t, 2, l.Occupied())
}

func TestReplaceNext_Exhaustion(t *testing.T) {
	l := layout.New()
	l.Allocate(2)

	require.True(t, l.ReplaceNext(&domain.Artifact{ID: "a"}))
	require.True(t, l.ReplaceNext(&domain.Artifact{ID: "b"}))
	assert.False(t, l.ReplaceNext(&domain.Artifact{ID: "c"}))
}

func TestClear(t *testing.T) {
	l := layout.New()
	l.Allocate(4)
	require.True(t, l.ReplaceNext(&domain.Artifact{ID: "a"}))

	l.Clear()
	assert.Empty(t, l.Pages())
	assert.Zero(t, l.Size())
	assert.False(t, l.ReplaceNext(&domain.Artifact{ID: "b"}))
}

func TestAllocate_ZeroBatch(t *testing.T) {
	l := layout.New()
	l.Allocate(0)
	assert.Empty(t, l.Pages())
	assert.False(t, l.ReplaceNext(&domain.Artifact{ID: "a"}))
}

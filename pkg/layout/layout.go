// Package layout manages the pre-allocated, paginated placeholder grid a
// batch progressively fills as jobs settle.
package layout

import (
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// DefaultSlotsPerPage is a 2x3 page grid.
const DefaultSlotsPerPage = 6

// Page is one page of placement slots, row-major.
type Page struct {
	Index int
	Slots []*domain.PlacementSlot
}

// Layout is the paginated grid. All slots are allocated up front, before
// any job completes, establishing one stable enumeration order.
//
// Replacement is FIFO-by-slot, not FIFO-by-submission: whichever job
// settles first fills slot 0, irrespective of which job it was. A slow job
// does not reserve "its" slot.
//
// Layout is not safe for concurrent use; the orchestrator touches it only
// from the batch control goroutine.
type Layout struct {
	slotsPerPage int
	cols         int
	pages        []*Page
	// next is the index of the first slot that may still hold a
	// placeholder. Slots never revert, so it only moves forward.
	next int
	size int
}

// Option configures a Layout.
type Option func(*Layout)

// WithSlotsPerPage overrides the page capacity. Values below 1 are ignored.
func WithSlotsPerPage(n int) Option {
	return func(l *Layout) {
		if n >= 1 {
			l.slotsPerPage = n
		}
	}
}

// WithColumns overrides the number of columns per page row.
func WithColumns(n int) Option {
	return func(l *Layout) {
		if n >= 1 {
			l.cols = n
		}
	}
}

// New creates an empty layout. Call Allocate before use.
func New(opts ...Option) *Layout {
	l := &Layout{
		slotsPerPage: DefaultSlotsPerPage,
		cols:         3,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allocate pre-creates ceil(batchSize/slotsPerPage) pages holding exactly
// batchSize placeholder slots in row-major order. A partially filled final
// page simply has fewer slots; there are no phantom placeholders.
func (l *Layout) Allocate(batchSize int) {
	l.pages = nil
	l.next = 0
	l.size = 0
	if batchSize <= 0 {
		return
	}

	pageCount := (batchSize + l.slotsPerPage - 1) / l.slotsPerPage
	remaining := batchSize
	for p := 0; p < pageCount; p++ {
		n := l.slotsPerPage
		if remaining < n {
			n = remaining
		}
		page := &Page{Index: p, Slots: make([]*domain.PlacementSlot, 0, n)}
		for i := 0; i < n; i++ {
			page.Slots = append(page.Slots, &domain.PlacementSlot{
				Page: p,
				Row:  i / l.cols,
				Col:  i % l.cols,
			})
		}
		l.pages = append(l.pages, page)
		remaining -= n
	}
	l.size = batchSize
}

// ReplaceNext swaps the first remaining placeholder for the artifact.
// Returns false when every slot is already occupied.
func (l *Layout) ReplaceNext(a *domain.Artifact) bool {
	for ; l.next < l.size; l.next++ {
		slot := l.slot(l.next)
		if !slot.Occupied() {
			slot.Artifact = a
			l.next++
			return true
		}
	}
	return false
}

func (l *Layout) slot(i int) *domain.PlacementSlot {
	return l.pages[i/l.slotsPerPage].Slots[i%l.slotsPerPage]
}

// Pages returns the allocated pages.
func (l *Layout) Pages() []*Page { return l.pages }

// Size returns the number of allocated slots.
func (l *Layout) Size() int { return l.size }

// Occupied counts slots whose placeholder has been replaced.
func (l *Layout) Occupied() int {
	n := 0
	for _, p := range l.pages {
		for _, s := range p.Slots {
			if s.Occupied() {
				n++
			}
		}
	}
	return n
}

// Slots enumerates all slots in replacement order.
func (l *Layout) Slots() []*domain.PlacementSlot {
	out := make([]*domain.PlacementSlot, 0, l.size)
	for _, p := range l.pages {
		out = append(out, p.Slots...)
	}
	return out
}

// Clear releases all pages and their slots.
func (l *Layout) Clear() {
	l.pages = nil
	l.next = 0
	l.size = 0
}

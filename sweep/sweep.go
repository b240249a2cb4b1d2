// Package sweep implements the per-page slot walk that reclaims unmarked
// in-use slots and repurposes or retires emptied pages.
package sweep

import (
	"github.com/congc/congc/arena"
	"github.com/congc/congc/page"
	"github.com/congc/congc/pageindex"
)

// Sweep walks every class list in book with a pointer-to-pointer cursor,
// reclaiming unreachable slots, clearing survivors' mark bits, and either
// caching or destroying pages that end up fully empty, then sweeps the
// oversize list the same way. a and idx are only consulted when a page is
// fully destroyed (freeMemory mode).
func Sweep(book *page.Book, idx *pageindex.Index, a arena.Arena, freeMemory bool) error {
	for class := range book.ClassHeads {
		cursor := &book.ClassHeads[class]
		for *cursor != nil {
			p := *cursor
			sweepPage(p)

			if p.InUseCount != 0 {
				cursor = &p.Next
				continue
			}

			*cursor = p.Next
			p.Next = nil

			if freeMemory {
				if err := destroyPage(p, idx, a); err != nil {
					return err
				}
				book.PageCount--
			} else {
				book.PushEmpty(p)
			}
		}
	}
	sweepOversize(book)
	return nil
}

// sweepPage reclaims unmarked in-use slots and clears mark bits on
// survivors. Slots that were already free at mark time are left untouched
// -- they are never reclaimed twice.
func sweepPage(p *page.Page) {
	for i := 0; i < p.NSlots; i++ {
		switch {
		case p.InUse.Test(i) && !p.Mark.Test(i):
			p.PushFree(i)
		case p.Mark.Test(i):
			p.Mark.Clear(i)
		}
	}
}

// destroyPage removes p from the page index and, if the arena supports
// granular release, returns its buffer to the OS; otherwise the record is
// simply dropped.
func destroyPage(p *page.Page, idx *pageindex.Index, a arena.Arena) error {
	idx.Remove(p.Base())
	if freer, ok := a.(arena.PageFreer); ok {
		return freer.FreePage(p.Block)
	}
	return nil
}

// sweepOversize clears the 1-slot mark bit on surviving oversize blocks and
// drops the rest.
func sweepOversize(book *page.Book) {
	cursor := &book.OversizeHead
	for *cursor != nil {
		o := *cursor
		if o.Marked {
			o.Marked = false
			cursor = &o.Next
			continue
		}
		*cursor = o.Next
		o.Next = nil
		book.OversizeCount--
		book.OversizeBytes -= uint64(len(o.Buf))
	}
}

// Package page implements the Page record and its freelist-in-slot
// discipline.
package page

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/congc/congc/arena"
	"github.com/congc/congc/internal/bitmap"
	"github.com/congc/congc/internal/classes"
)

// FreeListEnd is the freelist terminator: no free slot follows.
const FreeListEnd int32 = -1

// Page is one contiguous, PageSize-aligned buffer split into uniform slots
// of a single size class. Next threads the Page into exactly one of a
// Book's class lists or its empty-page cache.
type Page struct {
	Block      []byte
	Class      int
	SizeClass  uint32
	NSlots     int
	InUseCount int
	FreeHead   int32
	InUse      bitmap.Map
	Mark       bitmap.Map
	Next       *Page
}

// New obtains a fresh PageSize-aligned buffer from a and binds it to size
// class class, with every slot threaded onto the freelist.
func New(a arena.Arena, class int) (*Page, error) {
	buf, err := a.AllocPage()
	if err != nil {
		return nil, errors.Wrap(err, "page: alloc page")
	}
	if len(buf) != classes.PageSize {
		return nil, errors.Errorf("page: arena returned %d bytes, want %d", len(buf), classes.PageSize)
	}
	p := &Page{Block: buf}
	p.bindClass(class)
	return p, nil
}

// FromBuffer binds an already page-aligned, PageSize-length buffer directly
// to a size class, bypassing the arena. Exported for tests and adapters that
// obtain their alignment some other way than arena.Arena.
func FromBuffer(buf []byte, class int) (*Page, error) {
	if len(buf) != classes.PageSize {
		return nil, errors.Errorf("page: buffer is %d bytes, want %d", len(buf), classes.PageSize)
	}
	p := &Page{Block: buf}
	p.bindClass(class)
	return p, nil
}

// ResetForClass rewrites an emptied Page to serve a (possibly different)
// size class, preserving Block and its page-index entry.
func (p *Page) ResetForClass(class int) {
	p.bindClass(class)
}

func (p *Page) bindClass(class int) {
	p.Class = class
	p.SizeClass = classes.Sizes[class]
	p.NSlots = classes.SlotsPerPage(class)
	p.InUseCount = 0
	p.InUse.Reset(p.NSlots)
	p.Mark.Reset(p.NSlots)
	p.initFreelist()
}

// initFreelist threads every slot 0->1->...->NSlots-1->terminator.
func (p *Page) initFreelist() {
	for i := 0; i < p.NSlots-1; i++ {
		p.writeNext(i, int32(i+1))
	}
	if p.NSlots > 0 {
		p.writeNext(p.NSlots-1, FreeListEnd)
		p.FreeHead = 0
	} else {
		p.FreeHead = FreeListEnd
	}
}

// Base is the page's aligned backing-buffer address, the key under which it
// lives in the page index.
func (p *Page) Base() uintptr {
	return uintptr(unsafe.Pointer(&p.Block[0]))
}

// SlotAddr returns the address of slot idx within the page.
func (p *Page) SlotAddr(idx int) uintptr {
	return p.Base() + uintptr(idx)*uintptr(p.SizeClass)
}

func (p *Page) slotNextPtr(idx int) *int32 {
	return (*int32)(unsafe.Pointer(p.SlotAddr(idx)))
}

func (p *Page) readNext(idx int) int32 {
	return *p.slotNextPtr(idx)
}

func (p *Page) writeNext(idx int, next int32) {
	*p.slotNextPtr(idx) = next
}

// PopFree pops the head of the freelist, marking it in-use, and returns its
// slot index. ok is false if the page has no free slots.
func (p *Page) PopFree() (idx int, ok bool) {
	if p.FreeHead == FreeListEnd {
		return 0, false
	}
	idx = int(p.FreeHead)
	p.FreeHead = p.readNext(idx)
	p.InUse.Set(idx)
	p.InUseCount++
	return idx, true
}

// PushFree reclaims slot idx: threads it back onto the freelist and clears
// its in-use bit.
func (p *Page) PushFree(idx int) {
	p.writeNext(idx, p.FreeHead)
	p.FreeHead = int32(idx)
	p.InUse.Clear(idx)
	if p.InUseCount > 0 {
		p.InUseCount--
	}
}

// Bytes returns the number of live bytes held by this page's in-use slots.
func (p *Page) Bytes() uint64 {
	return uint64(p.InUseCount) * uint64(p.SizeClass)
}

// FreelistLen walks the freelist and counts its entries. Used by property
// tests; not on any hot path.
func (p *Page) FreelistLen() int {
	n := 0
	seen := make(map[int32]bool, p.NSlots)
	for cur := p.FreeHead; cur != FreeListEnd; cur = p.readNext(int(cur)) {
		if seen[cur] {
			break
		}
		seen[cur] = true
		n++
	}
	return n
}

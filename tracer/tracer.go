// Package tracer implements the conservative, worklist-driven mark phase.
package tracer

import (
	"unsafe"

	"github.com/congc/congc/page"
	"github.com/congc/congc/pageindex"
	"github.com/congc/congc/roots"
)

// WordSize is the pointer width the tracer assumes when walking slot
// payloads and the stack window.
const WordSize = unsafe.Sizeof(uintptr(0))

type workItem struct {
	page *page.Page
	idx  int
}

// worklist is the LIFO of (Page, slot) pairs awaiting a scan. It grows
// geometrically via append and never shrinks within or across collections,
// so repeated collections reuse the backing array instead of reallocating
// it from scratch every time.
type worklist struct {
	items []workItem
}

func (w *worklist) push(p *page.Page, idx int) {
	w.items = append(w.items, workItem{p, idx})
}

func (w *worklist) pop() (workItem, bool) {
	n := len(w.items)
	if n == 0 {
		return workItem{}, false
	}
	n--
	it := w.items[n]
	w.items = w.items[:n]
	return it, true
}

func (w *worklist) reset() {
	w.items = w.items[:0]
}

// Tracer runs the mark phase against a page index and a roots table.
type Tracer struct {
	Index *pageindex.Index
	Roots *roots.Table
	work  worklist

	// StackLow/StackHigh bound the conservative stack window scanned before
	// explicit roots. Both default to zero (disabled): Go gives user code no
	// stable way to learn its own goroutine's native stack bounds or force a
	// register spill -- goroutine stacks move and the runtime owns them. A
	// caller with a real platform-specific way to obtain stack bounds (e.g.
	// via cgo) may set these fields before calling Mark; absent that, tracing
	// relies entirely on explicit roots.
	StackLow  uintptr
	StackHigh uintptr

	// OversizeContains, when set, lets markPtr recognize pointers into
	// oversize blocks so they can be kept alive like any other root-reached
	// value.
	OversizeContains func(v uintptr) (markSlot func(), ok bool)
}

// New returns a Tracer over idx and rt.
func New(idx *pageindex.Index, rt *roots.Table) *Tracer {
	return &Tracer{Index: idx, Roots: rt}
}

// Mark runs the full mark phase: reset the worklist, scan the stack window,
// scan explicit roots, then drain the worklist. Mark bits are never cleared
// here -- they enter Mark already zero, either from Page.ResetForClass/New
// or from the previous sweep clearing a survivor's bit.
func (t *Tracer) Mark() {
	t.work.reset()

	t.scanStackWindow()
	t.Roots.Each(func(cell unsafe.Pointer) {
		t.markPtr(*(*uintptr)(cell))
	})
	t.drain()
}

func (t *Tracer) scanStackWindow() {
	low, high := t.StackLow, t.StackHigh
	if low == 0 || high == 0 {
		return
	}
	if low > high {
		low, high = high, low
	}
	for addr := low; addr+uintptr(WordSize) <= high; addr += uintptr(WordSize) {
		t.markPtr(*(*uintptr)(unsafe.Pointer(addr)))
	}
}

func (t *Tracer) drain() {
	for {
		it, ok := t.work.pop()
		if !ok {
			return
		}
		t.scanSlot(it.page, it.idx)
	}
}

// scanSlot treats the slot's payload as pointer-sized words and calls
// markPtr on each.
func (t *Tracer) scanSlot(p *page.Page, idx int) {
	base := p.SlotAddr(idx)
	words := int(uintptr(p.SizeClass) / WordSize)
	for w := 0; w < words; w++ {
		addr := base + uintptr(w)*uintptr(WordSize)
		t.markPtr(*(*uintptr)(unsafe.Pointer(addr)))
	}
}

// markPtr rejects null, resolves the address to a slot, rejects
// freelist/never-allocated slots, and pushes newly-marked slots onto the
// worklist.
func (t *Tracer) markPtr(v uintptr) {
	if v == 0 {
		return
	}
	if t.OversizeContains != nil {
		if mark, ok := t.OversizeContains(v); ok {
			mark()
			return
		}
	}
	p, idx, ok := t.Index.Resolve(v)
	if !ok {
		return
	}
	if !p.InUse.Test(idx) {
		return
	}
	if p.Mark.Test(idx) {
		return
	}
	p.Mark.Set(idx)
	t.work.push(p, idx)
}

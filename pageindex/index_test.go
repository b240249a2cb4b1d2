package pageindex

import (
	"testing"
	"unsafe"

	"github.com/congc/congc/internal/classes"
	"github.com/congc/congc/page"
)

func newTestPage(t *testing.T, class int) *page.Page {
	t.Helper()
	buf := make([]byte, classes.PageSize*2)
	base := alignUp(buf)
	p, err := page.FromBuffer(buf[base:base+classes.PageSize:base+classes.PageSize], class)
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	return p
}

// TestInsertLookupRemove inserts N distinct pages then looks each up,
// expecting the inserted page back; removing them in any order should
// leave count == 0 and every slot empty.
func TestInsertLookupRemove(t *testing.T) {
	idx := New(128)
	const n = 64
	pages := make([]*page.Page, n)
	for i := range pages {
		pages[i] = newTestPage(t, i%len(classes.Sizes))
		idx.Insert(pages[i])
	}

	for i, p := range pages {
		got, ok := idx.Lookup(p.Base())
		if !ok || got != p {
			t.Fatalf("Lookup(page %d) = (%v, %v), want (%v, true)", i, got, ok, p)
		}
	}

	// remove in reverse-ish, non-insertion order to exercise backward-shift
	// rehashing from the middle of probe runs.
	order := make([]int, n)
	for i := range order {
		order[i] = (i*37 + 5) % n
	}
	seen := make(map[int]bool, n)
	for _, i := range order {
		if seen[i] {
			continue
		}
		seen[i] = true
		if !idx.Remove(pages[i].Base()) {
			t.Fatalf("Remove(page %d) = false, want true", i)
		}
	}

	if idx.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", idx.Count())
	}
	for i, k := range idx.keys {
		if k != 0 {
			t.Errorf("slot %d not empty after removing all pages: key=%d", i, k)
		}
	}
}

func TestResolve(t *testing.T) {
	idx := New(128)
	p := newTestPage(t, 2) // class 2 -> Sizes[2] = 64
	idx.Insert(p)

	slotAddr := p.SlotAddr(3)
	got, slot, ok := idx.Resolve(slotAddr)
	if !ok || got != p || slot != 3 {
		t.Fatalf("Resolve(slot 3 addr) = (%v, %d, %v), want (%v, 3, true)", got, slot, ok, p)
	}

	// An interior pointer anywhere within the slot resolves to the same
	// slot index.
	for off := uintptr(0); off < uintptr(p.SizeClass); off++ {
		_, slot, ok := idx.Resolve(slotAddr + off)
		if !ok || slot != 3 {
			t.Fatalf("Resolve(slot 3 addr + %d) = (_, %d, %v), want (_, 3, true)", off, slot, ok)
		}
	}

	if _, _, ok := idx.Resolve(0); ok {
		t.Fatalf("Resolve(0) should fail: not a managed address")
	}
}

// alignUp returns the offset into buf at which a classes.PageSize-aligned
// window begins.
func alignUp(buf []byte) uintptr {
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + classes.PageSize - 1) &^ (classes.PageSize - 1)
	return aligned - base
}

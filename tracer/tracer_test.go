package tracer

import (
	"testing"
	"unsafe"

	"github.com/congc/congc/internal/classes"
	"github.com/congc/congc/page"
	"github.com/congc/congc/pageindex"
	"github.com/congc/congc/roots"
)

func alignedBuffer(t *testing.T) []byte {
	t.Helper()
	const want = classes.PageSize
	raw := make([]byte, want*2)
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + want - 1) &^ (want - 1)
	head := int(aligned - base)
	return raw[head : head+want : head+want]
}

func writeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// TestMarkChasesPointerChainThroughRoots builds A -> B inside managed slots
// and roots only A; Mark must reach both.
func TestMarkChasesPointerChainThroughRoots(t *testing.T) {
	p, err := page.FromBuffer(alignedBuffer(t), 1) // class 32 bytes, room for a word
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	idx := pageindex.New(128)
	idx.Insert(p)

	a, ok := p.PopFree()
	if !ok {
		t.Fatal("PopFree for slot A failed")
	}
	b, ok := p.PopFree()
	if !ok {
		t.Fatal("PopFree for slot B failed")
	}
	unreachable, ok := p.PopFree()
	if !ok {
		t.Fatal("PopFree for unreachable slot failed")
	}

	writeWord(p.SlotAddr(a), p.SlotAddr(b))

	rt := roots.New()
	var rootCell unsafe.Pointer
	cellVal := p.SlotAddr(a)
	rootCell = unsafe.Pointer(&cellVal)
	rt.Add(rootCell)

	trc := New(idx, rt)
	trc.Mark()

	if !p.Mark.Test(a) {
		t.Errorf("slot A (rooted) should be marked")
	}
	if !p.Mark.Test(b) {
		t.Errorf("slot B (reached through A's payload) should be marked")
	}
	if p.Mark.Test(unreachable) {
		t.Errorf("slot with no incoming reference should not be marked")
	}
}

func TestMarkPtrRejectsFreelistSlots(t *testing.T) {
	p, err := page.FromBuffer(alignedBuffer(t), 0) // class 16 bytes
	if err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	idx := pageindex.New(128)
	idx.Insert(p)

	rt := roots.New()
	var cellVal uintptr = p.SlotAddr(0) // slot 0 was never allocated
	rt.Add(unsafe.Pointer(&cellVal))

	trc := New(idx, rt)
	trc.Mark()

	if p.Mark.Test(0) {
		t.Errorf("a free (never-allocated) slot must never be marked")
	}
}

func TestMarkPtrRejectsNullAndOutOfRange(t *testing.T) {
	idx := pageindex.New(128)
	rt := roots.New()
	var nullCell uintptr
	var wildCell uintptr = 0xdeadbeef
	rt.Add(unsafe.Pointer(&nullCell))
	rt.Add(unsafe.Pointer(&wildCell))

	trc := New(idx, rt)
	trc.Mark() // must not panic
}

// Package memarena is an arena.Arena that carves PageSize-aligned pages out
// of directio-aligned blocks instead of mmap, for platforms or sandboxes
// where anonymous mmap isn't available. directio.AlignedBlock only
// guarantees sector/OS-page alignment, not classes.PageSize alignment, so
// AllocPage still over-allocates and trims the same way osarena does.
package memarena

import (
	"unsafe"

	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"github.com/congc/congc/internal/classes"
)

// Mem is an in-process Arena. It never frees a block early; Destroy just
// drops references so the backing arrays become collectible by the host
// process's own runtime.
type Mem struct {
	raws [][]byte
}

// New returns a Mem arena ready to serve AllocPage/AllocRaw.
func New() *Mem {
	return &Mem{}
}

// AllocPage allocates a directio-aligned block twice the page size and
// returns the PageSize-aligned window within it.
func (m *Mem) AllocPage() ([]byte, error) {
	const want = classes.PageSize

	block := directio.AlignedBlock(want * 2)
	base := uintptr(unsafe.Pointer(&block[0]))
	aligned := (base + want - 1) &^ (want - 1)
	head := int(aligned - base)

	page := block[head : head+want : head+want]
	m.raws = append(m.raws, block)
	return page, nil
}

// AllocRaw returns a directio-aligned block of at least n bytes for an
// oversize allocation.
func (m *Mem) AllocRaw(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("memarena: non-positive raw size")
	}
	buf := directio.AlignedBlock(n)
	m.raws = append(m.raws, buf)
	return buf, nil
}

// Destroy drops every reference this arena held.
func (m *Mem) Destroy() error {
	m.raws = nil
	return nil
}

package page

import (
	"github.com/pkg/errors"

	"github.com/congc/congc/arena"
)

// Oversize is a raw, non-size-classed allocation. It is not tracked in the
// page index and carries its own 1-slot mark bit rather than a bitmap, so
// it can be reclaimed by the same mark/sweep cycle as ordinary slots.
type Oversize struct {
	Buf    []byte
	Marked bool
	Next   *Oversize
}

// NewOversize obtains a raw n-byte buffer from a for an allocation that
// exceeds the largest size class.
func NewOversize(a arena.Arena, n int) (*Oversize, error) {
	buf, err := a.AllocRaw(n)
	if err != nil {
		return nil, errors.Wrap(err, "page: alloc raw")
	}
	return &Oversize{Buf: buf}, nil
}

// Addr is the oversize block's base address, used by the tracer to test
// whether a conservative root/slot word points at it.
func (o *Oversize) Addr() uintptr {
	if len(o.Buf) == 0 {
		return 0
	}
	return addrOf(o.Buf)
}

// Contains reports whether v falls anywhere inside this block.
func (o *Oversize) Contains(v uintptr) bool {
	base := o.Addr()
	if base == 0 {
		return false
	}
	return v >= base && v < base+uintptr(len(o.Buf))
}

// Package fakearena is a test-only arena.Arena: an in-memory stand-in that
// satisfies the real contract without touching the OS, so arena-facing code
// can be exercised deterministically and cheaply.
package fakearena

import (
	"unsafe"

	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"

	"github.com/congc/congc/internal/classes"
)

// Fake backs every page and raw allocation with its own memfile.File, so
// tests can additionally drive a buffer through io.ReaderAt/io.WriterAt to
// assert on byte-level contents the way a real on-disk page would be
// inspected.
type Fake struct {
	pages []*memfile.File
	raws  []*memfile.File
}

// New returns a Fake arena.
func New() *Fake {
	return &Fake{}
}

// AllocPage hands back a PageSize-aligned window of a freshly allocated
// buffer wrapped in a memfile.File.
func (f *Fake) AllocPage() ([]byte, error) {
	const want = classes.PageSize

	raw := make([]byte, want*2)
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + want - 1) &^ (want - 1)
	head := int(aligned - base)
	page := raw[head : head+want : head+want]

	f.pages = append(f.pages, memfile.New(page))
	return page, nil
}

// AllocRaw hands back an n-byte buffer wrapped in a memfile.File.
func (f *Fake) AllocRaw(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("fakearena: non-positive raw size")
	}
	buf := make([]byte, n)
	f.raws = append(f.raws, memfile.New(buf))
	return buf, nil
}

// Destroy drops every memfile.File this arena created.
func (f *Fake) Destroy() error {
	f.pages = nil
	f.raws = nil
	return nil
}

// PageFile returns the memfile.File wrapping the i-th page this arena
// handed out, letting tests drive it through io.ReaderAt/io.WriterAt
// instead of plain slice indexing.
func (f *Fake) PageFile(i int) *memfile.File {
	return f.pages[i]
}

// RawFile returns the memfile.File wrapping the i-th raw buffer this arena
// handed out.
func (f *Fake) RawFile(i int) *memfile.File {
	return f.raws[i]
}

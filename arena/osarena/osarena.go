// Package osarena is the production arena.Arena: anonymous mmap regions
// trimmed to classes.PageSize alignment, the idiomatic way a Go process
// gets guaranteed page-aligned memory without cgo (mirrors how the Go
// runtime's own sysAlloc/mheap ultimately reaches for mmap).
package osarena

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/congc/congc/internal/classes"
)

// OS is a mmap-backed arena.Arena. Memory goes back to the OS on Destroy,
// or page by page through FreePage when the collector runs in free-memory
// mode.
type OS struct {
	pages [][]byte
	raws  [][]byte
}

// New returns an OS arena ready to serve AllocPage/AllocRaw.
func New() *OS {
	return &OS{}
}

// AllocPage mmaps two page-sizes' worth of anonymous memory and trims the
// slack on both sides of the alignment boundary, munmapping the trimmed
// regions back to the OS immediately so only the aligned window stays
// mapped. This is the standard over-allocate-and-trim trick for getting
// stricter-than-default alignment out of mmap.
func (o *OS) AllocPage() ([]byte, error) {
	const want = classes.PageSize

	full, err := unix.Mmap(-1, 0, want*2, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "osarena: mmap page")
	}

	base := uintptr(unsafe.Pointer(&full[0]))
	aligned := (base + want - 1) &^ (want - 1)
	head := int(aligned - base)
	tail := head + want

	if head > 0 {
		if err := unix.Munmap(full[:head]); err != nil {
			return nil, errors.Wrap(err, "osarena: trim head")
		}
	}
	if tail < len(full) {
		if err := unix.Munmap(full[tail:]); err != nil {
			return nil, errors.Wrap(err, "osarena: trim tail")
		}
	}

	page := full[head:tail:tail]
	o.pages = append(o.pages, page)
	return page, nil
}

// AllocRaw mmaps an anonymous region of at least n bytes for an oversize
// allocation. mmap already guarantees pointer-width alignment.
func (o *OS) AllocRaw(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("osarena: non-positive raw size")
	}
	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "osarena: mmap raw")
	}
	o.raws = append(o.raws, buf)
	return buf, nil
}

// FreePage munmaps a single page buffer previously returned by AllocPage,
// implementing arena.PageFreer so the collector's free_memory mode can
// return individual pages to the OS without tearing down the whole arena.
func (o *OS) FreePage(buf []byte) error {
	for i, p := range o.pages {
		if &p[0] == &buf[0] {
			o.pages = append(o.pages[:i], o.pages[i+1:]...)
			break
		}
	}
	if err := unix.Munmap(buf); err != nil {
		return errors.Wrap(err, "osarena: free page")
	}
	return nil
}

// Destroy munmaps every page and raw buffer this arena ever handed out.
func (o *OS) Destroy() error {
	for _, p := range o.pages {
		if err := unix.Munmap(p); err != nil {
			return errors.Wrap(err, "osarena: destroy page")
		}
	}
	for _, r := range o.raws {
		if err := unix.Munmap(r); err != nil {
			return errors.Wrap(err, "osarena: destroy raw")
		}
	}
	o.pages = nil
	o.raws = nil
	return nil
}

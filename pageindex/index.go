// Package pageindex implements the O(1) address-to-page resolution table:
// a power-of-two open-addressed hash keyed by a page's aligned base address.
package pageindex

import (
	"github.com/congc/congc/internal/classes"
	"github.com/congc/congc/page"
)

const minCap = 128

// loadFactorNum/loadFactorDen cap the load factor at 0.7: grow when
// (count+1)*10 >= cap*7.
const (
	loadFactorNum = 7
	loadFactorDen = 10
)

// Index is the page base address -> *page.Page hash table.
type Index struct {
	keys  []uintptr
	vals  []*page.Page
	count int
}

// New returns an Index with capacity rounded up to a power of two, at least
// minCap and at least initialCap.
func New(initialCap int) *Index {
	c := minCap
	for c < initialCap {
		c *= 2
	}
	return &Index{
		keys: make([]uintptr, c),
		vals: make([]*page.Page, c),
	}
}

// Count returns the number of live entries.
func (idx *Index) Count() int { return idx.count }

// Cap returns the table's current slot capacity.
func (idx *Index) Cap() int { return len(idx.keys) }

// hash mixes key through the SplitMix64 finalizer.
func hash(key uintptr) uint64 {
	x := uint64(key)
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x = x ^ (x >> 31)
	return x
}

func (idx *Index) slotFor(key uintptr) int {
	mask := uint64(len(idx.keys) - 1)
	return int(hash(key) & mask)
}

// Insert adds p to the index, keyed by p.Base(). Growing happens before the
// probe if the load factor would exceed 0.7.
func (idx *Index) Insert(p *page.Page) {
	if (idx.count+1)*loadFactorDen >= len(idx.keys)*loadFactorNum {
		idx.grow()
	}
	idx.insertKV(p.Base(), p)
}

// insertKV probes from hash(key) past any non-empty, non-matching slot and
// writes key/value, incrementing count only if the slot was previously
// empty.
func (idx *Index) insertKV(key uintptr, p *page.Page) {
	mask := len(idx.keys) - 1
	i := idx.slotFor(key)
	for {
		if idx.keys[i] == 0 {
			idx.keys[i] = key
			idx.vals[i] = p
			idx.count++
			return
		}
		if idx.keys[i] == key {
			idx.vals[i] = p
			return
		}
		i = (i + 1) & mask
	}
}

func (idx *Index) grow() {
	newCap := len(idx.keys) * 2
	if newCap < minCap {
		newCap = minCap
	}
	old := *idx
	idx.keys = make([]uintptr, newCap)
	idx.vals = make([]*page.Page, newCap)
	idx.count = 0
	for i, k := range old.keys {
		if k != 0 {
			idx.insertKV(k, old.vals[i])
		}
	}
}

// Lookup returns the Page whose base address is base, if any.
func (idx *Index) Lookup(base uintptr) (*page.Page, bool) {
	mask := len(idx.keys) - 1
	i := idx.slotFor(base)
	for {
		k := idx.keys[i]
		if k == 0 {
			return nil, false
		}
		if k == base {
			return idx.vals[i], true
		}
		i = (i + 1) & mask
	}
}

// Remove deletes the entry keyed by base, if present, and backward-shift
// rehashes the run that follows so lookups stay tombstone-free.
func (idx *Index) Remove(base uintptr) bool {
	mask := len(idx.keys) - 1
	i := idx.slotFor(base)
	for {
		k := idx.keys[i]
		if k == 0 {
			return false
		}
		if k == base {
			break
		}
		i = (i + 1) & mask
	}

	idx.keys[i] = 0
	idx.vals[i] = nil
	idx.count--

	j := (i + 1) & mask
	for idx.keys[j] != 0 {
		k, v := idx.keys[j], idx.vals[j]
		idx.keys[j] = 0
		idx.vals[j] = nil
		idx.count--
		idx.insertKV(k, v)
		j = (j + 1) & mask
	}
	return true
}

// Resolve maps an arbitrary interior pointer v to the Page that owns it and
// the slot index it falls within, rejecting anything that doesn't land on a
// valid slot.
func (idx *Index) Resolve(v uintptr) (p *page.Page, slot int, ok bool) {
	base := v &^ (classes.PageSize - 1)
	pg, found := idx.Lookup(base)
	if !found {
		return nil, 0, false
	}
	off := v - pg.Base()
	if off >= classes.PageSize {
		return nil, 0, false
	}
	idxSlot := int(off / uintptr(pg.SizeClass))
	if idxSlot >= pg.NSlots {
		return nil, 0, false
	}
	return pg, idxSlot, true
}

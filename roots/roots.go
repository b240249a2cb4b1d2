// Package roots implements the append-only, lazily compacting table of
// caller-registered root cells.
package roots

import "unsafe"

// Table holds the addresses of caller-held pointer-to-pointer cells. A cell
// may go nil (a tombstone) after Remove; Len reports the high-water mark.
type Table struct {
	cells []unsafe.Pointer
	live  int
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Add registers cell, deduplicating against an already-registered cell.
func (t *Table) Add(cell unsafe.Pointer) {
	if cell == nil {
		return
	}
	for _, c := range t.cells {
		if c == cell {
			return
		}
	}
	t.cells = append(t.cells, cell)
	t.live++
}

// Remove deregisters cell. Removing an unknown cell is a non-fatal no-op;
// the caller's diagnostic logging, if any, happens above this layer.
func (t *Table) Remove(cell unsafe.Pointer) bool {
	for i, c := range t.cells {
		if c == cell {
			t.cells[i] = nil
			t.live--
			t.compactIfSparse()
			return true
		}
	}
	return false
}

// Each invokes fn with every currently registered, non-tombstoned cell.
func (t *Table) Each(fn func(cell unsafe.Pointer)) {
	for _, c := range t.cells {
		if c != nil {
			fn(c)
		}
	}
}

// Len is the high-water mark: the backing array's length, tombstones
// included.
func (t *Table) Len() int { return len(t.cells) }

// LiveCount is the number of non-tombstoned cells.
func (t *Table) LiveCount() int { return t.live }

// compactIfSparse compacts the backing array once it has grown past twice
// the live count, keeping tombstone buildup from growing Each's walk
// unboundedly.
func (t *Table) compactIfSparse() {
	if len(t.cells) <= 2*t.live {
		return
	}
	kept := t.cells[:0]
	for _, c := range t.cells {
		if c != nil {
			kept = append(kept, c)
		}
	}
	t.cells = kept
}

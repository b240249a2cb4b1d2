// Package gc wires the size-class allocator, page index, roots table,
// tracer, sweeper and pressure controller into the Collector type: Init,
// Destroy, Alloc, Collect, Root and Unroot.
package gc

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/congc/congc/arena"
	"github.com/congc/congc/internal/classes"
	"github.com/congc/congc/page"
	"github.com/congc/congc/pageindex"
	"github.com/congc/congc/pressure"
	"github.com/congc/congc/roots"
	"github.com/congc/congc/sweep"
	"github.com/congc/congc/tracer"
)

// Config holds the tuning knobs Init takes as explicit constructor
// arguments: no files, no environment variables.
type Config struct {
	// FreeMemory selects the sweeper's page-retirement policy: true returns
	// emptied pages to the OS where the arena supports it, false caches
	// them in the empty-page pool for rebinding to any class.
	FreeMemory bool
	// GrowthFactor is the pressure controller's multiplier. Zero defaults to
	// pressure.DefaultGrowthFactor.
	GrowthFactor float64
	// InitialIndexCap seeds the page index's starting capacity. Zero
	// defaults to 128.
	InitialIndexCap int
	// StackLow/StackHigh optionally bound a conservative stack window; see
	// the tracer.Tracer StackLow/StackHigh field comment on why both default
	// to zero (disabled).
	StackLow, StackHigh uintptr
	// Log receives allocation-failure and collection diagnostics. Nil
	// defaults to logrus's standard logger.
	Log logrus.FieldLogger
}

// Collector is the process-wide collector core. The zero value is not
// usable; construct with Init.
type Collector struct {
	arena arena.Arena
	book  *page.Book
	index *pageindex.Index
	roots *roots.Table
	trc   *tracer.Tracer
	press *pressure.Controller
	cfg   Config
	log   logrus.FieldLogger

	collections int
}

// Init wires the arena, the book, the page index (initial capacity 128 by
// default), the empty roots table, and the pressure controller (last live
// bytes = PageSize, growth factor 1.5 by default, zeroed accumulator).
// Returns an error only if a itself cannot be used; a is expected to have
// already attempted whatever setup it needs before being passed in.
func Init(a arena.Arena, cfg Config) (*Collector, error) {
	if a == nil {
		return nil, errors.New("gc: nil arena")
	}
	if cfg.GrowthFactor == 0 {
		cfg.GrowthFactor = pressure.DefaultGrowthFactor
	}
	if cfg.InitialIndexCap == 0 {
		cfg.InitialIndexCap = 128
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	idx := pageindex.New(cfg.InitialIndexCap)
	rt := roots.New()
	trc := tracer.New(idx, rt)
	trc.StackLow, trc.StackHigh = cfg.StackLow, cfg.StackHigh

	c := &Collector{
		arena: a,
		book:  page.NewBook(),
		index: idx,
		roots: rt,
		trc:   trc,
		press: pressure.New(cfg.GrowthFactor),
		cfg:   cfg,
		log:   log,
	}
	trc.OversizeContains = c.oversizeContains
	return c, nil
}

// Destroy tears down the arena. Every pointer Alloc ever returned becomes
// invalid.
func (c *Collector) Destroy() error {
	return c.arena.Destroy()
}

// Alloc classifies the request, checks allocation pressure, allocates,
// retries once on exhaustion via a collection, then treats continued
// exhaustion as fatal. Slots are not rezeroed on reuse -- callers must not
// assume zero.
func (c *Collector) Alloc(size int) unsafe.Pointer {
	if size <= 0 {
		size = 1
	}
	class := classes.Classify(uint32(size))
	if class == classes.Oversize {
		return c.allocOversize(size)
	}
	return c.allocFromClass(class)
}

func (c *Collector) allocFromClass(class int) unsafe.Pointer {
	upcoming := uint64(classes.Sizes[class])
	c.maybeCollect(upcoming)

	ptr, ok := c.tryAllocFromClass(class)
	if !ok {
		c.Collect()
		if ptr, ok = c.tryAllocFromClass(class); !ok {
			c.fatal("allocation failed after retry collection (class %d, %d bytes)", class, classes.Sizes[class])
		}
	}
	c.press.RecordAlloc(upcoming)
	return ptr
}

// tryAllocFromClass reuses a freelist slot from an existing page of this
// class, else rebinds a cached empty page, else mints a new page.
func (c *Collector) tryAllocFromClass(class int) (unsafe.Pointer, bool) {
	for p := c.book.ClassHeads[class]; p != nil; p = p.Next {
		if idx, ok := p.PopFree(); ok {
			return unsafe.Pointer(p.SlotAddr(idx)), true
		}
	}

	if p := c.book.PopEmpty(); p != nil {
		p.ResetForClass(class)
		c.book.PushClass(class, p)
		idx, ok := p.PopFree()
		if !ok {
			return nil, false
		}
		return unsafe.Pointer(p.SlotAddr(idx)), true
	}

	p, err := page.New(c.arena, class)
	if err != nil {
		c.log.WithError(err).Warn("congc: new page allocation failed")
		return nil, false
	}
	c.index.Insert(p)
	c.book.PushClass(class, p)
	c.book.PageCount++

	idx, ok := p.PopFree()
	if !ok {
		return nil, false
	}
	return unsafe.Pointer(p.SlotAddr(idx)), true
}

// allocOversize bypasses size classes entirely and asks the arena for a raw
// buffer of exactly size bytes.
func (c *Collector) allocOversize(size int) unsafe.Pointer {
	c.maybeCollect(uint64(size))

	o, err := page.NewOversize(c.arena, size)
	if err != nil {
		c.Collect()
		if o, err = page.NewOversize(c.arena, size); err != nil {
			c.fatal("oversize allocation of %d bytes failed after retry collection: %v", size, err)
		}
	}
	c.book.PushOversize(o)
	c.press.RecordAlloc(uint64(size))
	return unsafe.Pointer(o.Addr())
}

func (c *Collector) maybeCollect(upcoming uint64) {
	if c.press.ShouldCollect(upcoming) {
		c.Collect()
	}
}

// Collect runs a full mark/sweep cycle synchronously, then recomputes the
// pressure controller's live-set baseline and resets its accumulator.
func (c *Collector) Collect() {
	c.trc.Mark()
	if err := sweep.Sweep(c.book, c.index, c.arena, c.cfg.FreeMemory); err != nil {
		c.log.WithError(err).Warn("congc: sweep encountered an arena error")
	}
	c.press.AfterCollect(c.book.LiveBytes())
	c.collections++
}

// Root registers cell so the next mark dereferences it and treats the
// result as a potential reference. cell must remain valid until Unroot.
func (c *Collector) Root(cell unsafe.Pointer) {
	c.roots.Add(cell)
}

// Unroot deregisters cell. Unrooting a cell that was never registered (or
// already unrooted) is a non-fatal diagnostic, not an error.
func (c *Collector) Unroot(cell unsafe.Pointer) {
	if !c.roots.Remove(cell) {
		c.log.WithField("cell", cell).Debug("congc: unroot of unregistered cell")
	}
}

// Stats is a point-in-time snapshot of the collector's counters, useful for
// logging and tuning the pressure controller.
type Stats struct {
	LiveBytes        uint64
	BytesSinceLastGC uint64
	Collections      int
	PageCount        int
	OversizeCount    int
	OversizeBytes    uint64
}

// Stats snapshots the collector's current counters.
func (c *Collector) Stats() Stats {
	return Stats{
		LiveBytes:        c.book.LiveBytes(),
		BytesSinceLastGC: c.press.BytesSinceLastGC,
		Collections:      c.collections,
		PageCount:        c.book.PageCount,
		OversizeCount:    c.book.OversizeCount,
		OversizeBytes:    c.book.OversizeBytes,
	}
}

// oversizeContains lets the tracer recognize a conservative root/slot word
// that points into the interior of an oversize block, not just its base
// address, and mark the block as live.
func (c *Collector) oversizeContains(v uintptr) (func(), bool) {
	for o := c.book.OversizeHead; o != nil; o = o.Next {
		if o.Contains(v) {
			oo := o
			return func() { oo.Marked = true }, true
		}
	}
	return nil, false
}

func (c *Collector) fatal(format string, args ...interface{}) {
	err := errors.Errorf(format, args...)
	c.log.WithError(err).Error("congc: fatal allocation failure")
	panic(err)
}

// Package pressure implements the allocation-pressure auto-collection
// trigger.
package pressure

import "github.com/congc/congc/internal/classes"

// DefaultGrowthFactor is the default growth multiplier.
const DefaultGrowthFactor = 1.5

// Controller tracks bytes allocated since the last collection against a
// multiple of the last observed live set.
type Controller struct {
	BytesSinceLastGC uint64
	LastLiveBytes    uint64
	GrowthFactor     float64
}

// New returns a Controller with LastLiveBytes seeded to PageSize, preventing
// zero-threshold thrash on the very first allocation.
func New(growthFactor float64) *Controller {
	return &Controller{
		LastLiveBytes: classes.PageSize,
		GrowthFactor:  growthFactor,
	}
}

// ShouldCollect reports whether allocating upcoming more bytes would cross
// the growth-factor threshold over the last live set. The check happens
// once per allocation, before any new page is taken from the arena.
func (c *Controller) ShouldCollect(upcoming uint64) bool {
	threshold := c.threshold()
	return float64(c.BytesSinceLastGC+upcoming) > threshold
}

func (c *Controller) threshold() float64 {
	live := c.LastLiveBytes
	if live < classes.PageSize {
		live = classes.PageSize
	}
	return float64(live) * c.GrowthFactor
}

// RecordAlloc adds n bytes to the accumulator. Called for every allocation,
// including oversize.
func (c *Controller) RecordAlloc(n uint64) {
	c.BytesSinceLastGC += n
}

// AfterCollect resets the accumulator and records the freshly recomputed
// live-set size.
func (c *Controller) AfterCollect(liveBytes uint64) {
	c.LastLiveBytes = liveBytes
	c.BytesSinceLastGC = 0
}

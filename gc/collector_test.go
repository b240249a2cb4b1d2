package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/congc/congc/arena/fakearena"
	"github.com/congc/congc/internal/classes"
)

func newCollector(t *testing.T, cfg Config) *Collector {
	t.Helper()
	c, err := Init(fakearena.New(), cfg)
	require.NoError(t, err)
	return c
}

func TestInitRejectsNilArena(t *testing.T) {
	_, err := Init(nil, Config{})
	require.Error(t, err)
}

// TestUnrootedObjectReclaimedOnCollect checks that an allocation with nothing
// pointing at it is reclaimed on the next collection.
func TestUnrootedObjectReclaimedOnCollect(t *testing.T) {
	c := newCollector(t, Config{})
	_ = c.Alloc(16)

	c.Collect()

	require.Zero(t, c.Stats().LiveBytes)
	require.Equal(t, 1, c.Stats().Collections)
}

// TestRootedObjectSurvivesThenReclaimedAfterUnroot exercises the full
// rooting lifecycle: survives while rooted, reclaimed once unrooted.
func TestRootedObjectSurvivesThenReclaimedAfterUnroot(t *testing.T) {
	c := newCollector(t, Config{})
	ptr := c.Alloc(16)

	cell := ptr
	c.Root(unsafe.Pointer(&cell))
	c.Root(unsafe.Pointer(&cell)) // duplicate root must not break anything

	c.Collect()
	require.NotZero(t, c.Stats().LiveBytes, "rooted object should survive the collection")

	c.Unroot(unsafe.Pointer(&cell))
	c.Collect()
	require.Zero(t, c.Stats().LiveBytes, "object should be reclaimed once unrooted")

	// unrooting an already-unrooted cell is a non-fatal diagnostic, not a panic.
	c.Unroot(unsafe.Pointer(&cell))
}

// TestOversizeSurvivesWhileRootedAndIsNotCountedInLiveBytes checks that an
// oversize allocation survives collection while rooted, is excluded from
// class-based live-byte accounting, and is dropped once unrooted.
func TestOversizeSurvivesWhileRootedAndIsNotCountedInLiveBytes(t *testing.T) {
	c := newCollector(t, Config{})
	bigSize := int(classes.Sizes[len(classes.Sizes)-1]) + 1

	ptr := c.Alloc(bigSize)
	cell := ptr
	c.Root(unsafe.Pointer(&cell))

	c.Collect()
	stats := c.Stats()
	require.Equal(t, 1, stats.OversizeCount)
	require.NotZero(t, stats.OversizeBytes)
	require.Zero(t, stats.LiveBytes, "oversize blocks are not counted in class-based live bytes")

	c.Unroot(unsafe.Pointer(&cell))
	c.Collect()
	require.Zero(t, c.Stats().OversizeCount, "unrooted oversize block should be dropped on sweep")
}

// TestPageRecyclingAcrossSizeClassesWhenNotFreeingMemory checks that an
// emptied page is cached, not destroyed, and gets rebound to a different size
// class on a later allocation instead of minting a new page.
func TestPageRecyclingAcrossSizeClassesWhenNotFreeingMemory(t *testing.T) {
	c := newCollector(t, Config{FreeMemory: false})
	_ = c.Alloc(16) // smallest class, left unrooted

	c.Collect()
	require.Equal(t, 1, c.Stats().PageCount, "the one page minted so far should still be cached, not destroyed")

	_ = c.Alloc(64) // a different size class
	require.Equal(t, 1, c.Stats().PageCount, "the cached empty page should have been rebound instead of minting a new one")
}

// TestPressureTriggersAutoCollect checks that a low growth factor makes the
// very first allocation cross the threshold and trigger a collection the
// caller never asked for explicitly.
func TestPressureTriggersAutoCollect(t *testing.T) {
	c := newCollector(t, Config{GrowthFactor: 0.00001}) // threshold ~10.5 bytes
	require.Zero(t, c.Stats().Collections)

	_ = c.Alloc(16)

	require.Equal(t, 1, c.Stats().Collections, "allocation should have triggered an automatic collection")
}

func TestAllocZeroOrNegativeSizeRoundsToSmallestClass(t *testing.T) {
	c := newCollector(t, Config{})
	ptr := c.Alloc(0)
	require.NotNil(t, ptr)
	negPtr := c.Alloc(-5)
	require.NotNil(t, negPtr)
}

func TestDestroyTearsDownArena(t *testing.T) {
	c := newCollector(t, Config{})
	_ = c.Alloc(16)
	require.NoError(t, c.Destroy())
}

package vmem

import (
	"fmt"

	"github.com/joshuapare/vmemkit/internal/format"
	"github.com/joshuapare/vmemkit/store"
)

// Ptr is a virtual address into the pool. 0 is the null pointer and is
// never returned by Alloc.
type Ptr uint32

// hdrSize is the size of a block header in bytes; block sizes are counted
// in units of it.
const hdrSize = format.HeaderSize

const (
	// baseIndex addresses the RAM-resident free-list head sentinel. It is
	// below startOffset, so it can never collide with a real block.
	baseIndex Ptr = 1

	// startOffset keeps the low pool bytes unused so that 0 stays free
	// for the null pointer.
	startOffset = hdrSize

	// minAllocUnits is the smallest block carved off the pool tail, in
	// header units.
	minAllocUnits = 16

	// pageMaxCleanSkips caps how many eviction rounds a dirty page can
	// dodge before it is treated as a clean victim anyway.
	pageMaxCleanSkips = 5
)

// header is the in-RAM form of a block header. size counts header units;
// next is only meaningful while the block is on the free list.
type header struct {
	size uint32
	next Ptr
}

// PageClassConfig sets the geometry of one page class.
type PageClassConfig struct {
	// Count is the number of page buffers in the class, at most 127.
	Count int
	// Size is the byte capacity of each buffer.
	Size int
}

// Config carries everything an Allocator needs.
type Config struct {
	// PoolSize is the virtual pool capacity in bytes.
	PoolSize int

	// SmallPages and MediumPages serve only as lock destinations;
	// BigPages additionally carry all general paged I/O.
	SmallPages  PageClassConfig
	MediumPages PageClassConfig
	BigPages    PageClassConfig

	// Store is the backing pool. Must cover PoolSize bytes.
	Store store.Store
}

// DefaultConfig mirrors the class geometry the original library ships
// with. Callers must still supply a Store.
var DefaultConfig = Config{
	PoolSize:    1 << 20,
	SmallPages:  PageClassConfig{Count: 4, Size: 64},
	MediumPages: PageClassConfig{Count: 4, Size: 256},
	BigPages:    PageClassConfig{Count: 4, Size: 512},
}

// Allocator is the virtual-memory core: page cache, lock subsystem and
// free-list allocator. Construct with New, then Start before use.
//
// Allocator is not thread-safe and not re-entrant.
type Allocator struct {
	store    store.Store
	poolSize Ptr

	small  pageClass
	medium pageClass
	big    pageClass

	// baseFreeList is the free list's head sentinel; it lives in RAM and
	// is addressed by baseIndex.
	baseFreeList header
	// freePointer roves over the free list; scans start at it. Zero
	// until the first allocation populates the list.
	freePointer Ptr
	// poolFreePos is the first untouched byte of the pool tail.
	poolFreePos Ptr

	// nextPageToSwap rotates dirty-page victim selection over the big
	// class.
	nextPageToSwap int8

	started bool
	stats   Stats
}

// New validates cfg and builds a stopped Allocator.
func New(cfg Config) (*Allocator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("vmem: config has no store")
	}
	if cfg.PoolSize <= startOffset+hdrSize {
		return nil, fmt.Errorf("vmem: pool size %d too small", cfg.PoolSize)
	}
	if int64(cfg.PoolSize) > int64(^uint32(0)) {
		return nil, fmt.Errorf("vmem: pool size %d exceeds address space", cfg.PoolSize)
	}
	for _, pcc := range []PageClassConfig{cfg.SmallPages, cfg.MediumPages, cfg.BigPages} {
		if pcc.Count < 1 || pcc.Count > 127 {
			return nil, fmt.Errorf("vmem: page count %d outside [1,127]", pcc.Count)
		}
	}
	if cfg.SmallPages.Size <= 0 ||
		cfg.SmallPages.Size > cfg.MediumPages.Size ||
		cfg.MediumPages.Size > cfg.BigPages.Size {
		return nil, fmt.Errorf("vmem: page class sizes must ascend small <= medium <= big")
	}
	if cfg.BigPages.Size < hdrSize {
		return nil, fmt.Errorf("vmem: big page size %d below header size", cfg.BigPages.Size)
	}

	a := &Allocator{
		store:    cfg.Store,
		poolSize: Ptr(cfg.PoolSize),
	}
	a.small.init(cfg.SmallPages)
	a.medium.init(cfg.MediumPages)
	a.big.init(cfg.BigPages)
	return a, nil
}

// classes returns the three page classes in ascending size order.
func (a *Allocator) classes() [3]*pageClass {
	return [3]*pageClass{&a.small, &a.medium, &a.big}
}

// Start resets all allocator state and acquires the backing store. Any
// virtual memory from a previous session is forgotten (though the store's
// bytes themselves survive if the store persists them).
func (a *Allocator) Start() error {
	if a.started {
		panic("vmem: Start called while allocator is running")
	}

	a.freePointer = 0
	a.nextPageToSwap = 0
	a.baseFreeList = header{}
	a.poolFreePos = startOffset + hdrSize
	a.stats = Stats{}

	for _, pc := range a.classes() {
		pc.freeIndex = 0
		pc.lockedIndex = -1
		for i := range pc.pages {
			pg := &pc.pages[i]
			if i == len(pc.pages)-1 {
				pg.next = -1
			} else {
				pg.next = int8(i + 1)
			}
			if pc == &a.big {
				pg.size = pc.size
			}
			pg.start = 0
			pg.locks = 0
			pg.cleanSkips = 0
			pg.dirty = false
		}
	}

	if err := a.store.Start(); err != nil {
		return err
	}
	a.started = true
	return nil
}

// Stop releases the backing store. Start must be called again before the
// allocator is reused.
func (a *Allocator) Stop() error {
	a.started = false
	return a.store.Stop()
}

// PoolSize returns the virtual pool capacity in bytes. Some of it is used
// for block headers, so the full amount cannot be allocated.
func (a *Allocator) PoolSize() int { return int(a.poolSize) }

// SmallPageCount returns the number of small page buffers.
func (a *Allocator) SmallPageCount() int { return len(a.small.pages) }

// MediumPageCount returns the number of medium page buffers.
func (a *Allocator) MediumPageCount() int { return len(a.medium.pages) }

// BigPageCount returns the number of big page buffers.
func (a *Allocator) BigPageCount() int { return len(a.big.pages) }

// SmallPageSize returns the byte capacity of a small page.
func (a *Allocator) SmallPageSize() int { return a.small.size }

// MediumPageSize returns the byte capacity of a medium page.
func (a *Allocator) MediumPageSize() int { return a.medium.size }

// BigPageSize returns the byte capacity of a big page, which bounds Read,
// Write and lock spans.
func (a *Allocator) BigPageSize() int { return a.big.size }

// FreeBigPages returns the number of big pages that are unmapped and
// unlocked.
func (a *Allocator) FreeBigPages() int {
	n := 0
	for i := a.big.freeIndex; i != -1; i = a.big.pages[i].next {
		if a.big.pages[i].start == 0 {
			n++
		}
	}
	return n
}

// UnlockedSmallPages returns the number of small pages not currently
// pinned by a lock.
func (a *Allocator) UnlockedSmallPages() int { return a.small.unlockedPages() }

// UnlockedMediumPages returns the number of medium pages not currently
// pinned by a lock.
func (a *Allocator) UnlockedMediumPages() int { return a.medium.unlockedPages() }

// UnlockedBigPages returns the number of big pages not currently pinned
// by a lock.
func (a *Allocator) UnlockedBigPages() int { return a.big.unlockedPages() }

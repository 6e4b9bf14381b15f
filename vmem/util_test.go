package vmem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/vmemkit/store"
)

// testConfig returns a small geometry that forces frequent page traffic:
// a pool of poolSize bytes, 2x16 small, 2x64 medium, 4x256 big.
func testConfig(poolSize int) Config {
	return Config{
		PoolSize:    poolSize,
		SmallPages:  PageClassConfig{Count: 2, Size: 16},
		MediumPages: PageClassConfig{Count: 2, Size: 64},
		BigPages:    PageClassConfig{Count: 4, Size: 256},
		Store:       store.NewMem(poolSize),
	}
}

func newTestAllocator(t *testing.T, poolSize int) (*Allocator, *store.Mem) {
	t.Helper()
	cfg := testConfig(poolSize)
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a, cfg.Store.(*store.Mem)
}

type freeNode struct {
	addr Ptr
	size uint32 // header units
}

// walkFreeList walks the circular free list once, starting behind the RAM
// sentinel, and checks circularity and strict address order.
func walkFreeList(t *testing.T, a *Allocator) []freeNode {
	t.Helper()
	if a.freePointer == 0 {
		return nil
	}

	var nodes []freeNode
	p := a.getHeader(baseIndex).next
	for steps := 0; p != baseIndex; steps++ {
		require.NotZero(t, p, "free list link to null")
		require.Less(t, steps, 1<<14, "free list does not close")
		h := a.getHeader(p)
		nodes = append(nodes, freeNode{addr: p, size: h.size})
		p = h.next
	}

	for i := 1; i < len(nodes); i++ {
		require.Greater(t, nodes[i].addr, nodes[i-1].addr,
			"free list not address-sorted")
	}
	return nodes
}

// checkAccounting verifies that free, live and untouched pool-tail bytes
// add up to everything past the reserved prefix.
func checkAccounting(t *testing.T, a *Allocator, liveBytes int) {
	t.Helper()
	freeBytes := 0
	for _, n := range walkFreeList(t, a) {
		freeBytes += int(n.size) * hdrSize
	}
	require.Equal(t, int(a.poolFreePos)-(startOffset+hdrSize), freeBytes+liveBytes,
		"free + live bytes must cover the carved pool")
	require.LessOrEqual(t, int(a.poolFreePos), int(a.poolSize))
}

type span struct {
	start, end Ptr
}

func requireDisjoint(t *testing.T, spans []span, what string) {
	t.Helper()
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			require.False(t, a.start < b.end && b.start < a.end,
				"%s overlap: [%#x,%#x) and [%#x,%#x)", what, a.start, a.end, b.start, b.end)
		}
	}
}

// checkNoOverlap verifies the page-cache overlap invariants at a public
// call boundary: locked ranges are pairwise disjoint, and so are the
// mapped big I/O pages.
func checkNoOverlap(t *testing.T, a *Allocator) {
	t.Helper()

	var locked []span
	for _, pc := range a.classes() {
		for i := pc.lockedIndex; i != -1; i = pc.pages[i].next {
			pg := &pc.pages[i]
			if pg.start != 0 && pg.size > 0 {
				locked = append(locked, span{pg.start, pg.start + Ptr(pg.size)})
			}
		}
	}
	requireDisjoint(t, locked, "locked range")

	var mapped []span
	for i := a.big.freeIndex; i != -1; i = a.big.pages[i].next {
		pg := &a.big.pages[i]
		if pg.start != 0 {
			mapped = append(mapped, span{pg.start, pg.start + Ptr(a.big.size)})
		}
	}
	requireDisjoint(t, mapped, "mapped big page")
}

// unitsOf is the allocation quantum for a payload of n bytes, header
// included, in header units.
func unitsOf(n int) uint32 {
	return uint32((n+hdrSize-1)/hdrSize) + 1
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*31 + seed
	}
	return b
}

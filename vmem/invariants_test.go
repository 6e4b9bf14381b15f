package vmem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test_RandomTraffic drives the allocator with a seeded mix of alloc,
// free, read, write, lock and flush traffic against a shadow model, and
// re-checks the structural invariants every 50 steps and at the end.
func Test_RandomTraffic(t *testing.T) {
	a, _ := newTestAllocator(t, 32*1024)
	rng := rand.New(rand.NewSource(0x5EED))

	type block struct {
		ptr  Ptr
		data []byte
	}
	var live []block

	verify := func() {
		walkFreeList(t, a)
		checkNoOverlap(t, a)
	}

	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(10); {
		case op < 4: // alloc + write
			n := 1 + rng.Intn(200)
			p, err := a.Alloc(n)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace)
				// Relieve pressure and retry later.
				if len(live) > 0 {
					b := live[0]
					live = live[1:]
					a.Free(b.ptr)
				}
				break
			}
			data := pattern(n, byte(step))
			a.Write(p, data)
			live = append(live, block{ptr: p, data: data})

		case op < 6: // free a random block
			if len(live) == 0 {
				break
			}
			i := rng.Intn(len(live))
			a.Free(live[i].ptr)
			live = append(live[:i], live[i+1:]...)

		case op < 8: // read back a random block
			if len(live) == 0 {
				break
			}
			b := live[rng.Intn(len(live))]
			require.Equal(t, b.data, a.Read(b.ptr, len(b.data)),
				"step %d: block %#x", step, b.ptr)

		case op < 9: // rewrite a random slice of a random block
			if len(live) == 0 {
				break
			}
			i := rng.Intn(len(live))
			b := &live[i]
			off := rng.Intn(len(b.data))
			n := 1 + rng.Intn(len(b.data)-off)
			chunk := pattern(n, byte(step^0x55))
			a.Write(b.ptr+Ptr(off), chunk)
			copy(b.data[off:], chunk)

		default: // lock a random block, mutate through it, release
			if len(live) == 0 {
				break
			}
			i := rng.Intn(len(live))
			b := &live[i]
			n := min(len(b.data), a.BigPageSize())
			buf, err := a.DataLock(b.ptr, n, false)
			if err != nil {
				require.ErrorIs(t, err, ErrNoLockSlots)
				break
			}
			// The lock may have shrunk to dodge other locks; none exist
			// here, so it must cover the request.
			require.Len(t, buf, n)
			chunk := pattern(n, byte(step^0xAA))
			copy(buf, chunk)
			copy(b.data, chunk)
			a.ReleaseLock(b.ptr)
		}

		if step%50 == 0 {
			verify()
		}
		if step%400 == 399 {
			a.Flush()
		}
	}

	// Everything still readable at the end.
	for _, b := range live {
		require.Equal(t, b.data, a.Read(b.ptr, len(b.data)))
	}
	verify()
}

// Test_CoalescingKeepsListBounded allocates and frees pairs repeatedly;
// the free list must not accumulate nodes.
func Test_CoalescingKeepsListBounded(t *testing.T) {
	a, _ := newTestAllocator(t, 16*1024)

	// Prime the pool.
	p0, err := a.Alloc(100)
	require.NoError(t, err)
	a.Free(p0)
	baseline := len(walkFreeList(t, a))

	for i := 0; i < 50; i++ {
		p1, err := a.Alloc(100)
		require.NoError(t, err)
		p2, err := a.Alloc(100)
		require.NoError(t, err)
		a.Free(p1)
		a.Free(p2)
		require.LessOrEqual(t, len(walkFreeList(t, a)), baseline,
			"iteration %d: alloc/free pairs must not grow the free list", i)
	}
}

package vmem

import (
	"github.com/joshuapare/vmemkit/internal/format"
)

// getHeader reads the block header at p by value. The copy matters:
// headers live inside the virtual pool, so any later allocator call can
// swap the page a header was read from.
func (a *Allocator) getHeader(p Ptr) header {
	if p == baseIndex {
		return a.baseFreeList
	}
	h := format.DecodeHeader(a.Read(p, hdrSize))
	return header{size: h.Size, next: Ptr(h.Next)}
}

// putHeader writes the block header at p.
func (a *Allocator) putHeader(p Ptr, h header) {
	if p == baseIndex {
		a.baseFreeList = h
		return
	}
	var buf [hdrSize]byte
	format.Header{Size: h.size, Next: uint32(h.next)}.Encode(buf[:])
	a.Write(p, buf[:])
}

// getMem carves a fresh block of at least units header units off the pool
// tail and inserts it into the free list via Free, so the first-fit scan
// picks it up on its next step. Returns the roving free pointer, or 0
// when the pool is exhausted.
func (a *Allocator) getMem(units uint32) Ptr {
	units = max(units, minAllocUnits)
	total := Ptr(units) * hdrSize

	if a.poolFreePos+total > a.poolSize {
		return 0
	}

	a.putHeader(a.poolFreePos, header{size: units})
	// Pre-balance the subtraction Free is about to apply.
	a.stats.MemUsed += int(total)
	a.Free(a.poolFreePos + hdrSize)
	a.poolFreePos += total

	return a.freePointer
}

// Alloc allocates size bytes of virtual memory and returns the payload
// address. Returns ErrNoSpace when the pool is exhausted; the free list
// is untouched in that case.
func (a *Allocator) Alloc(size int) (Ptr, error) {
	if size <= 0 {
		panic("vmem: Alloc of non-positive size")
	}
	if size >= int(a.poolSize) {
		return 0, ErrNoSpace
	}

	// One extra unit for the block's own header.
	quantity := format.Units(size)
	prevp := a.freePointer

	// First allocation ever: seed the list with the degenerate RAM
	// sentinel pointing at itself.
	if prevp == 0 {
		a.baseFreeList = header{next: baseIndex}
		a.freePointer = baseIndex
		prevp = baseIndex
	}

	p := a.getHeader(prevp).next
	for {
		h := a.getHeader(p)

		if h.size >= quantity {
			a.stats.MemUsed += int(quantity) * hdrSize
			a.stats.MaxMemUsed = max(a.stats.MaxMemUsed, a.stats.MemUsed)

			if h.size == quantity {
				// Exact fit: unlink by patching the predecessor.
				next := h.next
				prevh := a.getHeader(prevp)
				prevh.next = next
				a.putHeader(prevp, prevh)
			} else {
				// Too big: shrink in place and allocate the tail, which
				// keeps the free block's position in the sorted list.
				h.size -= quantity
				a.putHeader(p, h)
				p += Ptr(h.size) * hdrSize
				blockh := a.getHeader(p)
				blockh.size = quantity
				a.putHeader(p, blockh)
			}

			a.freePointer = prevp
			return p + hdrSize, nil
		}

		// Wrapped around without a fit: grow the free list from the pool
		// tail. The new block is inserted behind the free pointer, so the
		// scan below will reach it.
		if p == a.freePointer {
			if p = a.getMem(quantity); p == 0 {
				return 0, ErrNoSpace
			}
			h = a.getHeader(p)
		}

		prevp = p
		p = h.next
		if p == 0 {
			panic("vmem: corrupt free list link")
		}
	}
}

// Free releases a block previously returned by Alloc. Freeing the null
// pointer is a no-op. Adjacent free neighbors are coalesced in both
// directions.
func (a *Allocator) Free(ptr Ptr) {
	if ptr == 0 {
		return
	}

	hdrptr := ptr - hdrSize
	bh := a.getHeader(hdrptr)
	a.stats.MemUsed -= int(bh.size) * hdrSize

	// Find the insertion point in the address-sorted circular list:
	// either strictly between two nodes, or across the wrap link where a
	// higher-addressed node points back to a lower-addressed one.
	p := a.freePointer
	ph := a.getHeader(p)
	for !(hdrptr > p && hdrptr < ph.next) {
		if p >= ph.next && (hdrptr > p || hdrptr < ph.next) {
			break
		}
		p = ph.next
		ph = a.getHeader(p)
	}

	// Combine with the upper neighbor when the freed block ends exactly
	// where it begins.
	if hdrptr+Ptr(bh.size)*hdrSize == ph.next {
		nexth := a.getHeader(ph.next)
		bh.size += nexth.size
		bh.next = nexth.next
	} else {
		bh.next = ph.next
	}
	a.putHeader(hdrptr, bh)

	// Combine with the lower neighbor when it ends exactly at the freed
	// block.
	if p+Ptr(ph.size)*hdrSize == hdrptr {
		ph.size += bh.size
		ph.next = bh.next
	} else {
		ph.next = hdrptr
	}
	a.putHeader(p, ph)

	a.freePointer = p
}

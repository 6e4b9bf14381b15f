package vmem

import (
	"fmt"
	"io"
)

// DumpBlocks writes a walk of the pool's block headers to w, from the
// first block up to the pool-tail cursor. Walking pulls headers through
// the page cache, so the dump itself may cause page swaps.
func (a *Allocator) DumpBlocks(w io.Writer) {
	fmt.Fprintf(w, "pool: free_pos=%d (%d bytes left)\n",
		a.poolFreePos, a.poolSize-a.poolFreePos)

	p := Ptr(startOffset + hdrSize)
	for p < a.poolFreePos {
		h := a.getHeader(p)
		fmt.Fprintf(w, "  block addr=%8d size=%8d units\n", p, h.size)
		if h.size == 0 {
			break
		}
		p += Ptr(h.size) * hdrSize
	}
}

// DumpFreeList writes the free list to w, starting at the roving free
// pointer and following the circular chain once around.
func (a *Allocator) DumpFreeList(w io.Writer) {
	if a.freePointer == 0 {
		fmt.Fprintln(w, "free list: empty")
		return
	}

	fmt.Fprintln(w, "free list:")
	p := a.freePointer
	for {
		h := a.getHeader(p)
		fmt.Fprintf(w, "  node addr=%8d size=%8d next=%8d\n", p, h.size, h.next)
		p = h.next
		if p == a.freePointer {
			break
		}
	}
}

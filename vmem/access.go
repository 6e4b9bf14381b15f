package vmem

import "fmt"

// checkRange validates a public access range.
func (a *Allocator) checkRange(p Ptr, size int) {
	if p == 0 {
		panic("vmem: access through null pointer")
	}
	if size <= 0 || int(p)+size > int(a.poolSize) {
		panic(fmt.Sprintf("vmem: access [%#x,+%d) outside pool of %d bytes", p, size, a.poolSize))
	}
}

// Read returns a view of [p, p+size). The slice aliases a page buffer and
// is valid only until the next allocator call; callers needing a durable
// view must take a lock.
//
// Locked buffers are consulted first: a lock fully containing the range
// serves it directly, and a partially overlapping lock is mirrored into
// the page cache before the paged fallback, so the freshest bytes win.
func (a *Allocator) Read(p Ptr, size int) []byte {
	a.checkRange(p, size)
	pend := p + Ptr(size)

	for _, pc := range a.classes() {
		for i := pc.lockedIndex; i != -1; i = pc.pages[i].next {
			pg := &pc.pages[i]
			beginOverlaps := p >= pg.start && p < pg.start+Ptr(pg.size)
			endOverlaps := p < pg.start && pend > pg.start

			if beginOverlaps {
				off := int(p - pg.start)
				if off+size <= pg.size {
					return pg.buf[off : off+size]
				}
			}

			if beginOverlaps || endOverlaps {
				// Partial fit: mirror the lock to a regular page so a
				// contiguous block can be returned below.
				a.pushRawData(pg.start, pg.buf[:pg.size])
			}
		}
	}

	return a.pullRawData(p, size, true, false)
}

// Write copies d to [p, p+len(d)).
//
// Locked buffers are consulted first; a lock fully containing the range
// absorbs the write, and partial overlaps receive their share before the
// whole write also goes through the page cache.
func (a *Allocator) Write(p Ptr, d []byte) {
	a.checkRange(p, len(d))
	size := len(d)
	pend := p + Ptr(size)

	for _, pc := range a.classes() {
		for i := pc.lockedIndex; i != -1; i = pc.pages[i].next {
			pg := &pc.pages[i]
			beginOverlaps := p >= pg.start && p < pg.start+Ptr(pg.size)
			endOverlaps := p < pg.start && pend > pg.start

			if !pg.dirty && (beginOverlaps || endOverlaps) {
				pg.dirty = true
			}

			if beginOverlaps {
				off := int(p - pg.start)
				if off+size <= pg.size {
					copy(pg.buf[off:off+size], d)
					return
				}
				copy(pg.buf[off:pg.size], d[:pg.size-off])
			} else if endOverlaps {
				off := int(pg.start - p)
				n := min(size-off, pg.size)
				copy(pg.buf[:n], d[off:off+n])
			}
		}
	}

	// The range was at most partially covered by locks; push the whole
	// write through the page cache as well.
	a.pushRawData(p, d)
}

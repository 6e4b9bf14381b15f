package vmem

import (
	"bytes"
	"fmt"
	"os"
)

// logSwaps enables page-swap logging, controlled by the VMEM_LOG_SWAP
// environment variable.
var logSwaps = os.Getenv("VMEM_LOG_SWAP") != ""

// Victim-selection ranks for pullRawData, best first. The scan may
// upgrade its candidate as it walks the big free chain.
type findState int

const (
	gotFull    findState = iota // existing page already maps the range
	gotPartial                  // page overlaps the range; must be cleared
	gotEmpty                    // unmapped page
	gotClean                    // mapped, not dirty (or out of clean skips)
	gotDirty                    // the FIFO rotation victim
	gotNone
)

// pullRawData maps [p, p+size) into a big page and returns the buffer
// window holding it. With forcestart the page must begin exactly at p.
// Partially overlapping pages encountered during selection are
// synchronized and invalidated, so no overlap survives the call.
func (a *Allocator) pullRawData(p Ptr, size int, readonly, forcestart bool) []byte {
	if p == 0 || p >= a.poolSize {
		panic(fmt.Sprintf("vmem: page pull outside pool: %#x", p))
	}
	if size > a.big.size {
		panic(fmt.Sprintf("vmem: page pull of %d bytes exceeds big page size %d", size, a.big.size))
	}

	pageindex := int8(-1)
	state := gotNone

	// A fully containing page ends the search: no other page can overlap
	// it. Otherwise rank the free chain: partial overlaps win (they must
	// be cleared out anyway), then empty slots, then clean pages, then
	// the dirty-FIFO victim.
	if idx := a.big.findFreePage(p, size, forcestart); idx != -1 {
		pageindex = idx
		state = gotFull
	} else {
		newpageend := p + Ptr(a.big.size)
		for i := a.big.freeIndex; i != -1; i = a.big.pages[i].next {
			pg := &a.big.pages[i]
			if pg.start != 0 {
				pageend := pg.start + Ptr(a.big.size)
				if (p >= pg.start && p < pageend) ||
					(newpageend >= pg.start && newpageend <= pageend) {
					pageindex = i
					a.syncBigPage(pg)
					pg.start = 0
					state = gotPartial
				}
			} else if state != gotPartial {
				pageindex = i
				state = gotEmpty
			}

			if state > gotClean {
				if !pg.dirty {
					pageindex = i
					state = gotClean
				} else {
					pg.cleanSkips++
					if pg.cleanSkips >= pageMaxCleanSkips {
						pageindex = i
						state = gotClean
					} else if state != gotDirty && i == a.nextPageToSwap {
						pageindex = i
						state = gotDirty
					}
				}
			}
		}
	}

	if pageindex == -1 {
		panic("vmem: no big page available for paged I/O")
	}
	pg := &a.big.pages[pageindex]

	if state != gotFull {
		if pg.start != 0 {
			a.syncBigPage(pg)
		}

		if state == gotDirty {
			a.nextPageToSwap = pg.next
			if a.nextPageToSwap == -1 {
				a.nextPageToSwap = a.big.freeIndex
			}
		} else {
			a.nextPageToSwap = a.big.freeIndex
		}

		pg.start = p
		rdsize := min(int(a.poolSize-pg.start), a.big.size)
		a.store.ReadAt(pg.buf[:rdsize], int64(pg.start))
		a.stats.BigPageReads++
		a.stats.BytesRead += int64(rdsize)

		if logSwaps {
			fmt.Fprintf(os.Stderr, "[VMEM] swap in: page %d <- %#x (%d bytes)\n",
				pageindex, p, rdsize)
		}
	}

	if !readonly {
		pg.dirty = true
	}

	off := int(p - pg.start)
	return pg.buf[off : off+size]
}

// pushRawData writes d to virtual memory through the page cache.
func (a *Allocator) pushRawData(p Ptr, d []byte) {
	buf := a.pullRawData(p, len(d), false, false)
	copy(buf, d)
}

// copyRawData reads [p, p+len(dst)) into dst, applying any overlap with
// mapped big pages before falling back to the backing store. A page is
// never smaller than the copy, so at most two pages can overlap.
func (a *Allocator) copyRawData(dst []byte, p Ptr) {
	size := len(dst)
	for i := a.big.freeIndex; i != -1 && size > 0; i = a.big.pages[i].next {
		pg := &a.big.pages[i]
		if pg.start == 0 {
			continue
		}
		pageend := pg.start + Ptr(a.big.size)
		if p >= pg.start && p < pageend {
			off := int(p - pg.start)
			n := min(size, pg.size-off)
			copy(dst[:n], pg.buf[off:off+n])
			dst = dst[n:]
			p += Ptr(n)
			size -= n
		} else if p < pg.start && p+Ptr(size) > pg.start {
			off := int(pg.start - p)
			n := min(size-off, pg.size)
			copy(dst[off:off+n], pg.buf[:n])
			dst = dst[:off]
			size = off
		}
	}

	if size > 0 {
		a.store.ReadAt(dst[:size], int64(p))
		a.stats.BytesRead += int64(size)
	}
}

// saveRawData is the reverse of copyRawData: it writes src to
// [p, p+len(src)), updating any overlapping mapped big page in place.
// A page is only marked dirty when the bytes actually change, so a
// write-back of unchanged data stays free.
func (a *Allocator) saveRawData(src []byte, p Ptr) {
	size := len(src)
	for i := a.big.freeIndex; i != -1 && size > 0; i = a.big.pages[i].next {
		pg := &a.big.pages[i]
		if pg.start == 0 {
			continue
		}
		pageend := pg.start + Ptr(a.big.size)
		if p >= pg.start && p < pageend {
			off := int(p - pg.start)
			n := min(size, pg.size-off)
			if pg.dirty || !bytes.Equal(pg.buf[off:off+n], src[:n]) {
				copy(pg.buf[off:off+n], src[:n])
				pg.dirty = true
			}
			src = src[n:]
			p += Ptr(n)
			size -= n
		} else if p < pg.start && p+Ptr(size) > pg.start {
			off := int(pg.start - p)
			n := min(size-off, pg.size)
			if pg.dirty || !bytes.Equal(pg.buf[:n], src[off:off+n]) {
				copy(pg.buf[:n], src[off:off+n])
				pg.dirty = true
			}
			src = src[:off]
			size = off
		}
	}

	if size > 0 {
		a.store.WriteAt(src[:size], int64(p))
		a.stats.BytesWritten += int64(size)
	}
}

// syncBigPage writes a dirty big page back to the store and clears its
// dirty state. The whole class-sized buffer is written, clamped to the
// pool end.
func (a *Allocator) syncBigPage(pg *page) {
	if pg.start == 0 {
		panic("vmem: sync of unmapped page")
	}
	if pg.dirty {
		wrsize := min(int(a.poolSize-pg.start), a.big.size)
		a.store.WriteAt(pg.buf[:wrsize], int64(pg.start))
		pg.dirty = false
		pg.cleanSkips = 0
		a.stats.BigPageWrites++
		a.stats.BytesWritten += int64(wrsize)

		if logSwaps {
			fmt.Fprintf(os.Stderr, "[VMEM] swap out: %#x (%d bytes)\n", pg.start, wrsize)
		}
	}
}

// syncLockedPage pushes a dirty locked buffer into the page cache (and
// through it the store), so paged I/O observes the pinned bytes.
func (a *Allocator) syncLockedPage(pg *page) {
	if pg.start == 0 {
		panic("vmem: sync of unmapped page")
	}
	if pg.dirty {
		a.saveRawData(pg.buf[:pg.size], pg.start)
	}
}

// Flush writes every dirty big page back to the store. Locked pages are
// not flushed; releasing their locks is the caller's responsibility.
func (a *Allocator) Flush() {
	for i := a.big.freeIndex; i != -1; i = a.big.pages[i].next {
		if a.big.pages[i].start != 0 {
			a.syncBigPage(&a.big.pages[i])
		}
	}
}

// ClearPages flushes and invalidates every big page on the free chain,
// forcing a full reload on the next access. Locked big pages are left as
// they are.
func (a *Allocator) ClearPages() {
	for i := a.big.freeIndex; i != -1; i = a.big.pages[i].next {
		if a.big.pages[i].start != 0 {
			a.syncBigPage(&a.big.pages[i])
			a.big.pages[i].start = 0
		}
	}
}

// WriteZeros streams n zero bytes to the store starting at the given
// address, using the first big page buffer as scratch. Only call it while
// the page cache is cold, e.g. right after Start to initialize the pool.
func (a *Allocator) WriteZeros(start Ptr, n int) {
	if a.big.pages[0].start != 0 {
		panic("vmem: WriteZeros requires a cold page cache")
	}
	buf := a.big.pages[0].buf
	clear(buf)
	for i := 0; i < n; i += a.big.size {
		a.store.WriteAt(buf[:min(n-i, a.big.size)], int64(start)+int64(i))
	}
}

package vmem

import "fmt"

// DataLock pins [ptr, ptr+size) into a page buffer and returns a slice
// that stays valid until ReleaseLock. The smallest page class that can
// hold size is preferred; small and medium slots are cheaper than taking
// a big page out of I/O duty.
//
// Overlap with existing locks is resolved elastically: the request
// shrinks when its tail would run into a pinned lock, and a pinned lock
// whose start lies inside the request donates its overlap bytes (they are
// the authoritative version) and is shrunk to its prefix. Overlapping
// parked locks are simply evicted. The returned slice may therefore be
// shorter than requested; its length is the actual locked span.
//
// Returns ErrNoLockSlots when every class is out of slots.
func (a *Allocator) DataLock(ptr Ptr, size int, readonly bool) ([]byte, error) {
	if ptr == 0 {
		panic("vmem: lock of null pointer")
	}
	if size <= 0 || size > a.big.size {
		panic(fmt.Sprintf("vmem: lock of %d bytes exceeds big page size %d", size, a.big.size))
	}

	var pinfo, secpinfo *pageClass
	switch {
	case size <= a.small.size:
		pinfo = &a.small
	case size <= a.medium.size:
		pinfo = &a.medium
	default:
		pinfo = &a.big
	}

	classes := a.classes()
	pageindex, oldlockindex, secoldlockindex := int8(-1), int8(-1), int8(-1)
	fixBeginningOverlap, done, shrunk := false, false, false

	// Sweep every locked chain: reuse or adopt a buffer already mapping
	// ptr, shrink the request around pinned locks, evict parked ones in
	// the way, and remember reclaimable slots for later.
	for ci := 0; ci < 3 && !done; ci++ {
		pc := classes[ci]
		for i := pc.lockedIndex; i != -1; {
			pg := &pc.pages[i]
			if pg.start == ptr {
				if pinfo != pc {
					if pg.locks == 0 {
						// Parked lock of a different class; evict it.
						i = a.freeLockedPage(pc, i)
						continue
					}
					// Still pinned in another, presumably larger, class:
					// adopt it. The adopted buffer may be smaller than
					// asked if the lock was resized earlier.
					if pc.size < pinfo.size {
						size = min(size, pc.size)
					}
					pinfo = pc
				} else if pg.size > size {
					// Oversized reuse: write the excess tail back and
					// shrink. Shrinking cannot introduce overlap.
					a.saveRawData(pg.buf[size:pg.size], pg.start+Ptr(size))
					pg.size = size
				}

				pageindex = i
				if pg.size == size {
					done = true // no overlap possible once sizes agree
					break
				}
			} else {
				endOverlaps := ptr < pg.start && ptr+Ptr(size) > pg.start
				beginOverlaps := ptr > pg.start && ptr < pg.start+Ptr(pg.size)

				if pg.locks > 0 {
					if endOverlaps {
						size = int(pg.start - ptr) // shrink so it fits
						shrunk = true
					} else if beginOverlaps {
						// Resolve after the slot is chosen: the chosen
						// slot itself might be an overlap candidate.
						fixBeginningOverlap = true
					}
				} else {
					if endOverlaps || beginOverlaps {
						// Parked pages in the way may never be reused;
						// evict rather than shrink around them.
						i = a.freeLockedPage(pc, i)
						continue
					}
					if oldlockindex == -1 {
						if pinfo == pc {
							oldlockindex = i
						} else if secoldlockindex == -1 && pinfo.size < pc.size {
							// Fallback slot in a larger class.
							secoldlockindex = i
							secpinfo = pc
						}
					}
				}
			}

			i = pg.next
		}
	}

	// A request shrunk below the medium size no longer needs a precious
	// big page; migrate down when a smaller slot exists.
	if shrunk && size <= a.medium.size && pinfo == &a.big &&
		(pageindex == -1 || a.big.pages[pageindex].locks == 0) {
		oldpinfo := pinfo

		if size <= a.small.size {
			if a.small.freeIndex != -1 {
				pinfo = &a.small
			} else if idx := a.small.findUnusedLockedPage(); idx != -1 {
				pinfo = &a.small
				oldlockindex = idx
			}
		}
		if oldpinfo == pinfo {
			if a.medium.freeIndex != -1 {
				pinfo = &a.medium
			} else if idx := a.medium.findUnusedLockedPage(); idx != -1 {
				pinfo = &a.medium
				oldlockindex = idx
			}
		}

		if pinfo != oldpinfo && pageindex != -1 {
			a.freeLockedPage(oldpinfo, pageindex)
			pageindex = -1
		}
	}

	if pageindex == -1 {
		// No slot chosen yet: fall back to a larger class with a free
		// slot before giving up on the preferred one.
		if pinfo.freeIndex == -1 && oldlockindex == -1 {
			if pinfo.size < a.medium.size && a.medium.freeIndex != -1 {
				pinfo = &a.medium
			} else if pinfo.size < a.big.size && a.big.freeIndex != -1 {
				pinfo = &a.big
			}
		}

		copyoffset := 0
		if pinfo.freeIndex != -1 {
			if pinfo == &a.big {
				copyoffset = size // lockPage already paged the data in
			}
			pageindex = a.lockPage(pinfo, ptr, size)
		} else {
			if oldlockindex == -1 && secoldlockindex != -1 {
				pinfo = secpinfo
				oldlockindex = secoldlockindex
			}
			if oldlockindex == -1 {
				return nil, ErrNoLockSlots
			}
			a.syncLockedPage(&pinfo.pages[oldlockindex])
			pinfo.pages[oldlockindex].dirty = false
			pageindex = oldlockindex
		}

		if fixBeginningOverlap {
			// Pinned locks whose start lies inside the new range donate
			// their overlap (the freshest copy of those bytes) and keep
			// only their prefix.
			for ci := 0; ci < 3; ci++ {
				pc := classes[ci]
				for i := pc.lockedIndex; i != -1; i = pc.pages[i].next {
					pg := &pc.pages[i]
					if (i != pageindex || pc != pinfo) &&
						ptr > pg.start && ptr < pg.start+Ptr(pg.size) {
						offsetold := int(ptr - pg.start)
						copysize := min(pg.size-offsetold, size)
						copy(pinfo.pages[pageindex].buf[:copysize],
							pg.buf[offsetold:offsetold+copysize])
						copyoffset = max(copyoffset, copysize)
						pg.size = offsetold // shrink so the new lock fits
					}
				}
			}
		}

		if copyoffset < size {
			a.copyRawData(pinfo.pages[pageindex].buf[copyoffset:size], ptr+Ptr(copyoffset))
		}
		pinfo.pages[pageindex].start = ptr
	} else if size > pinfo.pages[pageindex].size {
		// Reused buffer grew back: previous overlaps are gone, or it once
		// held a smaller span. Load the missing tail.
		off := pinfo.pages[pageindex].size
		a.copyRawData(pinfo.pages[pageindex].buf[off:size], ptr+Ptr(off))
	}

	pg := &pinfo.pages[pageindex]
	if !pg.dirty {
		pg.dirty = !readonly
	}
	pg.locks++
	pg.size = size
	return pg.buf[:size], nil
}

// FittingLock pins ptr into a page buffer without ever resizing an
// existing lock. If ptr already lies inside a locked buffer that buffer
// is reused and the span shrinks to what it can serve; if the requested
// range would run into a pinned lock the span shrinks to the gap. The
// returned span is the slice length, also returned for convenience.
//
// Returns ErrNoLockSlots when no class has a slot left.
func (a *Allocator) FittingLock(ptr Ptr, size int, readonly bool) ([]byte, int, error) {
	if ptr == 0 {
		panic("vmem: lock of null pointer")
	}
	if size <= 0 {
		panic("vmem: lock of non-positive size")
	}
	size = min(size, a.big.size)

	classes := a.classes()
	unused := [3]int8{-1, -1, -1}
	plistindex, pageindex := -1, int8(-1)
	done := false

	for ci := 0; ci < 3 && !done; ci++ {
		pc := classes[ci]
		for i := pc.lockedIndex; i != -1; {
			pg := &pc.pages[i]

			// ptr inside this lock: reuse it as-is.
			if ptr >= pg.start && int(ptr-pg.start) < pg.size {
				plistindex = ci
				pageindex = i
				done = true
				break
			}

			// Range would run into this lock.
			if ptr < pg.start && ptr+Ptr(size) > pg.start {
				if pg.locks == 0 {
					i = a.freeLockedPage(pc, i)
					continue
				}
				size = int(pg.start - ptr) // shrink to the gap
			}

			if pg.locks == 0 && unused[ci] == -1 {
				unused[ci] = i
			}
			i = pg.next
		}
	}

	offset := 0
	if pageindex == -1 {
		// Pick a class with capacity whose pages can hold the span; keep
		// a smaller one in reserve in case nothing fits.
		secpli := -1
		for ci := 0; ci < 3; ci++ {
			if classes[ci].freeIndex != -1 || unused[ci] != -1 {
				if size <= classes[ci].size {
					plistindex = ci
				} else {
					secpli = ci
				}
			}
		}
		if plistindex == -1 && secpli != -1 {
			plistindex = secpli
			size = classes[plistindex].size // truncate to what fits
		}
		if plistindex == -1 {
			return nil, 0, ErrNoLockSlots
		}

		pc := classes[plistindex]
		syncpool := true
		if pc.freeIndex != -1 {
			pageindex = a.lockPage(pc, ptr, size)
			syncpool = pc != &a.big // big pages load inside lockPage
		} else {
			pageindex = unused[plistindex]
			a.syncLockedPage(&pc.pages[pageindex])
			pc.pages[pageindex].dirty = false
		}

		if syncpool {
			a.copyRawData(pc.pages[pageindex].buf[:size], ptr)
		}
		pc.pages[pageindex].start = ptr
		pc.pages[pageindex].size = size
	} else {
		pc := classes[plistindex]
		// The reused buffer may start before ptr; serve the tail.
		offset = int(ptr - pc.pages[pageindex].start)
		size = min(size, pc.pages[pageindex].size-offset)
	}

	pg := &classes[plistindex].pages[pageindex]
	pg.locks++
	if !pg.dirty {
		pg.dirty = !readonly
	}
	return pg.buf[offset : offset+size], size, nil
}

// ReleaseLock unpins the lock holding ptr. When the last pin on a big
// page drops, the slot returns to the free chain and resumes paged-I/O
// duty; small and medium slots stay parked in the locked chain as hot
// candidates for the next matching lock.
func (a *Allocator) ReleaseLock(ptr Ptr) {
	pc, index := a.findLockedPageAny(ptr)
	if index == -1 || pc.pages[index].locks == 0 {
		panic(fmt.Sprintf("vmem: release of address %#x that is not locked", ptr))
	}
	pc.pages[index].locks--
	if pc.pages[index].locks == 0 {
		if i := a.big.findLockedPage(ptr); i != -1 {
			a.freeLockedPage(&a.big, i)
		}
	}
}

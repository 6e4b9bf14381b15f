// Package vmem implements a paged virtual-memory allocator over a slow,
// large backing store.
//
// # Overview
//
// The allocator presents a flat virtual address space of a configurable
// size, sub-divided into variably-sized blocks by a first-fit free list.
// Every access is mediated by a small, fixed pool of in-RAM page buffers
// that are paged in and out of the backing store on demand, with dirty
// tracking and write-back. The design targets hosts whose RAM is a tiny
// fraction of the pool: a few one-kilobyte buffers are enough to address
// gigabytes of external storage.
//
// # Key Types
//
//   - Allocator: the allocator itself, owning the page cache, the lock
//     subsystem and the free list
//   - Config: pool size, page class geometry and backing store
//   - Ptr: a virtual address; 0 is the null pointer
//   - Stats: paging and allocation counters
//
// # Addresses and Blocks
//
// Alloc returns a Ptr into the pool; Free releases it. Block headers live
// inside the virtual pool itself, immediately before each payload, and
// free blocks form an address-sorted circular list threaded through those
// headers. The list's head sentinel is kept in RAM.
//
// # Reading and Writing
//
// Read returns a slice aliasing a page buffer. The slice is volatile: it
// is valid only until the next allocator call, because any call may swap
// the underlying page. Write copies bytes in and marks the page dirty;
// dirty pages are written back when evicted, or eagerly via Flush.
//
// # Locks
//
// DataLock and FittingLock pin a virtual range into a buffer and return a
// slice that stays valid until ReleaseLock. Page buffers come in three
// size classes; only the big class performs general paged I/O, the small
// and medium classes exist as cheaper lock destinations. DataLock may
// shrink other locks to resolve overlap; FittingLock instead shrinks its
// own request and never disturbs an existing lock.
//
// # Usage
//
//	cfg := vmem.DefaultConfig
//	cfg.Store = store.NewMem(cfg.PoolSize)
//
//	a, err := vmem.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := a.Start(); err != nil {
//	    return err
//	}
//	defer a.Stop()
//
//	p, err := a.Alloc(128)
//	if err != nil {
//	    return err
//	}
//	a.Write(p, []byte("hello"))
//	data := a.Read(p, 5) // volatile view
//
// # Thread Safety
//
// The allocator is strictly single-threaded and not re-entrant. Callers
// must serialize access externally.
package vmem

package store

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// cachedChunk is the caching granularity of Cached. The pool size must be
// a multiple of it.
const cachedChunk = 4096

// Cached is a read-through chunk cache in front of another Store.
//
// Reads are served from an in-RAM ristretto cache at chunk granularity
// and fall through to the inner store on miss. Writes go straight to the
// inner store and invalidate the chunks they touch, so a later read
// always observes them. Useful in front of high-latency media such as
// LevelDB or network-backed stores.
type Cached struct {
	inner Store
	cache *ristretto.Cache[int64, []byte]
}

// NewCached wraps inner with a cache holding at most maxBytes of chunks.
func NewCached(inner Store, maxBytes int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
		NumCounters: 10 * maxBytes / cachedChunk,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("store: create chunk cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (s *Cached) Start() error { return s.inner.Start() }

func (s *Cached) Stop() error {
	s.cache.Close()
	return s.inner.Stop()
}

func (s *Cached) ReadAt(dst []byte, addr int64) {
	for len(dst) > 0 {
		index := addr / cachedChunk
		off := int(addr % cachedChunk)
		n := min(len(dst), cachedChunk-off)

		rec, ok := s.cache.Get(index)
		if !ok {
			rec = make([]byte, cachedChunk)
			s.inner.ReadAt(rec, index*cachedChunk)
			s.cache.Set(index, rec, cachedChunk)
		}
		copy(dst[:n], rec[off:off+n])

		dst = dst[n:]
		addr += int64(n)
	}
}

func (s *Cached) WriteAt(src []byte, addr int64) {
	s.inner.WriteAt(src, addr)

	first := addr / cachedChunk
	last := (addr + int64(len(src)) - 1) / cachedChunk
	for index := first; index <= last; index++ {
		s.cache.Del(index)
	}
	// Del goes through the same buffered pipeline as Set; wait for it so
	// a read issued right after this write cannot see stale chunks.
	s.cache.Wait()
}

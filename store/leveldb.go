package store

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// leveldbChunk is the record granularity of the LevelDB store. Pool bytes
// are sliced into fixed chunks keyed by chunk index; a missing record
// reads as zeros, so the pool never has to be pre-initialized.
const leveldbChunk = 4096

// LevelDB is a Store that keeps the pool in a LevelDB database.
//
// It trades latency for durability and capacity: the pool can be far
// larger than RAM or any single file the host wants to manage, and
// surviving data is compacted and checksummed by the database. Wrap it in
// Cached when read latency matters.
type LevelDB struct {
	path string
	db   *leveldb.DB
}

// NewLevelDB creates a LevelDB-backed store rooted at path.
func NewLevelDB(path string) *LevelDB {
	return &LevelDB{path: path}
}

func (s *LevelDB) Start() error {
	db, err := leveldb.OpenFile(s.path, nil)
	if err != nil {
		return fmt.Errorf("store: open leveldb pool: %w", err)
	}
	s.db = db
	return nil
}

func (s *LevelDB) Stop() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func chunkKey(index int64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(index))
	return key[:]
}

func (s *LevelDB) ReadAt(dst []byte, addr int64) {
	for len(dst) > 0 {
		index := addr / leveldbChunk
		off := int(addr % leveldbChunk)
		n := min(len(dst), leveldbChunk-off)

		rec, err := s.db.Get(chunkKey(index), nil)
		switch err {
		case nil:
			copy(dst[:n], rec[off:off+n])
		case leveldb.ErrNotFound:
			clear(dst[:n])
		default:
			panic(fmt.Sprintf("store: leveldb get chunk %d: %v", index, err))
		}

		dst = dst[n:]
		addr += int64(n)
	}
}

func (s *LevelDB) WriteAt(src []byte, addr int64) {
	batch := new(leveldb.Batch)
	for len(src) > 0 {
		index := addr / leveldbChunk
		off := int(addr % leveldbChunk)
		n := min(len(src), leveldbChunk-off)

		var rec []byte
		if off == 0 && n == leveldbChunk {
			rec = src[:n]
		} else {
			// Partial chunk: read-modify-write.
			rec = make([]byte, leveldbChunk)
			old, err := s.db.Get(chunkKey(index), nil)
			switch err {
			case nil:
				copy(rec, old)
			case leveldb.ErrNotFound:
			default:
				panic(fmt.Sprintf("store: leveldb get chunk %d: %v", index, err))
			}
			copy(rec[off:off+n], src[:n])
		}
		batch.Put(chunkKey(index), rec)

		src = src[n:]
		addr += int64(n)
	}
	if err := s.db.Write(batch, nil); err != nil {
		panic(fmt.Sprintf("store: leveldb write batch: %v", err))
	}
}

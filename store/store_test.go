package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPoolSize = 64 * 1024

// roundTrip exercises a started store with overlapping, straddling and
// re-read patterns common to the paging engine.
func roundTrip(t *testing.T, s Store) {
	t.Helper()

	// Untouched ranges read as zeros.
	got := make([]byte, 512)
	s.ReadAt(got, 4096-256)
	require.Equal(t, make([]byte, 512), got)

	// Write a pattern straddling a 4K chunk boundary.
	pattern := make([]byte, 512)
	for i := range pattern {
		pattern[i] = byte(i * 7)
	}
	s.WriteAt(pattern, 4096-256)

	s.ReadAt(got, 4096-256)
	require.Equal(t, pattern, got)

	// Overwrite part of it and re-read the whole range.
	s.WriteAt([]byte("overwrite"), 4096-4)
	s.ReadAt(got, 4096-256)
	require.Equal(t, pattern[:252], got[:252])
	require.Equal(t, []byte("overwrite"), got[252:261])

	// Short read at an odd offset.
	one := make([]byte, 1)
	s.ReadAt(one, 4096-256+3)
	require.Equal(t, pattern[3], one[0])
}

func Test_Mem(t *testing.T) {
	s := NewMem(testPoolSize)
	require.NoError(t, s.Start())
	roundTrip(t, s)
	require.NoError(t, s.Stop())

	// The pool survives Stop; a fresh session sees the old bytes.
	require.NoError(t, s.Start())
	got := make([]byte, 9)
	s.ReadAt(got, 4096-4)
	require.Equal(t, []byte("overwrite"), got)
	require.NoError(t, s.Stop())
}

func Test_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.bin")
	s := NewFile(path, testPoolSize)
	require.NoError(t, s.Start())
	roundTrip(t, s)
	require.NoError(t, s.Stop())

	// Reopen and verify persistence.
	s2 := NewFile(path, testPoolSize)
	require.NoError(t, s2.Start())
	got := make([]byte, 9)
	s2.ReadAt(got, 4096-4)
	require.Equal(t, []byte("overwrite"), got)
	require.NoError(t, s2.Stop())
}

func Test_TempFile(t *testing.T) {
	s := NewTempFile(testPoolSize)
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Path())
	roundTrip(t, s)
	require.NoError(t, s.Stop())
}

func Test_MMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.bin")
	s := NewMMap(path, testPoolSize)
	require.NoError(t, s.Start())
	roundTrip(t, s)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Stop())

	// Stop syncs the mapping; the bytes must be in the file.
	s2 := NewMMap(path, testPoolSize)
	require.NoError(t, s2.Start())
	got := make([]byte, 9)
	s2.ReadAt(got, 4096-4)
	require.Equal(t, []byte("overwrite"), got)
	require.NoError(t, s2.Stop())
}

func Test_LevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.ldb")
	s := NewLevelDB(path)
	require.NoError(t, s.Start())
	roundTrip(t, s)

	// Spanning write across three chunks.
	big := bytes.Repeat([]byte{0xAB}, 3*leveldbChunk)
	s.WriteAt(big, leveldbChunk/2)
	got := make([]byte, len(big))
	s.ReadAt(got, leveldbChunk/2)
	require.Equal(t, big, got)

	require.NoError(t, s.Stop())

	// Persistence across sessions.
	s2 := NewLevelDB(path)
	require.NoError(t, s2.Start())
	one := make([]byte, 1)
	s2.ReadAt(one, leveldbChunk/2)
	require.Equal(t, byte(0xAB), one[0])
	require.NoError(t, s2.Stop())
}

func Test_Cached(t *testing.T) {
	inner := NewMem(testPoolSize)
	s, err := NewCached(inner, 1<<20)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	roundTrip(t, s)

	// Populate the cache, then write through and verify the stale chunk
	// is not served.
	warm := make([]byte, cachedChunk)
	s.ReadAt(warm, 8192)
	s.WriteAt([]byte{1, 2, 3, 4}, 8192+100)
	got := make([]byte, 4)
	s.ReadAt(got, 8192+100)
	require.Equal(t, []byte{1, 2, 3, 4}, got)

	// Writes reach the inner store directly.
	innerGot := make([]byte, 4)
	inner.ReadAt(innerGot, 8192+100)
	require.Equal(t, []byte{1, 2, 3, 4}, innerGot)

	require.NoError(t, s.Stop())
}

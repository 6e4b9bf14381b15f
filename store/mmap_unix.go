//go:build unix

package store

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// MMap is a Store backed by a memory-mapped file.
//
// The whole pool is mapped read-write and shared, so ReadAt and WriteAt
// are plain copies. Sync flushes the mapping with msync; Stop syncs,
// unmaps and closes the file.
type MMap struct {
	path string
	size int64
	f    *os.File
	data []byte
}

// NewMMap creates a memory-mapped store of the given size at path. The
// file is created and extended to size on Start.
func NewMMap(path string, size int64) *MMap {
	return &MMap{path: path, size: size}
}

func (s *MMap) Start() error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("store: open pool file: %w", err)
	}
	if err := f.Truncate(s.size); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: size pool file: %w", err)
	}
	data, err := syscall.Mmap(
		int(f.Fd()),
		0,
		int(s.size),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("store: mmap pool file: %w", err)
	}
	s.f = f
	s.data = data
	return nil
}

func (s *MMap) Stop() error {
	if s.f == nil {
		return nil
	}
	syncErr := s.Sync()
	if err := syscall.Munmap(s.data); err != nil && syncErr == nil {
		syncErr = err
	}
	s.data = nil
	if err := s.f.Close(); err != nil && syncErr == nil {
		syncErr = err
	}
	s.f = nil
	return syncErr
}

func (s *MMap) ReadAt(dst []byte, addr int64) {
	copy(dst, s.data[addr:])
}

func (s *MMap) WriteAt(src []byte, addr int64) {
	copy(s.data[addr:], src)
}

// Sync flushes the mapping to the file.
func (s *MMap) Sync() error {
	return unix.Msync(s.data, unix.MS_SYNC)
}

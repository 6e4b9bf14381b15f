//go:build !unix

package store

import (
	"fmt"
	"os"
)

// MMap falls back to plain file I/O on platforms without mmap support.
type MMap struct {
	path string
	size int64
	f    *os.File
}

// NewMMap creates a file store of the given size at path.
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
	s.f = f
	return nil
}

func (s *MMap) Stop() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *MMap) ReadAt(dst []byte, addr int64) {
	if _, err := s.f.ReadAt(dst, addr); err != nil {
		panic(fmt.Sprintf("store: read %d bytes at %d: %v", len(dst), addr, err))
	}
}

func (s *MMap) WriteAt(src []byte, addr int64) {
	if _, err := s.f.WriteAt(src, addr); err != nil {
		panic(fmt.Sprintf("store: write %d bytes at %d: %v", len(src), addr, err))
	}
}

// Sync flushes the file.
func (s *MMap) Sync() error {
	return s.f.Sync()
}

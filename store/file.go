package store

import (
	"fmt"
	"os"
)

// File is a Store backed by a regular file.
//
// Start creates the file if needed and extends it to the pool size, so
// reads of never-written ranges return zeros. With an empty path the
// store uses a temporary file that is removed on Stop.
type File struct {
	path string
	size int64
	f    *os.File
	temp bool
}

// NewFile creates a file-backed store of the given size at path.
func NewFile(path string, size int64) *File {
	return &File{path: path, size: size}
}

// NewTempFile creates a file-backed store of the given size in a
// temporary file, removed on Stop.
func NewTempFile(size int64) *File {
	return &File{size: size, temp: true}
}

func (s *File) Start() error {
	var err error
	if s.temp {
		s.f, err = os.CreateTemp("", "vmem-pool-*")
		if err != nil {
			return fmt.Errorf("store: create pool file: %w", err)
		}
		s.path = s.f.Name()
	} else {
		s.f, err = os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("store: open pool file: %w", err)
		}
	}
	if err := s.f.Truncate(s.size); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("store: size pool file: %w", err)
	}
	return nil
}

func (s *File) Stop() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if s.temp {
		_ = os.Remove(s.path)
	}
	return err
}

func (s *File) ReadAt(dst []byte, addr int64) {
	if _, err := s.f.ReadAt(dst, addr); err != nil {
		panic(fmt.Sprintf("store: read %d bytes at %d: %v", len(dst), addr, err))
	}
}

func (s *File) WriteAt(src []byte, addr int64) {
	if _, err := s.f.WriteAt(src, addr); err != nil {
		panic(fmt.Sprintf("store: write %d bytes at %d: %v", len(src), addr, err))
	}
}

// Path returns the location of the pool file.
func (s *File) Path() string { return s.path }

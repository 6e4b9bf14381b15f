package store

// Mem is a Store backed by a byte slice in regular RAM.
//
// It has no dependencies and is mainly provided for testing. The slice
// survives allocator restarts, so a new allocator started over the same
// Mem observes whatever a previous session flushed.
type Mem struct {
	data []byte
}

// NewMem creates an in-RAM store of the given size, zero-filled.
func NewMem(size int) *Mem {
	return &Mem{data: make([]byte, size)}
}

func (m *Mem) Start() error { return nil }
func (m *Mem) Stop() error  { return nil }

func (m *Mem) ReadAt(dst []byte, addr int64) {
	copy(dst, m.data[addr:])
}

func (m *Mem) WriteAt(src []byte, addr int64) {
	copy(m.data[addr:], src)
}

// Bytes exposes the raw pool, for tests and diagnostics.
func (m *Mem) Bytes() []byte { return m.data }

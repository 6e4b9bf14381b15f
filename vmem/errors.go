package vmem

import "errors"

var (
	// ErrNoSpace indicates the virtual pool is exhausted.
	ErrNoSpace = errors.New("vmem: virtual pool exhausted")

	// ErrNoLockSlots indicates every page class is out of lockable slots.
	ErrNoLockSlots = errors.New("vmem: no lock pages available")
)

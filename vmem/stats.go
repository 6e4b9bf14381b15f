package vmem

// Stats holds paging and allocation counters, reset by Start.
type Stats struct {
	// MemUsed is the number of pool bytes currently held by live blocks,
	// headers included. MaxMemUsed is its high-water mark.
	MemUsed    int
	MaxMemUsed int

	// BigPageReads and BigPageWrites count page swaps in and out.
	BigPageReads  int
	BigPageWrites int

	// BytesRead and BytesWritten count backing-store traffic caused by
	// page swaps and fan-out I/O.
	BytesRead    int64
	BytesWritten int64
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats { return a.stats }

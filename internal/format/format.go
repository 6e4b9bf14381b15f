// Package format defines the on-store binary layout of virtual-memory
// block headers.
//
// Block headers are two little-endian uint32 words: the block size in
// header units, followed by the virtual address of the next free block.
// The header is self-counting: a block of size N units occupies
// N*HeaderSize bytes on the store, the first HeaderSize of which is the
// header itself.
package format

import "encoding/binary"

// HeaderSize is the encoded size of a block header in bytes. It is also
// the allocation quantum: block sizes are expressed in units of it.
const HeaderSize = 8

const (
	sizeOffset = 0
	nextOffset = 4
)

// PutU32 writes a uint32 value to the buffer at the specified offset in
// little-endian byte order.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in
// little-endian byte order.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// Header is the decoded form of a block header.
//
// Size counts header units, not bytes. Next is only meaningful for blocks
// on the free list; live blocks carry whatever value was last stored.
type Header struct {
	Size uint32
	Next uint32
}

// DecodeHeader decodes a header from the first HeaderSize bytes of b.
func DecodeHeader(b []byte) Header {
	return Header{
		Size: ReadU32(b, sizeOffset),
		Next: ReadU32(b, nextOffset),
	}
}

// Encode writes the header into the first HeaderSize bytes of b.
func (h Header) Encode(b []byte) {
	PutU32(b, sizeOffset, h.Size)
	PutU32(b, nextOffset, h.Next)
}

// Units returns the number of header units needed to hold a payload of n
// bytes plus the block's own header.
func Units(n int) uint32 {
	return uint32((n+HeaderSize-1)/HeaderSize) + 1
}

package wbfs

import "encoding/binary"

// freeBitmap is the container-wide free-block bitmap: one bit per WBFS
// block, little-endian 32-bit words, 1 meaning free (spec section 6).
type freeBitmap struct {
	words []uint32
	nBits uint32
}

func newFreeBitmap(nBlocks uint32) *freeBitmap {
	nWords := ceilDiv(nBlocks, 32)
	words := make([]uint32, nWords)
	for i := range words {
		words[i] = 0xffffffff
	}
	b := &freeBitmap{words: words, nBits: nBlocks}
	// Bits beyond nBlocks in the final word are meaningless padding; clear
	// them so popcount and scans never see phantom free blocks.
	for i := nBlocks; i < nWords*32; i++ {
		b.clearBit(i)
	}
	return b
}

func (b *freeBitmap) clearBit(i uint32) {
	b.words[i/32] &^= 1 << (i % 32)
}

func (b *freeBitmap) setBit(i uint32) {
	b.words[i/32] |= 1 << (i % 32)
}

// Free reports whether block i is marked free.
func (b *freeBitmap) Free(i uint32) bool {
	if i >= b.nBits {
		return false
	}
	return b.words[i/32]&(1<<(i%32)) != 0
}

// MarkFree marks block i free.
func (b *freeBitmap) MarkFree(i uint32) {
	if i < b.nBits {
		b.setBit(i)
	}
}

// MarkUsed marks block i used.
func (b *freeBitmap) MarkUsed(i uint32) {
	if i < b.nBits {
		b.clearBit(i)
	}
}

// PopCount returns the number of free blocks.
func (b *freeBitmap) PopCount() int {
	n := 0
	for _, w := range b.words {
		for w != 0 {
			w &= w - 1
			n++
		}
	}
	return n
}

// AllocateOne finds and marks used the lowest-indexed free block at or
// above start, per spec 4.D step 3's low-to-high allocation scan.
func (b *freeBitmap) AllocateOne(start uint32) (uint32, bool) {
	for i := start; i < b.nBits; i++ {
		if b.Free(i) {
			b.MarkUsed(i)
			return i, true
		}
	}
	return 0, false
}

func (b *freeBitmap) marshal() []byte {
	buf := make([]byte, len(b.words)*4)
	for i, w := range b.words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func unmarshalFreeBitmap(buf []byte, nBlocks uint32) *freeBitmap {
	nWords := ceilDiv(nBlocks, 32)
	b := &freeBitmap{words: make([]uint32, nWords), nBits: nBlocks}
	for i := range b.words {
		if (i+1)*4 <= len(buf) {
			b.words[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	}
	return b
}

// clone returns an independent copy, used to snapshot state before a
// mutation that might need to be rolled back.
func (b *freeBitmap) clone() *freeBitmap {
	words := make([]uint32, len(b.words))
	copy(words, b.words)
	return &freeBitmap{words: words, nBits: b.nBits}
}

package wbfs

import "encoding/binary"

// slot is one disc-table entry: a 256-byte Wii disc header followed by a
// big-endian block map, one 2-byte WBFS-block index per potential
// Wii-sector group (spec section 6).
type slot struct {
	header   [DiscHeaderSize]byte
	blockMap []uint16
}

func newSlot(nBlocks uint32) *slot {
	return &slot{blockMap: make([]uint16, nBlocks)}
}

// Occupied reports whether the slot holds a disc, per spec invariant 3.
func (s *slot) Occupied() bool { return s.header[0] != 0 }

// GameID returns the disc's 6-byte ASCII identity.
func (s *slot) GameID() string { return string(s.header[0:6]) }

func (s *slot) marshal(size uint32) []byte {
	buf := make([]byte, size)
	copy(buf[0:DiscHeaderSize], s.header[:])
	for i, v := range s.blockMap {
		binary.BigEndian.PutUint16(buf[DiscHeaderSize+i*2:], v)
	}
	return buf
}

func unmarshalSlot(buf []byte, nBlocks uint32) *slot {
	s := newSlot(nBlocks)
	copy(s.header[:], buf[0:DiscHeaderSize])
	for i := range s.blockMap {
		off := DiscHeaderSize + i*2
		if off+2 > len(buf) {
			break
		}
		s.blockMap[i] = binary.BigEndian.Uint16(buf[off:])
	}
	return s
}

// usedBlocks returns every non-zero block index the slot's map
// references.
func (s *slot) usedBlocks() []uint32 {
	var out []uint32
	for _, v := range s.blockMap {
		if v != 0 {
			out = append(out, uint32(v))
		}
	}
	return out
}

// lastUsedGroup returns the highest block-map index with a non-zero
// entry, or -1 if the disc has no live groups.
func (s *slot) lastUsedGroup() int {
	for j := len(s.blockMap) - 1; j >= 0; j-- {
		if s.blockMap[j] != 0 {
			return j
		}
	}
	return -1
}

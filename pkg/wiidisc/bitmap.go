package wiidisc

// WiiSectorSize is the disc's hashing unit: 32 KiB, spec's "Wii sector".
const WiiSectorSize = 0x8000

// SectorsSingleLayer and SectorsDoubleLayer are the fixed Wii-sector
// counts of single- and dual-layer discs.
const (
	SectorsSingleLayer = 143432
	SectorsDoubleLayer = 2 * SectorsSingleLayer
	MaxSectors         = SectorsDoubleLayer
)

// payloadSize is the usable payload per encrypted cluster: 0x8000 minus
// the 0x400-byte hash prefix every cluster carries.
const payloadSize = WiiSectorSize - 0x400

// UsageBitmap is one bit per Wii sector across the raw disc, sized for
// dual layer regardless of the source disc's actual layer count. A bit is
// set iff any byte in that Wii sector was read during a walk for the
// selector in effect; clearing bits is never required (spec 4.C).
type UsageBitmap struct {
	bits []uint64
}

// NewUsageBitmap returns an all-clear bitmap sized for MaxSectors bits.
func NewUsageBitmap() *UsageBitmap {
	return &UsageBitmap{bits: make([]uint64, (MaxSectors+63)/64)}
}

// Set marks Wii sector index as used.
func (u *UsageBitmap) Set(index int) {
	if index < 0 || index >= MaxSectors {
		return
	}
	u.bits[index/64] |= 1 << uint(index%64)
}

// Get reports whether Wii sector index is marked used.
func (u *UsageBitmap) Get(index int) bool {
	if index < 0 || index >= MaxSectors {
		return false
	}
	return u.bits[index/64]&(1<<uint(index%64)) != 0
}

// MarkRawRange marks every Wii sector touched by the raw disc byte range
// [offset, offset+length). Used for plaintext regions (ticket, tmd, cert,
// H3 table, partition table, disc header) that aren't behind the
// per-cluster encryption and so don't need logical-to-raw translation.
func (u *UsageBitmap) MarkRawRange(offset, length int64) {
	if length <= 0 {
		return
	}
	first := offset / WiiSectorSize
	last := (offset + length - 1) / WiiSectorSize
	for s := first; s <= last; s++ {
		u.Set(int(s))
	}
}

// PopCount returns the number of set bits.
func (u *UsageBitmap) PopCount() int {
	n := 0
	for _, w := range u.bits {
		n += popcount64(w)
	}
	return n
}

// LastUsed returns the highest set sector index, or -1 if the bitmap is
// entirely clear.
func (u *UsageBitmap) LastUsed() int {
	for i := len(u.bits) - 1; i >= 0; i-- {
		if u.bits[i] == 0 {
			continue
		}
		for b := 63; b >= 0; b-- {
			if u.bits[i]&(1<<uint(b)) != 0 {
				return i*64 + b
			}
		}
	}
	return -1
}

func popcount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

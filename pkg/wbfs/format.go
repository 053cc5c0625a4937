// Package wbfs implements the WBFS container format from spec section
// 4.D: a superblock, a contiguous disc-slot table, a free-block bitmap,
// and per-disc block maps, layered atop anything satisfying hdio.Device.
// It is grounded the same way pkg/vdisk/vdeck's sparse-file-backed disk
// image in the teacher repo is: a fixed on-disk header struct, a
// capacity-bound allocation table, and explicit big-endian (de)serializers
// rather than unsafe struct casts.
package wbfs

import (
	"encoding/binary"
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

const (
	magic = "WBFS"

	// SuperblockSize is the fixed-format header preceding the disc slot
	// table, per spec section 6.
	SuperblockSize = 0x0c

	// DiscHeaderSize is the Wii disc header every slot begins with.
	DiscHeaderSize = 256

	// DefaultDiscSlots is the reference engine's disc table capacity.
	DefaultDiscSlots = 500

	// minBlockSizeLog2 is the smallest allocation granularity considered:
	// one Wii sector (32 KiB), the format's own minimum hashing unit.
	minBlockSizeLog2 = 15
	maxBlockSizeLog2 = 30

	// maxAddressableBlocks bounds the container so a 2-byte block-map
	// entry can address any block (spec section 3).
	maxAddressableBlocks = 65535
)

// superblock is the on-disk header at HD sector 0, big-endian per spec
// section 6.
type superblock struct {
	nHdSec          uint32
	hdSecSizeLog2   uint8
	wbfsSecSizeLog2 uint8
	version         uint8
}

func (s *superblock) marshal() []byte {
	buf := make([]byte, SuperblockSize)
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], s.nHdSec)
	buf[8] = s.hdSecSizeLog2
	buf[9] = s.wbfsSecSizeLog2
	buf[10] = s.version
	buf[11] = 0
	return buf
}

func unmarshalSuperblock(buf []byte) (*superblock, error) {
	if len(buf) < SuperblockSize || string(buf[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad WBFS magic", wbfserr.FormatError)
	}
	return &superblock{
		nHdSec:          binary.BigEndian.Uint32(buf[4:8]),
		hdSecSizeLog2:   buf[8],
		wbfsSecSizeLog2: buf[9],
		version:         buf[10],
	}, nil
}

// chooseBlockSizeLog2 returns the smallest block size (as a power-of-two
// byte-count exponent) such that the container's total block count fits
// in a 16-bit block-map entry, per spec section 3's capacity rule.
func chooseBlockSizeLog2(nHdSec uint32, hdSecSizeLog2 uint8) (uint8, error) {
	for shift := uint8(minBlockSizeLog2); shift <= maxBlockSizeLog2; shift++ {
		if shift < hdSecSizeLog2 {
			continue
		}
		nBlocks := nHdSec >> (shift - hdSecSizeLog2)
		if nBlocks >= 1 && nBlocks <= maxAddressableBlocks {
			return shift, nil
		}
	}
	return 0, fmt.Errorf("%w: partition too large to address with a 16-bit block map", wbfserr.FormatError)
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// layout is every derived geometry value a Container needs, recomputed
// from a superblock plus the fixed disc-slot count.
type layout struct {
	hdSecSize     uint32
	blockSize     uint32
	nHdSec        uint32
	nBlocks       uint32 // container-wide WBFS block count (n_wbfs_sec)
	blocksPerDisc uint32 // per-disc block-map length (n_wbfs_sec_per_disc)
	discSlots     int
	discInfoSize  uint32 // bytes, HD-sector aligned
	discTableLBA  uint32
	discTableSec  uint32
	bitmapLBA     uint32
	bitmapWords   uint32
	bitmapSec     uint32
	reservedEnd   uint32 // first block index available for disc data
}

// discBlockCapacity returns n_wbfs_sec_per_disc: the number of
// block-sized Wii-sector groups the largest possible disc (dual layer)
// can ever need at the given block size. This is independent of the
// container's own capacity (n_wbfs_sec) -- a small container still needs
// a block map long enough to address any disc that could be added to a
// larger one, per spec section 3/6.
func discBlockCapacity(blockSize uint32) uint32 {
	maxDiscBytes := int64(wiidisc.MaxSectors) * wiidisc.WiiSectorSize
	return uint32((maxDiscBytes + int64(blockSize) - 1) / int64(blockSize))
}

func computeLayout(sb *superblock, discSlots int) layout {
	hdSecSize := uint32(1) << sb.hdSecSizeLog2
	blockSize := uint32(1) << sb.wbfsSecSizeLog2
	nBlocks := sb.nHdSec >> (sb.wbfsSecSizeLog2 - sb.hdSecSizeLog2)
	blocksPerDisc := discBlockCapacity(blockSize)

	discInfoSize := ceilDiv(DiscHeaderSize+2*blocksPerDisc, hdSecSize) * hdSecSize
	discTableLBA := uint32(1)
	discTableSec := ceilDiv(uint32(discSlots)*discInfoSize, hdSecSize)
	bitmapLBA := discTableLBA + discTableSec
	bitmapWords := ceilDiv(nBlocks, 32)
	bitmapSec := ceilDiv(bitmapWords*4, hdSecSize)

	metadataBytes := bitmapLBA*hdSecSize + bitmapSec*hdSecSize
	reservedEnd := ceilDiv(metadataBytes, blockSize)
	if reservedEnd < 1 {
		reservedEnd = 1
	}

	return layout{
		hdSecSize:     hdSecSize,
		blockSize:     blockSize,
		nHdSec:        sb.nHdSec,
		nBlocks:       nBlocks,
		blocksPerDisc: blocksPerDisc,
		discSlots:     discSlots,
		discInfoSize:  discInfoSize,
		discTableLBA:  discTableLBA,
		discTableSec:  discTableSec,
		bitmapLBA:     bitmapLBA,
		bitmapWords:   bitmapWords,
		bitmapSec:     bitmapSec,
		reservedEnd:   reservedEnd,
	}
}

func (l layout) sectorsPerBlock() uint32 { return l.blockSize / l.hdSecSize }

func (l layout) blockLBA(block uint32) uint32 { return block * l.sectorsPerBlock() }

func (l layout) slotLBA(slot int) uint32 {
	return l.discTableLBA + uint32(slot)*l.discInfoSize/l.hdSecSize
}

func (l layout) slotSectors() uint32 { return l.discInfoSize / l.hdSecSize }

// readSectors and writeSectors are small helpers shared by every file in
// this package; they exist so call sites read as domain operations
// ("read the superblock") instead of raw hdio plumbing.
func readSectors(dev hdio.Device, lba, count uint32) ([]byte, error) {
	buf := make([]byte, count*hdio.SectorSize)
	if err := dev.ReadSectors(lba, count, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return buf, nil
}

func writeSectors(dev hdio.Device, lba uint32, buf []byte) error {
	count := uint32(len(buf)) / hdio.SectorSize
	if err := dev.WriteSectors(lba, count, buf); err != nil {
		return fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return nil
}

package wiidisc

import (
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

const (
	wiiPartitionTableOffset = 0x40000
	wiiRegionOffset         = 0x4e000
	wiiH3Size               = 0x18000

	ticketEncTitleKeyOffset = 0x1bf
	ticketTitleIDOffset     = 0x1dc
	ticketSize              = 0x2a4
)

// PartitionTableOffset is the byte offset of the 4-group partition table
// header, exported so callers outside this package (pkg/scrub) can place
// FilterPartitionTable's output without duplicating the constant.
const PartitionTableOffset = wiiPartitionTableOffset

// partitionEntry is one (offset, type) pair out of a partition-table
// group, exactly as stored on disc.
type partitionEntry struct {
	rawOffsetWords uint32
	ptype          uint32
}

type partitionGroup struct {
	count            uint32
	tableOffsetWords uint32
	entries          []partitionEntry
}

type partitionTable struct {
	groups [4]partitionGroup
}

func (t *partitionTable) all() []partitionEntry {
	var out []partitionEntry
	for _, g := range t.groups {
		out = append(out, g.entries...)
	}
	return out
}

// readPartitionTable parses the 4-group partition table at
// wiiPartitionTableOffset (spec 4.C step 0).
func readPartitionTable(w *Walker) (*partitionTable, error) {
	header, err := w.readBytes(wiiPartitionTableOffset, 0x20)
	if err != nil {
		return nil, err
	}

	var t partitionTable
	for i := 0; i < 4; i++ {
		count := be32(header[i*8:])
		tableOffsetWords := be32(header[i*8+4:])
		g := partitionGroup{count: count, tableOffsetWords: tableOffsetWords}
		if count > 0 {
			raw, err := w.readBytes(int64(tableOffsetWords)*4, int(count)*8)
			if err != nil {
				return nil, err
			}
			g.entries = make([]partitionEntry, count)
			for j := uint32(0); j < count; j++ {
				g.entries[j] = partitionEntry{
					rawOffsetWords: be32(raw[j*8:]),
					ptype:          be32(raw[j*8+4:]),
				}
			}
		}
		t.groups[i] = g
	}
	return &t, nil
}

// partitionInfo is a partition opened far enough to locate and decrypt its
// data region: ticket read, title key decrypted, header fields parsed.
type partitionInfo struct {
	ptype uint32

	rawOffsetBytes int64
	titleKey       [16]byte

	tmdOffsetBytes  int64
	tmdSize         uint32
	certOffsetBytes int64
	certSize        uint32
	h3OffsetBytes   int64
	dataOffsetBytes int64
	dataSizeWords   uint32
}

// openPartition reads a partition's ticket and header and recovers its
// title key, per spec 4.C steps 1-2.
func (w *Walker) openPartition(e partitionEntry) (*partitionInfo, error) {
	rawOffset := int64(e.rawOffsetWords) * 4

	ticket, err := w.readBytes(rawOffset, ticketSize)
	if err != nil {
		return nil, err
	}

	var encKey [16]byte
	copy(encKey[:], ticket[ticketEncTitleKeyOffset:ticketEncTitleKeyOffset+16])
	var titleID [8]byte
	copy(titleID[:], ticket[ticketTitleIDOffset:ticketTitleIDOffset+8])

	titleKey, err := decryptTitleKey(encKey, titleID)
	if err != nil {
		return nil, err
	}

	header, err := w.readBytes(rawOffset+ticketSize, 0x1c)
	if err != nil {
		return nil, err
	}
	tmdSize := be32(header[0:])
	tmdOffsetWords := be32(header[4:])
	certSize := be32(header[8:])
	certOffsetWords := be32(header[12:])
	h3OffsetWords := be32(header[16:])
	dataOffsetWords := be32(header[20:])
	dataSizeWords := be32(header[24:])

	if dataOffsetWords == 0 {
		return nil, fmt.Errorf("%w: partition at %#x has no data region", wbfserr.FormatError, rawOffset)
	}

	return &partitionInfo{
		ptype:           e.ptype,
		rawOffsetBytes:  rawOffset,
		titleKey:        titleKey,
		tmdOffsetBytes:  rawOffset + int64(tmdOffsetWords)*4,
		tmdSize:         tmdSize,
		certOffsetBytes: rawOffset + int64(certOffsetWords)*4,
		certSize:        certSize,
		h3OffsetBytes:   rawOffset + int64(h3OffsetWords)*4,
		dataOffsetBytes: rawOffset + int64(dataOffsetWords)*4,
		dataSizeWords:   dataSizeWords,
	}, nil
}

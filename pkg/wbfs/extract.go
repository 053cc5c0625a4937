package wbfs

import (
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

// WriteFunc writes buf at a 32-bit-word offset into a destination image,
// mirroring wiidisc.ReadFunc's word-addressed convention (spec section
// 6's "writes use the same convention").
type WriteFunc func(offsetWords uint32, buf []byte) error

// ExtractDisc writes gameID's live blocks to dst at their natural disc
// offsets and returns the size the caller should give the destination.
// With trim set the size stops at the last live block; otherwise it is
// sized to single- or dual-layer capacity, whichever the disc's highest
// live block requires (spec 4.D "Extract disc").
func (c *Container) ExtractDisc(gameID string, dst WriteFunc, trim bool, progress Progress) (int64, error) {
	idx, s, err := c.findSlotByGameID(gameID)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: game id %q not present", wbfserr.NotFoundError, gameID)
	}

	last := s.lastUsedGroup()

	singleLayer := int64(wiidisc.SectorsSingleLayer) * wiidisc.WiiSectorSize
	doubleLayer := int64(wiidisc.SectorsDoubleLayer) * wiidisc.WiiSectorSize
	outputSize := singleLayer
	if int64(last+1)*int64(c.lay.blockSize) > singleLayer {
		outputSize = doubleLayer
	}
	if trim {
		outputSize = int64(last+1) * int64(c.lay.blockSize)
	}

	for j, block := range s.blockMap {
		if block == 0 {
			continue
		}
		buf, err := c.readBlock(uint32(block))
		if err != nil {
			return outputSize, err
		}
		offsetBytes := int64(j) * int64(c.lay.blockSize)
		if err := dst(uint32(offsetBytes/4), buf); err != nil {
			return outputSize, fmt.Errorf("%w: %v", wbfserr.IoError, err)
		}
		if tick(progress, 1) {
			return outputSize, fmt.Errorf("%w: extract cancelled", wbfserr.AbortError)
		}
	}

	return outputSize, nil
}

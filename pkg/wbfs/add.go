package wbfs

import (
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

// Progress is the cooperative-cancellation surface a long operation
// reports through, checked between WBFS blocks (spec section 5). A nil
// Progress is treated as "never abort, don't report".
type Progress interface {
	Increment(n int64)
	ShouldAbort() bool
}

func tick(p Progress, n int64) bool {
	if p == nil {
		return false
	}
	p.Increment(n)
	return p.ShouldAbort()
}

func readViaWordFunc(read wiidisc.ReadFunc, byteOffset int64, n int) ([]byte, error) {
	if byteOffset%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned source offset %#x", wbfserr.FormatError, byteOffset)
	}
	buf := make([]byte, n)
	if err := read(uint32(byteOffset/4), uint32(n), buf); err != nil {
		return nil, fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return buf, nil
}

func (c *Container) wiiSectorsPerBlock() uint32 {
	return c.lay.blockSize / wiidisc.WiiSectorSize
}

// groupUsage reduces a per-Wii-sector usage bitmap to one bool per WBFS
// block-sized group: true iff any sector in the group is live. The slice
// is sized to the per-disc block-map capacity (n_wbfs_sec_per_disc), not
// the container's own block count -- those are distinct quantities (spec
// sections 3 and 6). A disc whose live sectors extend past that capacity
// can never be represented in a block map of that length, so it is
// rejected with FormatError instead of being silently truncated.
func (c *Container) groupUsage(usage *wiidisc.UsageBitmap) ([]bool, error) {
	spb := int(c.wiiSectorsPerBlock())
	groups := make([]bool, c.lay.blocksPerDisc)
	for j := range groups {
		for s := j * spb; s < (j+1)*spb; s++ {
			if usage.Get(s) {
				groups[j] = true
				break
			}
		}
	}

	for s := len(groups) * spb; s < wiidisc.MaxSectors; s++ {
		if usage.Get(s) {
			return nil, fmt.Errorf("%w: disc data extends past the %d blocks addressable per disc",
				wbfserr.FormatError, len(groups))
		}
	}

	return groups, nil
}

// AddOptions configures AddDisc.
type AddOptions struct {
	Selector wiidisc.Selector
	Copy11   bool
	// SourceWiiSectors is the source image's physical length in Wii
	// sectors, required only when Copy11 is set (the walker isn't run, so
	// nothing else determines the live range).
	SourceWiiSectors uint32
}

// AddDisc copies a source Wii disc image into the container, allocating
// one WBFS block per live Wii-sector group (spec 4.D "Add disc").
func (c *Container) AddDisc(read wiidisc.ReadFunc, opts AddOptions, progress Progress) error {
	header, err := readViaWordFunc(read, 0, DiscHeaderSize)
	if err != nil {
		return err
	}
	gameID := string(header[0:6])

	if idx, _, err := c.findSlotByGameID(gameID); err != nil {
		return err
	} else if idx >= 0 {
		return fmt.Errorf("%w: game id %q already present", wbfserr.DuplicateError, gameID)
	}

	var usage *wiidisc.UsageBitmap
	if opts.Copy11 {
		usage = wiidisc.NewUsageBitmap()
		usage.MarkRawRange(0, int64(opts.SourceWiiSectors)*wiidisc.WiiSectorSize)
	} else {
		usage, err = wiidisc.NewWalker(read).BuildUsageBitmap(opts.Selector, false)
		if err != nil {
			return err
		}
	}

	groups, err := c.groupUsage(usage)
	if err != nil {
		return err
	}

	slotIdx, err := c.firstFreeSlot()
	if err != nil {
		return err
	}

	snapshot := c.free.clone()
	rollback := func() { c.free = snapshot }

	s := newSlot(c.lay.blocksPerDisc)
	copy(s.header[:], header)

	for j, used := range groups {
		if !used {
			continue
		}

		block, ok := c.free.AllocateOne(c.lay.reservedEnd)
		if !ok {
			rollback()
			return fmt.Errorf("%w: container has no free blocks", wbfserr.FullError)
		}

		payload, err := readViaWordFunc(read, int64(j)*int64(c.lay.blockSize), int(c.lay.blockSize))
		if err != nil {
			rollback()
			return err
		}
		if err := c.writeBlock(block, payload); err != nil {
			rollback()
			return err
		}

		s.blockMap[j] = uint16(block)

		if tick(progress, 1) {
			rollback()
			return fmt.Errorf("%w: add cancelled", wbfserr.AbortError)
		}
	}

	// The free bitmap must hit disk before the slot that references its
	// newly-allocated blocks: per spec section 7, the only crash-time
	// inconsistency this format tolerates is the bitmap ahead of the slot
	// table (blocks marked used but unreferenced). Writing the slot first
	// would let a crash between the two writes leave a slot that
	// references blocks the on-disk bitmap still shows free, letting a
	// later AddDisc hand them to a second disc.
	if err := c.flushFreeBitmap(); err != nil {
		rollback()
		return err
	}
	if err := c.writeSlot(slotIdx, s); err != nil {
		rollback()
		return err
	}

	return nil
}

// SizeDisc runs the same usage walk AddDisc would without allocating or
// writing anything, per spec 4.D "Size estimation".
func (c *Container) SizeDisc(read wiidisc.ReadFunc, selector wiidisc.Selector) (compressedBlocks int, lastUsedBlock int, err error) {
	usage, err := wiidisc.NewWalker(read).BuildUsageBitmap(selector, false)
	if err != nil {
		return 0, -1, err
	}

	groups, err := c.groupUsage(usage)
	if err != nil {
		return 0, -1, err
	}
	lastUsedBlock = -1
	for j, used := range groups {
		if used {
			compressedBlocks++
			lastUsedBlock = j
		}
	}
	return compressedBlocks, lastUsedBlock, nil
}

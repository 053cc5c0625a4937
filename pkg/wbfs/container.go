package wbfs

import (
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

// Container is an open WBFS archive: a superblock, its derived geometry,
// the in-memory free bitmap, and the device it's backed by. The zero
// value is not usable; construct with Open or Format. Concurrent use of
// one Container from more than one goroutine is not supported, matching
// spec section 5's single-owner model.
type Container struct {
	dev   hdio.Device
	sb    *superblock
	lay   layout
	free  *freeBitmap
	force bool
}

// Format zero-initializes a fresh container over dev: a new superblock
// with a block size chosen so the container addresses no more than 65535
// blocks, an all-free bitmap with the reserved metadata region marked
// used, and an empty disc table (spec 4.D "If reset").
func Format(dev hdio.Device, nHdSec uint32, hdSecSizeLog2 uint8) (*Container, error) {
	wbfsSecLog2, err := chooseBlockSizeLog2(nHdSec, hdSecSizeLog2)
	if err != nil {
		return nil, err
	}

	sb := &superblock{nHdSec: nHdSec, hdSecSizeLog2: hdSecSizeLog2, wbfsSecSizeLog2: wbfsSecLog2, version: 1}
	lay := computeLayout(sb, DefaultDiscSlots)

	free := newFreeBitmap(lay.nBlocks)
	for b := uint32(0); b < lay.reservedEnd; b++ {
		free.MarkUsed(b)
	}

	c := &Container{dev: dev, sb: sb, lay: lay, free: free}

	empty := make([]byte, lay.slotSectors()*lay.hdSecSize)
	for i := 0; i < lay.discSlots; i++ {
		if err := writeSectors(dev, lay.slotLBA(i), empty); err != nil {
			return nil, err
		}
	}

	if err := c.flushSuperblock(); err != nil {
		return nil, err
	}
	if err := c.flushFreeBitmap(); err != nil {
		return nil, err
	}

	return c, nil
}

// Open reads and validates an existing container's superblock. In strict
// mode (force=false) a mismatch between the stored geometry and the
// device's reported geometry fails with IntegrityError; force trusts the
// stored geometry unconditionally (spec 4.D "Else read and validate").
func Open(dev hdio.Device, nHdSec uint32, hdSecSizeLog2 uint8, force bool) (*Container, error) {
	raw, err := readSectors(dev, 0, 1)
	if err != nil {
		return nil, err
	}
	sb, err := unmarshalSuperblock(raw)
	if err != nil {
		return nil, err
	}

	if !force {
		if sb.nHdSec != nHdSec || sb.hdSecSizeLog2 != hdSecSizeLog2 {
			return nil, fmt.Errorf("%w: superblock reports %d sectors of size %d, device reports %d of size %d",
				wbfserr.IntegrityError, sb.nHdSec, uint32(1)<<sb.hdSecSizeLog2, nHdSec, uint32(1)<<hdSecSizeLog2)
		}
	}

	lay := computeLayout(sb, DefaultDiscSlots)

	bitmapRaw, err := readSectors(dev, lay.bitmapLBA, lay.bitmapSec)
	if err != nil {
		return nil, err
	}

	return &Container{
		dev:   dev,
		sb:    sb,
		lay:   lay,
		free:  unmarshalFreeBitmap(bitmapRaw, lay.nBlocks),
		force: force,
	}, nil
}

// Close releases the underlying device. It does not flush: callers must
// have already committed every mutation (AddDisc/RemoveDisc/Trim do this
// themselves).
func (c *Container) Close() error {
	return c.dev.Close()
}

// BlockSize returns the container's WBFS block size in bytes.
func (c *Container) BlockSize() uint32 { return c.lay.blockSize }

// DiscCapacity returns the maximum number of disc slots this container
// can hold.
func (c *Container) DiscCapacity() int { return c.lay.discSlots }

// FreeBlocks returns the number of unallocated WBFS blocks.
func (c *Container) FreeBlocks() int { return c.free.PopCount() }

// TotalBlocks returns the container's total addressable block count.
func (c *Container) TotalBlocks() uint32 { return c.lay.nBlocks }

func (c *Container) flushSuperblock() error {
	return writeSectors(c.dev, 0, c.sb.marshal())
}

func (c *Container) flushFreeBitmap() error {
	buf := c.free.marshal()
	padded := make([]byte, c.lay.bitmapSec*c.lay.hdSecSize)
	copy(padded, buf)
	return writeSectors(c.dev, c.lay.bitmapLBA, padded)
}

func (c *Container) readSlot(i int) (*slot, error) {
	raw, err := readSectors(c.dev, c.lay.slotLBA(i), c.lay.slotSectors())
	if err != nil {
		return nil, err
	}
	return unmarshalSlot(raw, c.lay.blocksPerDisc), nil
}

func (c *Container) writeSlot(i int, s *slot) error {
	return writeSectors(c.dev, c.lay.slotLBA(i), s.marshal(c.lay.slotSectors()*c.lay.hdSecSize))
}

func (c *Container) findSlotByGameID(gameID string) (int, *slot, error) {
	for i := 0; i < c.lay.discSlots; i++ {
		s, err := c.readSlot(i)
		if err != nil {
			return -1, nil, err
		}
		if s.Occupied() && s.GameID() == gameID {
			return i, s, nil
		}
	}
	return -1, nil, nil
}

func (c *Container) firstFreeSlot() (int, error) {
	for i := 0; i < c.lay.discSlots; i++ {
		s, err := c.readSlot(i)
		if err != nil {
			return -1, err
		}
		if !s.Occupied() {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no free disc slot", wbfserr.FullError)
}

func (c *Container) readBlock(block uint32) ([]byte, error) {
	return readSectors(c.dev, c.lay.blockLBA(block), c.lay.sectorsPerBlock())
}

func (c *Container) writeBlock(block uint32, buf []byte) error {
	padded := buf
	want := int(c.lay.sectorsPerBlock() * c.lay.hdSecSize)
	if len(buf) < want {
		padded = make([]byte, want)
		copy(padded, buf)
	}
	return writeSectors(c.dev, c.lay.blockLBA(block), padded)
}

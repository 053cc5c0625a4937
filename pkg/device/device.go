// Package device implements hdio.Device directly atop a block-special
// file or a plain regular file, giving the container the "raw block
// device partition" half of its two supported backends (the other being
// pkg/split). It is grounded on original_source/libwbfs_linux.c's
// is_device/get_capacity/wbfs_fread_sector/wbfs_fwrite_sector.
package device

import (
	"fmt"
	"os"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

// Raw is an hdio.Device backed by a single open file descriptor: either a
// block-special device (its capacity queried via ioctl on Linux) or a
// regular file (capacity is simply its length).
type Raw struct {
	f          *os.File
	sectorSize uint32
	nSectors   uint32
}

// Open opens path for read/write and determines its capacity. On Linux,
// block-special files are queried with BLKSSZGET/BLKGETSIZE64; regular
// files report their length divided by 512. Other platforms only support
// regular files (see device_other.go).
func Open(path string) (*Raw, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", wbfserr.IoError, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", wbfserr.IoError, path, err)
	}

	r := &Raw{f: f}
	if fi.Mode()&os.ModeDevice != 0 {
		sectorSize, nSectors, err := deviceCapacity(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: querying capacity of %s: %v", wbfserr.IoError, path, err)
		}
		r.sectorSize = sectorSize
		r.nSectors = nSectors
	} else {
		r.sectorSize = hdio.SectorSize
		r.nSectors = uint32(fi.Size() / hdio.SectorSize)
	}
	return r, nil
}

// SectorCount reports the device's capacity in 512-byte HD sectors (the
// device's native sector size, if larger, has already been folded in).
func (r *Raw) SectorCount() uint32 { return r.nSectors }

func (r *Raw) byteOffset(lba uint32) int64 { return int64(lba) * hdio.SectorSize }

// ReadSectors implements hdio.Device.
func (r *Raw) ReadSectors(lba, count uint32, buf []byte) error {
	n := int64(count) * hdio.SectorSize
	if _, err := r.f.ReadAt(buf[:n], r.byteOffset(lba)); err != nil {
		return fmt.Errorf("%w: reading sector %d: %v", wbfserr.IoError, lba, err)
	}
	return nil
}

// WriteSectors implements hdio.Device.
func (r *Raw) WriteSectors(lba, count uint32, buf []byte) error {
	n := int64(count) * hdio.SectorSize
	if _, err := r.f.WriteAt(buf[:n], r.byteOffset(lba)); err != nil {
		return fmt.Errorf("%w: writing sector %d: %v", wbfserr.IoError, lba, err)
	}
	return nil
}

// Close implements hdio.Device.
func (r *Raw) Close() error {
	return r.f.Close()
}

//go:build linux

package device

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gowbfs/gowbfs/pkg/hdio"
)

// deviceCapacity queries a block-special file's logical sector size and
// total byte size via the BLKSSZGET/BLKGETSIZE64 ioctls, matching
// original_source/libwbfs_linux.c's get_capacity. The returned sector
// count is always expressed in 512-byte units: BLKGETSIZE64 reports bytes,
// so the count is that size divided by 512 whatever the device's native
// sector size, which is returned separately.
func deviceCapacity(f *os.File) (sectorSize uint32, nSectors uint32, err error) {
	fd := f.Fd()

	var ss int32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKSSZGET, uintptr(unsafe.Pointer(&ss))); errno != 0 {
		return 0, 0, errno
	}

	var size int64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return 0, 0, errno
	}

	n := uint64(size) / hdio.SectorSize

	return uint32(ss), uint32(n), nil
}

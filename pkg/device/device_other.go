//go:build !linux

package device

import (
	"fmt"
	"os"
	"runtime"
)

// deviceCapacity has no portable implementation: querying a block
// device's native sector size and capacity requires a platform-specific
// ioctl (BLKSSZGET/BLKGETSIZE64 on Linux, DKIOCGETBLOCKSIZE/
// DKIOCGETBLOCKCOUNT on Darwin, IOCTL_DISK_GET_LENGTH_INFO on Windows).
// Those shims are explicitly out of scope per spec section 1 ("the
// platform shims that expose open/read/write/seek/ioctl on a block
// device"); Open still works for regular files on every platform, it
// simply refuses raw block-special devices here.
func deviceCapacity(f *os.File) (sectorSize uint32, nSectors uint32, err error) {
	return 0, 0, fmt.Errorf("device: querying block-device capacity is not implemented on %s", runtime.GOOS)
}

// Package scrub implements spec section 4.E: rewriting a raw Wii disc
// image as a sparse file containing only the Wii-sector groups the disc
// walker (pkg/wiidisc) marks live, at a caller-chosen granularity. It is
// grounded the same way pkg/vdisk/build.go in the teacher pack lays out a
// destination image region by region rather than byte by byte, and reuses
// wbfs.Progress for cooperative cancellation instead of inventing a
// second callback shape.
package scrub

import (
	"fmt"
	"os"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfs"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

// Writer is the destination capability Scrub needs: write a live group's
// bytes at a byte offset, and finalize the file's length. A concrete
// *os.File-backed implementation is SparseFile below; tests may supply
// an in-memory one.
type Writer interface {
	WriteAt(offsetBytes int64, buf []byte) error
	Truncate(size int64) error
}

// Options configures a scrub/convert pass.
type Options struct {
	Selector              wiidisc.Selector
	GranularityWiiSectors int // 1 for per-sector, 64 for WBFS-block granularity
	ZeroSparse            bool
	Trim                  bool
}

func readRange(read wiidisc.ReadFunc, byteOffset int64, n int) ([]byte, error) {
	if byteOffset%4 != 0 {
		return nil, fmt.Errorf("%w: unaligned source offset %#x", wbfserr.FormatError, byteOffset)
	}
	buf := make([]byte, n)
	if err := read(uint32(byteOffset/4), uint32(n), buf); err != nil {
		return nil, fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return buf, nil
}

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Scrub walks read (an srcWiiSectors-sector raw disc image) and writes
// every live group to w, leaving unused groups (and, with ZeroSparse,
// all-zero live groups) as sparse holes. It also rewrites the output's partition-table header so a
// partition the selector excludes is absent from the table, not just
// missing its data. It returns the destination's final size.
func Scrub(read wiidisc.ReadFunc, srcWiiSectors uint32, w Writer, opts Options, progress wbfs.Progress) (int64, error) {
	granularity := opts.GranularityWiiSectors
	if granularity <= 0 {
		granularity = 1
	}

	walker := wiidisc.NewWalker(read)
	usage, err := walker.BuildUsageBitmap(opts.Selector, false)
	if err != nil {
		return 0, err
	}

	groupBytes := int64(granularity) * wiidisc.WiiSectorSize
	nGroups := (int(srcWiiSectors) + granularity - 1) / granularity
	lastUsed := -1

	for g := 0; g < nGroups; g++ {
		first := g * granularity
		last := first + granularity
		if last > int(srcWiiSectors) {
			last = int(srcWiiSectors)
		}

		live := false
		for s := first; s < last; s++ {
			if usage.Get(s) {
				live = true
				break
			}
		}
		if !live {
			continue
		}

		offset := int64(first) * wiidisc.WiiSectorSize
		length := int64(last-first) * wiidisc.WiiSectorSize

		buf, err := readRange(read, offset, int(length))
		if err != nil {
			return 0, err
		}
		if opts.ZeroSparse && allZero(buf) {
			continue
		}

		if err := w.WriteAt(offset, buf); err != nil {
			return 0, fmt.Errorf("%w: %v", wbfserr.IoError, err)
		}
		lastUsed = g

		if progress != nil {
			progress.Increment(1)
			if progress.ShouldAbort() {
				return 0, fmt.Errorf("%w: scrub cancelled", wbfserr.AbortError)
			}
		}
	}

	filtered, err := walker.FilterPartitionTable(opts.Selector)
	if err != nil {
		return 0, err
	}
	if err := w.WriteAt(wiidisc.PartitionTableOffset, filtered); err != nil {
		return 0, fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}

	size := int64(srcWiiSectors) * wiidisc.WiiSectorSize
	if opts.Trim {
		size = int64(lastUsed+1) * groupBytes
	}
	if err := w.Truncate(size); err != nil {
		return 0, fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return size, nil
}

// SparseFile is the default Writer: a regular file whose unwritten
// regions are filesystem-level holes on any filesystem that supports
// them (ext4, xfs, btrfs, apfs), because Write never touches the bytes
// between groups and Truncate only ever extends or shortens length.
type SparseFile struct {
	f *os.File
}

// CreateSparseFile creates path for scrub output. It refuses to replace
// an existing file unless overwrite is set (spec 4.E).
func CreateSparseFile(path string, overwrite bool) (*SparseFile, error) {
	flag := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if overwrite {
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s already exists", wbfserr.IoError, path)
		}
		return nil, fmt.Errorf("%w: creating %s: %v", wbfserr.IoError, path, err)
	}
	return &SparseFile{f: f}, nil
}

// WriteAt implements Writer.
func (s *SparseFile) WriteAt(offsetBytes int64, buf []byte) error {
	_, err := s.f.WriteAt(buf, offsetBytes)
	return err
}

// Truncate implements Writer. Called last, it both finalizes the length
// and ensures any trailing hole beyond the final live group is flushed
// before another file descriptor might open the same path, per spec
// section 5's "sparse-hole creation flushed before the next read".
func (s *SparseFile) Truncate(size int64) error {
	if err := s.f.Truncate(size); err != nil {
		return err
	}
	return s.f.Sync()
}

// Close releases the underlying file.
func (s *SparseFile) Close() error { return s.f.Close() }

// AsExtractTarget adapts the SparseFile to wbfs.WriteFunc's word-offset
// shape, so a WBFS container's ExtractDisc can write into it.
func (s *SparseFile) AsExtractTarget() func(offsetWords uint32, buf []byte) error {
	return func(offsetWords uint32, buf []byte) error {
		return s.WriteAt(int64(offsetWords)*4, buf)
	}
}

var _ hdio.Device = (*sparseDevice)(nil)

// sparseDevice adapts a SparseFile to hdio.Device for callers that want
// to treat scrub output as a seekable sector device rather than a
// word-addressed image. No command in cmd/gowbfs uses it.
type sparseDevice struct {
	*SparseFile
}

func (d *sparseDevice) ReadSectors(lba, count uint32, buf []byte) error {
	n := int64(count) * hdio.SectorSize
	read, err := d.f.ReadAt(buf[:n], int64(lba)*hdio.SectorSize)
	if err != nil && int64(read) != n {
		return fmt.Errorf("%w: %v", wbfserr.IoError, err)
	}
	return nil
}

func (d *sparseDevice) WriteSectors(lba, count uint32, buf []byte) error {
	return d.WriteAt(int64(lba)*hdio.SectorSize, buf[:int64(count)*hdio.SectorSize])
}

// AsDevice exposes the sparse file as an hdio.Device.
func (s *SparseFile) AsDevice() hdio.Device { return &sparseDevice{SparseFile: s} }

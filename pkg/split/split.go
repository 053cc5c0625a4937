// Package split implements the multi-file backend described in spec
// section 4.B: a single logical LBA space stitched together out of up to
// ten fixed-size files, so a WBFS container can outgrow any one
// filesystem's maximum file size. The algorithm is a direct translation
// of the reference engine's splits.c (see original_source/), generalized
// behind the hdio.Device interface instead of a pair of C callbacks.
package split

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

// MaxSplits is the number of files a "*.wbfs"-extension backend may span:
// the first file plus nine ".wbf1".."wbf9" continuations.
const MaxSplits = 10

// Backend implements hdio.Device over a sequence of splitSize-byte files
// named base.wbfs, base.wbf1, base.wbf2, ... Non-".wbfs" bases (an
// explicit non-default extension) never split, matching the reference
// engine's split_init: max_split is 1 unless the base ends in ".wbfs".
type Backend struct {
	base       string
	ext        string // "wbfs" normally; anything else disables splitting
	maxSplit   int
	createMode bool

	files     [MaxSplits]*os.File
	sizes     [MaxSplits]int64 // physical size once opened; -1 if unopened
	splitSize int64
	splitSec  uint32
	totalSec  uint32
}

func splitBase(path string) (base, ext string) {
	ext = filepath.Ext(path)
	if ext == "" {
		return path, ""
	}
	return path[:len(path)-len(ext)], ext[1:]
}

func (b *Backend) filename(idx int) string {
	if idx == 0 {
		if b.createMode {
			return b.base + "." + b.ext + ".tmp"
		}
		return b.base + "." + b.ext
	}
	return fmt.Sprintf("%s.wbf%d", b.base, idx)
}

// Create allocates a new split backend rooted at path (e.g. "game.wbfs").
// It refuses if any of the files it would manage already exist, per spec
// section 4.B's Create contract. totalSize bounds the logical volume;
// splitSize bounds each file except the last.
func Create(path string, splitSize, totalSize int64) (*Backend, error) {
	base, ext := splitBase(path)
	b := &Backend{base: base, ext: ext, createMode: true}
	b.maxSplit = 1
	if ext == "wbfs" {
		b.maxSplit = MaxSplits
	}
	for i := -1; i < b.maxSplit; i++ {
		name := probeName(b, i)
		if _, err := os.Stat(name); err == nil {
			return nil, fmt.Errorf("%w: split file already exists: %s", wbfserr.IoError, name)
		}
	}
	b.splitSize = splitSize
	b.totalSec = uint32(totalSize / hdio.SectorSize)
	b.splitSec = uint32(splitSize / hdio.SectorSize)
	if b.maxSplit == 1 {
		// A single-file backend isn't bounded by splitSize: its one file
		// addresses the whole logical volume.
		b.splitSize = totalSize
		b.splitSec = b.totalSec
	}
	for i := range b.sizes {
		b.sizes[i] = -1
	}
	if _, err := b.openFile(0, true); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", wbfserr.IoError, b.filename(0), err)
	}
	return b, nil
}

// probeName reproduces split_create's existence-check loop, which sets
// create_mode before probing so index 0 is checked against the working
// ".tmp" name (idx==-1 additionally checks the *final* post-rename form
// of the first file, since a stale finished file must also be refused).
func probeName(b *Backend, idx int) string {
	if idx == -1 {
		return b.base + "." + orDefaultExt(b.ext)
	}
	if idx == 0 {
		return b.base + "." + b.ext + ".tmp"
	}
	return b.filename(idx)
}

func orDefaultExt(ext string) string {
	if ext == "" {
		return "wbfs"
	}
	return ext
}

// Open opens an existing split backend rooted at path. The first file's
// size establishes splitSize; every intermediate file must match that
// size exactly, and the last may be shorter. A mismatch is a FormatError.
func Open(path string) (*Backend, error) {
	base, ext := splitBase(path)
	b := &Backend{base: base, ext: ext}
	b.maxSplit = 1
	if ext == "wbfs" {
		b.maxSplit = MaxSplits
	}
	for i := range b.sizes {
		b.sizes[i] = -1
	}

	var splitSize, totalSize int64
	opened := 0
	for i := 0; i < b.maxSplit; i++ {
		f, err := b.openFile(i, false)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("%w: opening %s: %v", wbfserr.IoError, b.filename(0), err)
			}
			break
		}
		size, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			b.closeAll()
			return nil, fmt.Errorf("%w: %v", wbfserr.IoError, err)
		}
		if i == 0 {
			splitSize = size
		} else if size > splitSize {
			b.closeAll()
			return nil, fmt.Errorf("%w: split %d is %d bytes, larger than split size %d", wbfserr.FormatError, i, size, splitSize)
		}

		b.sizes[i] = size
		totalSize += size
		opened = i + 1
		if size < splitSize {
			// A short split is only valid as the last one present.
			break
		}
	}
	for i := opened; i < b.maxSplit; i++ {
		if _, err := os.Stat(b.filename(i)); err == nil {
			b.closeAll()
			return nil, fmt.Errorf("%w: split %s found after a shorter split", wbfserr.FormatError, b.filename(i))
		}
	}

	b.splitSize = splitSize
	b.splitSec = uint32(splitSize / hdio.SectorSize)
	b.totalSec = uint32(totalSize / hdio.SectorSize)
	return b, nil
}

func (b *Backend) openFile(idx int, forWrite bool) (*os.File, error) {
	if b.files[idx] != nil {
		return b.files[idx], nil
	}
	name := b.filename(idx)
	flag := os.O_RDWR
	if b.createMode {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return nil, err
	}
	b.files[idx] = f
	if b.sizes[idx] < 0 {
		size, err := f.Seek(0, os.SEEK_END)
		if err == nil {
			b.sizes[idx] = size
		}
	}
	return f, nil
}

// fill truncates (extends) split idx up to size if it is currently
// smaller, mirroring split_fill. Used both for lazy extension ahead of a
// write into a later split, and for read-time extension of a short tail.
func (b *Backend) fill(idx int, size int64) error {
	f, err := b.openFile(idx, true)
	if err != nil {
		return err
	}
	cur, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		return err
	}
	if cur < size {
		if err := f.Truncate(size); err != nil {
			return err
		}
		b.sizes[idx] = size
	}
	return nil
}

// locate returns the file backing LBA lba, the intra-split sector offset,
// and the sector count (clamped to not cross a split boundary). When fill
// is true and the backend is in create mode, the split is extended first
// so that a subsequent write of that length will succeed.
func (b *Backend) locate(lba, count uint32, fill bool) (*os.File, uint32, uint32, error) {
	if lba >= b.totalSec {
		return nil, 0, 0, fmt.Errorf("%w: lba %d exceeds capacity %d", wbfserr.IoError, lba, b.totalSec)
	}
	idx := int(lba / b.splitSec)
	if idx >= b.maxSplit {
		return nil, 0, 0, fmt.Errorf("%w: split index %d exceeds max %d", wbfserr.IoError, idx, b.maxSplit-1)
	}

	if b.files[idx] == nil {
		// Lazy extension: opening a split for the first time implies
		// every earlier split must be filled to splitSize so the
		// LBA-to-split mapping stays consistent even under sparse writes.
		for i := 0; i < idx; i++ {
			if err := b.fill(i, b.splitSize); err != nil {
				return nil, 0, 0, fmt.Errorf("%w: extending split %d: %v", wbfserr.IoError, i, err)
			}
		}
	}
	f, err := b.openFile(idx, true)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: opening split %d: %v", wbfserr.IoError, idx, err)
	}

	sec := lba % b.splitSec
	toEnd := b.splitSec - sec
	if count > toEnd {
		count = toEnd
	}
	if b.createMode && fill {
		if err := b.fill(idx, int64(sec+count)*hdio.SectorSize); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: extending split %d: %v", wbfserr.IoError, idx, err)
		}
	}
	return f, sec, count, nil
}

// ReadSectors implements hdio.Device. A short tail in the currently
// addressed split is extended to cover the requested range first, so the
// read then returns zeros for the newly materialized tail (spec 4.B's
// "read-time extension").
func (b *Backend) ReadSectors(lba, count uint32, buf []byte) error {
	var done uint32
	for done < count {
		f, sec, chunk, err := b.locate(lba+done, count-done, true)
		if err != nil {
			return err
		}
		off := int64(sec) * hdio.SectorSize
		n, err := f.ReadAt(buf[done*hdio.SectorSize:(done+chunk)*hdio.SectorSize], off)
		if err != nil && uint32(n) != chunk*hdio.SectorSize {
			return fmt.Errorf("%w: reading split sector %d: %v", wbfserr.IoError, lba+done, err)
		}
		done += chunk
	}
	return nil
}

// WriteSectors implements hdio.Device.
func (b *Backend) WriteSectors(lba, count uint32, buf []byte) error {
	var done uint32
	for done < count {
		f, sec, chunk, err := b.locate(lba+done, count-done, false)
		if err != nil {
			return err
		}
		off := int64(sec) * hdio.SectorSize
		if _, err := f.WriteAt(buf[done*hdio.SectorSize:(done+chunk)*hdio.SectorSize], off); err != nil {
			return fmt.Errorf("%w: writing split sector %d: %v", wbfserr.IoError, lba+done, err)
		}
		if got := b.sizes[lba2idx(b, lba+done)]; got < off+int64(chunk)*hdio.SectorSize {
			b.sizes[lba2idx(b, lba+done)] = off + int64(chunk)*hdio.SectorSize
		}
		done += chunk
	}
	return nil
}

func lba2idx(b *Backend, lba uint32) int { return int(lba / b.splitSec) }

// SectorCount reports the backend's logical capacity in 512-byte
// sectors, as established by Create's totalSize or Open's discovered
// split sizes.
func (b *Backend) SectorCount() uint32 { return b.totalSec }

// Truncate shrinks the backend's on-disk footprint to fullSize bytes,
// truncating split i to min(remaining, splitSize) and deleting any split
// whose allotment falls to zero. Used to finalize an add by discarding
// unused tail splits.
func (b *Backend) Truncate(fullSize int64) error {
	remaining := fullSize
	for i := 0; i < b.maxSplit; i++ {
		size := remaining
		if size > b.splitSize {
			size = b.splitSize
		}
		if size > 0 {
			f, err := b.openFile(i, true)
			if err != nil {
				return fmt.Errorf("%w: opening split %d for truncate: %v", wbfserr.IoError, i, err)
			}
			if err := f.Sync(); err != nil {
				return fmt.Errorf("%w: %v", wbfserr.IoError, err)
			}
			if err := f.Truncate(size); err != nil {
				return fmt.Errorf("%w: truncating split %d: %v", wbfserr.IoError, i, err)
			}
			b.sizes[i] = size
		} else {
			if b.files[i] != nil {
				b.files[i].Close()
				b.files[i] = nil
			}
			name := b.filename(i)
			if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("%w: removing split %s: %v", wbfserr.IoError, name, err)
			}
			b.sizes[i] = 0
		}
		remaining -= size
	}
	b.totalSec = uint32(fullSize / hdio.SectorSize)
	return nil
}

func (b *Backend) closeAll() {
	for i, f := range b.files {
		if f != nil {
			f.Close()
			b.files[i] = nil
		}
	}
}

// Close closes every open split and, in create mode, atomically renames
// the first file from its ".wbfs.tmp" working name to its final name,
// fsyncing the containing directory afterwards so the rename survives a
// crash. This is the last step of a create; a reader that lists the
// directory never observes the tmp name and the final name at once.
func (b *Backend) Close() error {
	for _, f := range b.files {
		if f != nil {
			if err := f.Sync(); err != nil {
				b.closeAll()
				return fmt.Errorf("%w: %v", wbfserr.IoError, err)
			}
		}
	}
	b.closeAll()
	if b.createMode {
		tmp := b.filename(0)
		final := b.base + "." + orDefaultExt(b.ext)
		if _, err := os.Stat(tmp); err == nil {
			if err := os.Rename(tmp, final); err != nil {
				return fmt.Errorf("%w: finalizing %s: %v", wbfserr.IoError, final, err)
			}
			if dir, err := os.Open(filepath.Dir(final)); err == nil {
				dir.Sync()
				dir.Close()
			}
		}
	}
	return nil
}

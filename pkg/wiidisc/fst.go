package wiidisc

import (
	"fmt"
	"strings"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

const (
	bootDolOffsetField = 0x420
	bootFSTOffsetField = 0x424
	bootFSTSizeField   = 0x428
	bootInfoSize       = 0x42c

	fstEntrySize = 12
)

// readLogical decrypts [logicalOffset, logicalOffset+length) of a
// partition's data stream, one cluster at a time, optionally marking
// every touched raw Wii sector in usage along the way (spec 4.C step 3:
// "decrypting a cluster and marking it used are the same operation").
// usage may be nil when only the plaintext is wanted.
func (w *Walker) readLogical(part *partitionInfo, usage *UsageBitmap, logicalOffset int64, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	out := make([]byte, length)
	remaining := length
	pos := logicalOffset
	written := 0

	for remaining > 0 {
		cluster := pos / payloadSize
		withinCluster := int(pos % payloadSize)
		rawOffset := part.dataOffsetBytes + cluster*WiiSectorSize

		raw, err := w.readBytes(rawOffset, WiiSectorSize)
		if err != nil {
			return nil, err
		}
		if usage != nil {
			usage.MarkRawRange(rawOffset, WiiSectorSize)
		}

		plain, err := decryptCluster(raw, part.titleKey)
		if err != nil {
			return nil, err
		}

		n := payloadSize - withinCluster
		if n > remaining {
			n = remaining
		}
		copy(out[written:written+n], plain[withinCluster:withinCluster+n])

		written += n
		remaining -= n
		pos += int64(n)
	}

	return out, nil
}

// markLogicalRange marks every raw Wii sector overlapping a logical
// extent without decrypting it, for usage-bitmap passes that only need to
// know a region is occupied (file extents referenced by the FST).
func markLogicalRange(part *partitionInfo, usage *UsageBitmap, logicalOffset int64, length int64) {
	if length <= 0 {
		return
	}
	first := logicalOffset / payloadSize
	last := (logicalOffset + length - 1) / payloadSize
	for c := first; c <= last; c++ {
		usage.MarkRawRange(part.dataOffsetBytes+c*WiiSectorSize, WiiSectorSize)
	}
}

type fstVisitFunc func(path string, isDir bool, offsetWords, length uint32)

// walkFST recurses a parsed FST buffer starting at entry index, invoking
// visit for every entry (root excluded), and returns the index one past
// the subtree rooted at index.
func walkFST(fst []byte, stringTable int, index int, dirPath string, visit fstVisitFunc) (int, error) {
	if (index+1)*fstEntrySize > len(fst) {
		return 0, fmt.Errorf("%w: fst entry %d out of range", wbfserr.FormatError, index)
	}
	entry := fst[index*fstEntrySize : (index+1)*fstEntrySize]
	isDir := entry[0] != 0
	nameOffset := be24(entry[1:4])
	field2 := be32(entry[4:8])
	field3 := be32(entry[8:12])

	name, err := fstName(fst, stringTable, nameOffset)
	if err != nil {
		return 0, err
	}

	if index == 0 {
		// Root entry: no name component, field3 is the total entry count.
		i := 1
		for i < int(field3) {
			i, err = walkFST(fst, stringTable, i, dirPath, visit)
			if err != nil {
				return 0, err
			}
		}
		return i, nil
	}

	path := dirPath + "/" + name
	if isDir {
		visit(path, true, 0, 0)
		i := index + 1
		var err error
		for i < int(field3) {
			i, err = walkFST(fst, stringTable, i, path, visit)
			if err != nil {
				return 0, err
			}
		}
		return i, nil
	}

	visit(path, false, field2, field3)
	return index + 1, nil
}

func fstName(fst []byte, stringTable int, offset uint32) (string, error) {
	start := stringTable + int(offset)
	if start < 0 || start >= len(fst) {
		return "", fmt.Errorf("%w: fst name offset %#x out of range", wbfserr.FormatError, offset)
	}
	end := start
	for end < len(fst) && fst[end] != 0 {
		end++
	}
	return string(fst[start:end]), nil
}

// readBootAndFST decrypts a partition's boot.bin far enough to locate its
// FST, then decrypts the FST itself.
func (w *Walker) readBootAndFST(part *partitionInfo, usage *UsageBitmap) (fst []byte, stringTable int, err error) {
	boot, err := w.readLogical(part, usage, 0, bootInfoSize)
	if err != nil {
		return nil, 0, err
	}

	fstOffsetWords := be32(boot[bootFSTOffsetField:])
	fstSizeWords := be32(boot[bootFSTSizeField:])
	fstLogicalOffset := int64(fstOffsetWords) * 4
	fstSize := int(fstSizeWords) * 4
	if fstSize < fstEntrySize {
		return nil, 0, fmt.Errorf("%w: implausible fst size %d", wbfserr.FormatError, fstSize)
	}

	fst, err = w.readLogical(part, usage, fstLogicalOffset, fstSize)
	if err != nil {
		return nil, 0, err
	}

	numEntries := be32(fst[8:12])
	stringTable = int(numEntries) * fstEntrySize

	if usage != nil {
		// boot.bin, bi2.bin, the apploader and the DOL all sit contiguously
		// ahead of the FST in every known layout; marking the whole span
		// covers them without parsing the apploader header for its size.
		markLogicalRange(part, usage, 0, fstLogicalOffset+int64(fstSize))
	}

	return fst, stringTable, nil
}

// walkPartitionData decrypts a partition's boot.bin and FST, marking them
// in usage, then marks the extent of every file the FST references
// without decrypting the file data (spec 4.C steps 3-4).
func (w *Walker) walkPartitionData(part *partitionInfo, usage *UsageBitmap) error {
	fst, stringTable, err := w.readBootAndFST(part, usage)
	if err != nil {
		return err
	}

	var walkErr error
	_, err = walkFST(fst, stringTable, 0, "", func(path string, isDir bool, offsetWords, length uint32) {
		if walkErr != nil || isDir {
			return
		}
		markLogicalRange(part, usage, int64(offsetWords)*4, int64(length))
	})
	if err != nil {
		return err
	}
	return walkErr
}

// extractFromPartition returns the bytes of pathname within part's
// filesystem, or nil if not found.
func (w *Walker) extractFromPartition(part *partitionInfo, pathname string) ([]byte, error) {
	fst, stringTable, err := w.readBootAndFST(part, nil)
	if err != nil {
		return nil, err
	}

	want := "/" + strings.TrimPrefix(pathname, "/")
	var found []byte
	var walkErr error

	_, err = walkFST(fst, stringTable, 0, "", func(path string, isDir bool, offsetWords, length uint32) {
		if walkErr != nil || isDir || found != nil || path != want {
			return
		}
		data, err := w.readLogical(part, nil, int64(offsetWords)*4, int(length))
		if err != nil {
			walkErr = err
			return
		}
		found = data
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return found, nil
}

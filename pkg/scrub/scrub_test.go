package scrub

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
	"github.com/gowbfs/gowbfs/pkg/wiidisc"
)

// memWriter is an in-memory Writer, so Scrub's group-walking logic can be
// exercised without touching the filesystem.
type memWriter struct {
	buf  []byte
	size int64
}

func (m *memWriter) WriteAt(offsetBytes int64, buf []byte) error {
	need := offsetBytes + int64(len(buf))
	if need > int64(len(m.buf)) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[offsetBytes:], buf)
	return nil
}

func (m *memWriter) Truncate(size int64) error {
	m.size = size
	return nil
}

// noPartitionsImage is a disc with an empty (all-zero) partition table, so
// BuildUsageBitmap marks only the disc header, region table, and partition
// table themselves live -- sectors 0, 8, and 9 at WiiSectorSize granularity
// -- without decrypting anything.
func noPartitionsImage(nSectors uint32) []byte {
	buf := make([]byte, int64(nSectors)*wiidisc.WiiSectorSize)
	for s := 0; s < int(nSectors); s++ {
		if s == 0 || s == 8 || s == 9 {
			continue
		}
		for i := range buf[s*wiidisc.WiiSectorSize : (s+1)*wiidisc.WiiSectorSize] {
			buf[s*wiidisc.WiiSectorSize+i] = 0xaa
		}
	}
	return buf
}

// gameAndUpdateImage is noPartitionsImage with group 0 of the partition
// table populated: one game partition entry and one update partition
// entry. Tests using it select with wiidisc.Selector(0xdead), which
// matches neither real type, so BuildUsageBitmap never opens either
// partition -- only FilterPartitionTable's header rewrite is exercised.
func gameAndUpdateImage(nSectors uint32) []byte {
	buf := noPartitionsImage(nSectors)

	entryTableOffset := int64(12) * wiidisc.WiiSectorSize
	header := buf[wiidisc.PartitionTableOffset : wiidisc.PartitionTableOffset+0x20]
	binary.BigEndian.PutUint32(header[0:], 2)
	binary.BigEndian.PutUint32(header[4:], uint32(entryTableOffset/4))

	entries := buf[entryTableOffset : entryTableOffset+16]
	binary.BigEndian.PutUint32(entries[0:], uint32(entryTableOffset/4))
	binary.BigEndian.PutUint32(entries[4:], uint32(wiidisc.PartitionGame))
	binary.BigEndian.PutUint32(entries[8:], uint32(entryTableOffset/4))
	binary.BigEndian.PutUint32(entries[12:], uint32(wiidisc.PartitionUpdate))

	return buf
}

func readFuncOverImage(data []byte) wiidisc.ReadFunc {
	return func(offsetWords, count uint32, out []byte) error {
		off := int64(offsetWords) * 4
		copy(out, data[off:off+int64(count)])
		return nil
	}
}

func TestScrubSkipsDeadGroupsAndTrims(t *testing.T) {
	img := noPartitionsImage(12)

	w := &memWriter{}
	size, err := Scrub(readFuncOverImage(img), 12, w, Options{
		Selector:              wiidisc.Selector(0xdead),
		GranularityWiiSectors: 1,
		Trim:                  true,
	}, nil)
	require.NoError(t, err)

	// Live groups are sectors 0, 8, 9; trimming sizes to the last live one.
	assert.EqualValues(t, 10*wiidisc.WiiSectorSize, size)
	assert.Equal(t, img[:wiidisc.WiiSectorSize], w.buf[:wiidisc.WiiSectorSize])
	assert.Equal(t, img[9*wiidisc.WiiSectorSize:10*wiidisc.WiiSectorSize], w.buf[9*wiidisc.WiiSectorSize:10*wiidisc.WiiSectorSize])
	// A dead sector in between was never written.
	assert.True(t, allZero(w.buf[1*wiidisc.WiiSectorSize:2*wiidisc.WiiSectorSize]))
}

func TestScrubGranularityGroupsMultipleSectors(t *testing.T) {
	img := noPartitionsImage(12)

	w := &memWriter{}
	_, err := Scrub(readFuncOverImage(img), 12, w, Options{
		Selector:              wiidisc.Selector(0xdead),
		GranularityWiiSectors: 8,
	}, nil)
	require.NoError(t, err)

	// Sector 0 falls in group [0,8), sectors 8-9 fall in group [8,16); both
	// groups are live, so the whole first 8-sector group is copied even
	// though sectors 1-7 are individually dead.
	assert.Equal(t, img[:8*wiidisc.WiiSectorSize], w.buf[:8*wiidisc.WiiSectorSize])
}

func TestScrubZeroSparseSkipsAllZeroLiveGroup(t *testing.T) {
	img := make([]byte, 12*wiidisc.WiiSectorSize)

	w := &memWriter{}
	size, err := Scrub(readFuncOverImage(img), 12, w, Options{
		Selector:              wiidisc.Selector(0xdead),
		GranularityWiiSectors: 1,
		ZeroSparse:            true,
		Trim:                  true,
	}, nil)
	require.NoError(t, err)

	// Every live group (0, 8, 9) is all-zero, so nothing survives trimming.
	assert.EqualValues(t, 0, size)
}

func TestScrubFiltersPartitionTableForExcludedSelector(t *testing.T) {
	img := gameAndUpdateImage(16)

	w := &memWriter{}
	_, err := Scrub(readFuncOverImage(img), 16, w, Options{
		Selector:              wiidisc.Selector(0xdead),
		GranularityWiiSectors: 1,
	}, nil)
	require.NoError(t, err)

	// The source table's group 0 lists 2 entries; the selector matches
	// neither, so the output's table must report 0.
	header := w.buf[wiidisc.PartitionTableOffset : wiidisc.PartitionTableOffset+0x20]
	srcHeader := img[wiidisc.PartitionTableOffset : wiidisc.PartitionTableOffset+0x20]
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(srcHeader[0:]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(header[0:]))

	// The group's own table-offset field is left untouched; only the count
	// is rewritten.
	assert.Equal(t, binary.BigEndian.Uint32(srcHeader[4:]), binary.BigEndian.Uint32(header[4:]))
}

type countingAbort struct {
	n, after int64
}

func (a *countingAbort) Increment(n int64) { a.n += n }
func (a *countingAbort) ShouldAbort() bool { return a.n >= a.after }

func TestScrubAbortsViaProgress(t *testing.T) {
	img := noPartitionsImage(12)

	w := &memWriter{}
	_, err := Scrub(readFuncOverImage(img), 12, w, Options{
		Selector:              wiidisc.Selector(0xdead),
		GranularityWiiSectors: 1,
	}, &countingAbort{after: 1})
	assert.ErrorIs(t, err, wbfserr.AbortError)
}

func TestCreateSparseFileRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.iso")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := CreateSparseFile(path, false)
	assert.ErrorIs(t, err, wbfserr.IoError)

	f, err := CreateSparseFile(path, true)
	require.NoError(t, err)
	defer f.Close()
}

func TestSparseFileWriteTruncateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.iso")

	f, err := CreateSparseFile(path, false)
	require.NoError(t, err)

	data := []byte("live group payload")
	require.NoError(t, f.WriteAt(0x8000, data))
	require.NoError(t, f.Truncate(0x10000))
	require.NoError(t, f.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 0x10000, fi.Size())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, raw[0x8000:0x8000+len(data)])
	assert.Equal(t, make([]byte, 0x8000), raw[:0x8000])
}

func TestSparseFileAsDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.iso")

	f, err := CreateSparseFile(path, false)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4*hdio.SectorSize))

	dev := f.AsDevice()

	payload := make([]byte, 2*hdio.SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, dev.WriteSectors(1, 2, payload))

	readBack := make([]byte, 2*hdio.SectorSize)
	require.NoError(t, dev.ReadSectors(1, 2, readBack))
	assert.Equal(t, payload, readBack)

	require.NoError(t, dev.Close())
}

func TestAllZero(t *testing.T) {
	assert.True(t, allZero(make([]byte, 16)))
	buf := make([]byte, 16)
	buf[15] = 1
	assert.False(t, allZero(buf))
}

func TestReadRangeRejectsUnalignedOffset(t *testing.T) {
	_, err := readRange(func(uint32, uint32, []byte) error { return nil }, 3, 4)
	assert.ErrorIs(t, err, wbfserr.FormatError)
}

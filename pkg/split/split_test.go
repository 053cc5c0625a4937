package split

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

func TestCreateRefusesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wbfs")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := Create(path, 1024*1024, 4*1024*1024)
	assert.ErrorIs(t, err, wbfserr.IoError)
}

func TestCreateRefusesStaleTmpFromCrashedCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wbfs")
	require.NoError(t, os.WriteFile(path+".tmp", []byte("stale"), 0644))

	_, err := Create(path, 1024*1024, 4*1024*1024)
	assert.ErrorIs(t, err, wbfserr.IoError)
}

func TestCreateWriteCloseOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wbfs")

	splitSize := int64(4 * hdio.SectorSize)
	totalSize := int64(10 * hdio.SectorSize)

	b, err := Create(path, splitSize, totalSize)
	require.NoError(t, err)

	// game.wbfs.tmp must exist while still open, not the final name.
	_, err = os.Stat(path + ".tmp")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	payload := make([]byte, 3*hdio.SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, b.WriteSectors(0, 3, payload))

	// Writing sector 5 lives in the second split file; the lazy-extension
	// logic must fill split 0 to splitSize first.
	tail := make([]byte, hdio.SectorSize)
	for i := range tail {
		tail[i] = 0xaa
	}
	require.NoError(t, b.WriteSectors(5, 1, tail))

	require.NoError(t, b.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	// Open derives capacity from the discovered split file sizes (4 full
	// sectors in split 0, 2 sectors' worth of bytes in split 1, the second
	// being the short last split), not from Create's original totalSize.
	assert.Equal(t, uint32(6), reopened.SectorCount())

	readBack := make([]byte, 3*hdio.SectorSize)
	require.NoError(t, reopened.ReadSectors(0, 3, readBack))
	assert.Equal(t, payload, readBack)

	readTail := make([]byte, hdio.SectorSize)
	require.NoError(t, reopened.ReadSectors(5, 1, readTail))
	assert.Equal(t, tail, readTail)

	// Sector 4 (the start of split 1) was never written but lies before the
	// written tail sector, so the write at sector 5 left it as zeros.
	gap := make([]byte, hdio.SectorSize)
	require.NoError(t, reopened.ReadSectors(4, 1, gap))
	assert.Equal(t, make([]byte, hdio.SectorSize), gap)
}

func TestOpenRejectsSplitAfterShortSplit(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "game")

	require.NoError(t, os.WriteFile(base+".wbfs", make([]byte, 4*hdio.SectorSize), 0644))
	require.NoError(t, os.WriteFile(base+".wbf1", make([]byte, 2*hdio.SectorSize), 0644))
	require.NoError(t, os.WriteFile(base+".wbf2", make([]byte, 4*hdio.SectorSize), 0644))

	_, err := Open(base + ".wbfs")
	assert.ErrorIs(t, err, wbfserr.FormatError)
}

func TestNonWbfsExtensionNeverSplits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.iso")

	b, err := Create(path, 4*hdio.SectorSize, 10*hdio.SectorSize)
	require.NoError(t, err)

	buf := make([]byte, hdio.SectorSize)
	err = b.WriteSectors(9, 1, buf)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 10*hdio.SectorSize, fi.Size())

	_, err = os.Stat(path + ".wbf1")
	assert.True(t, os.IsNotExist(err))
}

func TestTruncateShrinksAndDeletesTrailingSplits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.wbfs")

	splitSize := int64(2 * hdio.SectorSize)
	b, err := Create(path, splitSize, 6*hdio.SectorSize)
	require.NoError(t, err)

	buf := make([]byte, hdio.SectorSize)
	require.NoError(t, b.WriteSectors(5, 1, buf))

	require.NoError(t, b.Truncate(3*hdio.SectorSize))
	require.NoError(t, b.Close())

	fi0, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 2*hdio.SectorSize, fi0.Size())

	fi1, err := os.Stat(filepath.Join(dir, "game.wbf1"))
	require.NoError(t, err)
	assert.EqualValues(t, hdio.SectorSize, fi1.Size())

	_, err = os.Stat(filepath.Join(dir, "game.wbf2"))
	assert.True(t, os.IsNotExist(err))
}

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowbfs/gowbfs/pkg/hdio"
	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

func TestOpenRegularFileReportsLengthAsSectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 10*hdio.SectorSize), 0644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(10), r.SectorCount())
}

func TestReadWriteSectorsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 10*hdio.SectorSize), 0644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	payload := make([]byte, 2*hdio.SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, r.WriteSectors(3, 2, payload))

	readBack := make([]byte, 2*hdio.SectorSize)
	require.NoError(t, r.ReadSectors(3, 2, readBack))
	assert.Equal(t, payload, readBack)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.img"))
	assert.ErrorIs(t, err, wbfserr.IoError)
}

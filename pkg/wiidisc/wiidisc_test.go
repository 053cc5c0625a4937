package wiidisc

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

func TestSelectorMatches(t *testing.T) {
	assert.True(t, SelectorAll.Matches(uint32(PartitionUpdate)))
	assert.True(t, SelectorAll.Matches(uint32(PartitionGame)))

	assert.False(t, SelectorRemoveUpdate.Matches(uint32(PartitionUpdate)))
	assert.True(t, SelectorRemoveUpdate.Matches(uint32(PartitionGame)))
	assert.True(t, SelectorRemoveUpdate.Matches(uint32(PartitionOther)))

	assert.True(t, SelectorOnlyGame.Matches(uint32(PartitionGame)))
	assert.False(t, SelectorOnlyGame.Matches(uint32(PartitionUpdate)))

	assert.True(t, SelectorGame.Matches(uint32(PartitionGame)))
	assert.False(t, SelectorGame.Matches(uint32(PartitionOther)))
}

func TestUsageBitmap(t *testing.T) {
	u := NewUsageBitmap()
	assert.Equal(t, -1, u.LastUsed())
	assert.Equal(t, 0, u.PopCount())

	u.MarkRawRange(0, WiiSectorSize) // exactly sector 0
	assert.True(t, u.Get(0))
	assert.False(t, u.Get(1))
	assert.Equal(t, 1, u.PopCount())

	u.MarkRawRange(WiiSectorSize+1, 10) // straddles only sector 1
	assert.True(t, u.Get(1))
	assert.False(t, u.Get(2))
	assert.Equal(t, 2, u.PopCount())
	assert.Equal(t, 1, u.LastUsed())

	u.Set(5)
	assert.Equal(t, 5, u.LastUsed())
}

func TestDecryptClusterRoundTrip(t *testing.T) {
	var titleKey [16]byte
	copy(titleKey[:], []byte("0123456789abcdef"))

	plainWant := make([]byte, payloadSize)
	for i := range plainWant {
		plainWant[i] = byte(i * 7)
	}

	raw := make([]byte, WiiSectorSize)
	iv := raw[0x3d0:0x3e0]
	copy(iv, []byte("sixteen byte iv!"))

	block, err := aes.NewCipher(titleKey[:])
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(raw[0x400:], plainWant)

	plainGot, err := decryptCluster(raw, titleKey)
	require.NoError(t, err)
	assert.Equal(t, plainWant, plainGot)
}

func TestDecryptClusterRejectsWrongSize(t *testing.T) {
	_, err := decryptCluster(make([]byte, 10), [16]byte{})
	assert.ErrorIs(t, err, wbfserr.FormatError)
}

func bePut(buf []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(buf[off:], v)
}

// fakeDiscImage builds a synthetic disc buffer with a single
// PartitionGame entry in partition group 0 -- just enough structural
// data (partition table, ticket, partition header) for BuildUsageBitmap's
// dontDecrypt path, which never reads the tmd/cert/h3/data regions
// themselves, only computes byte ranges over them.
func fakeDiscImage() []byte {
	const rawOffsetBytes = 0x50000

	buf := make([]byte, 0x60000)

	bePut(buf, 0x40000, 1)         // group 0 count
	bePut(buf, 0x40004, 0x40020/4) // group 0 table offset, in words

	bePut(buf, 0x40020, rawOffsetBytes/4) // entry 0 raw offset, in words
	bePut(buf, 0x40024, uint32(PartitionGame))

	hdr := rawOffsetBytes + ticketSize
	bePut(buf, hdr+0, 0x500)       // tmd size
	bePut(buf, hdr+4, 169)         // tmd offset, words
	bePut(buf, hdr+8, 0x400)       // cert size
	bePut(buf, hdr+12, 489)        // cert offset, words
	bePut(buf, hdr+16, 700)        // h3 offset, words
	bePut(buf, hdr+20, 32768)      // data offset, words (cluster-aligned)
	bePut(buf, hdr+24, 16384)      // data size, words (two full clusters)

	return buf
}

func TestBuildUsageBitmapDontDecrypt(t *testing.T) {
	buf := fakeDiscImage()
	read := func(offsetWords, count uint32, out []byte) error {
		off := int64(offsetWords) * 4
		n := copy(out, buf[off:])
		for ; n < len(out); n++ {
			out[n] = 0
		}
		return nil
	}

	usage, err := NewWalker(read).BuildUsageBitmap(SelectorAll, true)
	require.NoError(t, err)

	assert.True(t, usage.Get(0)) // disc header

	regionSector := int(0x4e000 / WiiSectorSize)
	assert.True(t, usage.Get(regionSector))

	partTableSector := int(0x40000 / WiiSectorSize)
	assert.True(t, usage.Get(partTableSector))

	dataSector := (0x50000 + 32768*4) / WiiSectorSize
	assert.True(t, usage.Get(dataSector))
	assert.True(t, usage.Get(dataSector+1))
	assert.False(t, usage.Get(dataSector+2))
}

// twoEntryPartitionTable builds just the partition table region (group 0
// holding one game and one update entry) -- FilterPartitionTable only
// reads entry offset/type pairs, never the ticket/header data those
// offsets point at, so the referenced offsets need not resolve to
// anything real.
func twoEntryPartitionTable() []byte {
	buf := make([]byte, 0x40100)

	bePut(buf, 0x40000, 2)         // group 0 count
	bePut(buf, 0x40004, 0x40020/4) // group 0 table offset, in words

	bePut(buf, 0x40020, 0x50000/4)
	bePut(buf, 0x40024, uint32(PartitionGame))
	bePut(buf, 0x40028, 0x50000/4)
	bePut(buf, 0x4002c, uint32(PartitionUpdate))

	return buf
}

func TestFilterPartitionTable(t *testing.T) {
	buf := twoEntryPartitionTable()
	read := func(offsetWords, count uint32, out []byte) error {
		off := int64(offsetWords) * 4
		copy(out, buf[off:off+int64(count)])
		return nil
	}

	filtered, err := NewWalker(read).FilterPartitionTable(SelectorOnlyGame)
	require.NoError(t, err)
	require.Len(t, filtered, 0x20)

	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(filtered[0:]))
	assert.Equal(t, uint32(0x40020/4), binary.BigEndian.Uint32(filtered[4:]))
	for i := 1; i < 4; i++ {
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(filtered[i*8:]))
	}
}

func TestWalkerRejectsUnalignedOffset(t *testing.T) {
	w := NewWalker(func(uint32, uint32, []byte) error { return nil })
	_, err := w.readBytes(3, 4)
	assert.ErrorIs(t, err, wbfserr.FormatError)
}

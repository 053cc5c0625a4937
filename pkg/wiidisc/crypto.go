package wiidisc

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/gowbfs/gowbfs/pkg/wbfserr"
)

// commonKey is the retail Wii common key used to decrypt every ticket's
// per-title AES key. It is a fixed, publicly documented format constant
// (identical across every compatible Wii disc tool, the same way a CSS
// region key is a format constant for DVD) rather than anything secret to
// this module; without it no retail ticket can be decrypted at all.
var commonKey = [16]byte{
	0xeb, 0xe4, 0x2a, 0x22, 0x5e, 0x85, 0x93, 0xe4,
	0x48, 0xd9, 0xc5, 0x45, 0x73, 0x81, 0xaa, 0xf7,
}

// decryptTitleKey recovers a partition's per-title AES key from its
// ticket's encrypted title key field, CBC-decrypting with the common key
// and an IV built from the title ID padded to a full block (spec 4.C
// step 1).
func decryptTitleKey(encTitleKey [16]byte, titleID [8]byte) ([16]byte, error) {
	block, err := aes.NewCipher(commonKey[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("%w: %v", wbfserr.FormatError, err)
	}

	var iv [16]byte
	copy(iv[:8], titleID[:])

	out := make([]byte, 16)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, encTitleKey[:])

	var key [16]byte
	copy(key[:], out)
	return key, nil
}

// decryptCluster CBC-decrypts one encrypted cluster's 0x7c00-byte payload
// using the partition's title key and the IV embedded in the cluster's
// own hash prefix (bytes 0x3d0..0x3e0), per spec 4.C step 3. raw must be
// exactly WiiSectorSize (0x8000) bytes: the 0x400-byte hash prefix
// followed by the encrypted payload.
func decryptCluster(raw []byte, titleKey [16]byte) ([]byte, error) {
	if len(raw) != WiiSectorSize {
		return nil, fmt.Errorf("%w: cluster is %d bytes, want %d", wbfserr.FormatError, len(raw), WiiSectorSize)
	}

	block, err := aes.NewCipher(titleKey[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wbfserr.FormatError, err)
	}

	iv := raw[0x3d0:0x3e0]
	ciphertext := raw[0x400:WiiSectorSize]

	plain := make([]byte, payloadSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return plain, nil
}

package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DerivedAddressSize is the byte length of an address produced by
// DeriveAddress. It differs from ed25519.PublicKeySize so a derived address
// never collides with a signer identity.
const DerivedAddressSize = 20

// DeriveAddress returns the deterministic address for a list of seeds.
// Each seed is length-prefixed so ("ab","c") and ("a","bc") differ.
func DeriveAddress(seeds ...[]byte) string {
	h := sha256.New()
	var lenBuf [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:DerivedAddressSize])
}

// IsDerivedAddress reports whether s has the shape of a DeriveAddress result.
func IsDerivedAddress(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == DerivedAddressSize
}

// Uint64Seed encodes v as an 8-byte little-endian seed.
func Uint64Seed(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

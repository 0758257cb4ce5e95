package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestSize is the width of every commitment, leaf and root.
const DigestSize = 32

// Digest is a fixed-width 32-byte hash value. It marshals as lowercase hex.
type Digest [DigestSize]byte

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Compare orders digests lexicographically by byte value.
func (d Digest) Compare(o Digest) int {
	return bytes.Compare(d[:], o[:])
}

// IsZero reports whether every byte of d is zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := DigestFromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DigestFromHex decodes a 64-char hex string into a Digest.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hasher produces the fixed-width digests used for leaves and tree nodes.
type Hasher interface {
	Name() string
	Sum(data []byte) Digest
}

// Names accepted by HasherByName.
const (
	HasherXORFold = "xorfold"
	HasherBlake2b = "blake2b"
	HasherSHA256  = "sha256"
)

// XORFold folds data into 32 bytes by XOR-ing byte i into position i%32.
// It is NOT collision resistant: any two inputs whose 32-byte columns XOR to
// the same value collide. It exists for compatibility with trees built by
// the existing off-chain settlement service.
type XORFold struct{}

func (XORFold) Name() string { return HasherXORFold }

func (XORFold) Sum(data []byte) Digest {
	var out Digest
	for i, b := range data {
		out[i%DigestSize] ^= b
	}
	return out
}

// Blake2b is BLAKE2b-256.
type Blake2b struct{}

func (Blake2b) Name() string { return HasherBlake2b }

func (Blake2b) Sum(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

// SHA256 is SHA-256.
type SHA256 struct{}

func (SHA256) Name() string { return HasherSHA256 }

func (SHA256) Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// HasherByName resolves a configured hasher name. The empty name selects
// XORFold.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", HasherXORFold:
		return XORFold{}, nil
	case HasherBlake2b:
		return Blake2b{}, nil
	case HasherSHA256:
		return SHA256{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// Combine hashes the 64-byte concatenation of a and b with the numerically
// smaller digest first. The result does not depend on argument order.
func Combine(h Hasher, a, b Digest) Digest {
	var buf [2 * DigestSize]byte
	if a.Compare(b) <= 0 {
		copy(buf[:DigestSize], a[:])
		copy(buf[DigestSize:], b[:])
	} else {
		copy(buf[:DigestSize], b[:])
		copy(buf[DigestSize:], a[:])
	}
	return h.Sum(buf[:])
}

// VerifyProof reports whether folding leaf with each proof element, in list
// order, reproduces root. It never fails with an error; a false result means
// the authorization is denied.
func VerifyProof(h Hasher, proof []Digest, root, leaf Digest) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = Combine(h, computed, sibling)
	}
	return computed == root
}

// LeafHash returns the canonical leaf for a payout of amount to payee from
// battle: battle || payee || amount (8-byte little-endian).
func LeafHash(h Hasher, battle, payee string, amount uint64) Digest {
	buf := make([]byte, 0, len(battle)+len(payee)+8)
	buf = append(buf, battle...)
	buf = append(buf, payee...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	return h.Sum(buf)
}

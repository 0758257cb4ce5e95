package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(b byte) Digest {
	var d Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func TestXORFold(t *testing.T) {
	var data [64]byte
	data[0] = 0x0f
	data[32] = 0xf0
	data[33] = 0x01

	got := XORFold{}.Sum(data[:])
	assert.Equal(t, byte(0xff), got[0])
	assert.Equal(t, byte(0x01), got[1])
	for i := 2; i < DigestSize; i++ {
		assert.Zero(t, got[i])
	}

	assert.Equal(t, Digest{}, XORFold{}.Sum(nil))
}

func TestCombineOrdersSmallerFirst(t *testing.T) {
	small, large := filled(0x01), filled(0x02)
	for _, h := range []Hasher{XORFold{}, Blake2b{}, SHA256{}} {
		t.Run(h.Name(), func(t *testing.T) {
			want := h.Sum(append(small[:], large[:]...))
			assert.Equal(t, want, Combine(h, small, large))
			assert.Equal(t, want, Combine(h, large, small))
		})
	}
}

func TestVerifyProofSingleSibling(t *testing.T) {
	h := SHA256{}
	s, l := filled(0x10), filled(0x20)

	// leaf larger than sibling: root = H(S || L)
	root := h.Sum(bytes.Join([][]byte{s[:], l[:]}, nil))
	assert.True(t, VerifyProof(h, []Digest{s}, root, l))

	// leaf smaller than sibling: same root
	assert.True(t, VerifyProof(h, []Digest{l}, root, s))
}

func TestVerifyProofEmpty(t *testing.T) {
	leaf := filled(0x33)
	assert.True(t, VerifyProof(XORFold{}, nil, leaf, leaf))
	assert.False(t, VerifyProof(XORFold{}, nil, filled(0x34), leaf))
}

func TestVerifyProofRejectsTampering(t *testing.T) {
	h := Blake2b{}
	a, b, c := filled(1), filled(2), filled(3)
	ab := Combine(h, a, b)
	root := Combine(h, ab, c)

	require.True(t, VerifyProof(h, []Digest{b, c}, root, a))

	flipped := b
	flipped[7] ^= 0x01
	assert.False(t, VerifyProof(h, []Digest{flipped, c}, root, a), "flipped proof byte")

	wrongRoot := root
	wrongRoot[0] ^= 0x80
	assert.False(t, VerifyProof(h, []Digest{b, c}, wrongRoot, a), "wrong root")

	assert.False(t, VerifyProof(h, []Digest{c, b}, root, a), "proof order matters")
	assert.False(t, VerifyProof(SHA256{}, []Digest{b, c}, root, a), "different hasher")
}

func TestHasherByName(t *testing.T) {
	for name, want := range map[string]string{
		"":            HasherXORFold,
		HasherXORFold: HasherXORFold,
		HasherBlake2b: HasherBlake2b,
		HasherSHA256:  HasherSHA256,
	} {
		h, err := HasherByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, h.Name())
	}

	_, err := HasherByName("md5")
	assert.Error(t, err)
}

func TestLeafHashBindsEveryField(t *testing.T) {
	h := SHA256{}
	base := LeafHash(h, "battle", "payee", 100)
	assert.Equal(t, base, LeafHash(h, "battle", "payee", 100))
	assert.NotEqual(t, base, LeafHash(h, "battle2", "payee", 100))
	assert.NotEqual(t, base, LeafHash(h, "battle", "payee2", 100))
	assert.NotEqual(t, base, LeafHash(h, "battle", "payee", 101))

	want := h.Sum([]byte("bpx\x05\x00\x00\x00\x00\x00\x00\x00"))
	assert.Equal(t, want, LeafHash(h, "bp", "x", 5))
}

package testutil

import "github.com/tolelom/kombat/crypto"

// MerkleTree is a sorted-pair Merkle tree over a fixed leaf set, used to
// publish payout roots and build claim proofs in tests. A node without a
// sibling is carried up to the next level unchanged.
type MerkleTree struct {
	h      crypto.Hasher
	levels [][]crypto.Digest
}

// NewMerkleTree builds the tree over leaves with h.
func NewMerkleTree(h crypto.Hasher, leaves ...crypto.Digest) *MerkleTree {
	t := &MerkleTree{h: h}
	level := append([]crypto.Digest(nil), leaves...)
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]crypto.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, crypto.Combine(h, level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the tree root, or the zero digest for an empty tree.
func (t *MerkleTree) Root() crypto.Digest {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return crypto.Digest{}
	}
	return top[0]
}

// Proof returns the sibling path for the leaf at index i.
func (t *MerkleTree) Proof(i int) []crypto.Digest {
	var proof []crypto.Digest
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := i ^ 1
		if sib < len(level) {
			proof = append(proof, level[sib])
		}
		i /= 2
	}
	return proof
}

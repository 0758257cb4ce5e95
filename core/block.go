package core

import (
	"encoding/json"
	"time"

	"github.com/tolelom/kombat/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
// Timestamp is the single clock sample every transaction in the block
// observes.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"`
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
	Proposer  string `json:"proposer"`
}

// Block is an ordered batch of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// Now returns the block's clock sample in unix seconds, the unit battles use.
func (b *Block) Now() int64 {
	return time.Unix(0, b.Header.Timestamp).Unix()
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against the given public key.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// NewBlockAt creates an unsigned block stamped with at.
func NewBlockAt(height int64, prevHash, proposer string, txs []*Transaction, at time.Time) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: at.UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}

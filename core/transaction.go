package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/kombat/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer           TxType = "transfer"
	TxInitialize         TxType = "initialize"
	TxSetMerkleRoot      TxType = "set_merkle_root"
	TxCreateBattle       TxType = "create_battle"
	TxJoinBattle         TxType = "join_battle"
	TxCommitInitialState TxType = "commit_initial_state"
	TxClaimWinnings      TxType = "claim_winnings"
	TxPlaceBet           TxType = "place_bet"
	TxClaimBetWinnings   TxType = "claim_bet_winnings"
)

// Transaction is the atomic unit of work. From holds the caller's full
// hex-encoded ed25519 public key; every authorization check compares
// against it. Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens from the sender.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// InitializePayload bootstraps the GlobalConfig.
type InitializePayload struct {
	Admin  string         `json:"admin"`
	Hasher string         `json:"hasher,omitempty"`
	Mode   SettlementMode `json:"mode,omitempty"`
}

// SetMerkleRootPayload replaces the trusted payout root.
type SetMerkleRootPayload struct {
	Root crypto.Digest `json:"merkle_root"`
}

// CreateBattlePayload opens a battle and escrows the creator's stake.
type CreateBattlePayload struct {
	BattleType   BattleType `json:"battle_type"`
	LeagueAmount uint64     `json:"league_amount"`
	DurationDays uint8      `json:"duration_days"`
}

// JoinBattlePayload joins a battle and escrows the joiner's stake.
type JoinBattlePayload struct {
	Battle string `json:"battle"`
}

// CommitInitialStatePayload records a player's snapshot hash.
type CommitInitialStatePayload struct {
	Battle string        `json:"battle"`
	Hash   crypto.Digest `json:"wallet_balance_hash"`
}

// ClaimWinningsPayload claims a Merkle-authorized payout from a battle vault.
type ClaimWinningsPayload struct {
	Battle string          `json:"battle"`
	Proof  []crypto.Digest `json:"merkle_proof"`
	Amount uint64          `json:"amount"`
	Leaf   crypto.Digest   `json:"leaf_hash"`
}

// PlaceBetPayload stakes Amount on PredictedWinner.
type PlaceBetPayload struct {
	Battle          string `json:"battle"`
	PredictedWinner string `json:"predicted_winner"`
	Amount          uint64 `json:"bet_amount"`
}

// ClaimBetWinningsPayload claims a Merkle-authorized bet payout. Bet may be
// left empty to claim the sender's own bet slot.
type ClaimBetWinningsPayload struct {
	Battle       string          `json:"battle"`
	Bet          string          `json:"bet,omitempty"`
	Proof        []crypto.Digest `json:"merkle_proof"`
	PayoutAmount uint64          `json:"payout_amount"`
	Leaf         crypto.Digest   `json:"leaf_hash"`
}

package wallet

import (
	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers. Every
// builder returns a signed transaction for chainID at the given nonce.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key. It is the wallet's
// on-chain identity: the "from" of its transactions and the key battles,
// bets and Merkle leaves refer to.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// Initialize bootstraps the global config with admin as administrator.
func (w *Wallet) Initialize(chainID, admin, hasher string, mode core.SettlementMode, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxInitialize, nonce, fee, core.InitializePayload{
		Admin:  admin,
		Hasher: hasher,
		Mode:   mode,
	})
}

// SetMerkleRoot publishes root as the payout commitment.
func (w *Wallet) SetMerkleRoot(chainID string, root crypto.Digest, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxSetMerkleRoot, nonce, fee, core.SetMerkleRootPayload{Root: root})
}

// CreateBattle opens a battle staking leagueAmount.
func (w *Wallet) CreateBattle(chainID string, typ core.BattleType, leagueAmount uint64, durationDays uint8, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCreateBattle, nonce, fee, core.CreateBattlePayload{
		BattleType:   typ,
		LeagueAmount: leagueAmount,
		DurationDays: durationDays,
	})
}

// JoinBattle joins battle, staking its league amount.
func (w *Wallet) JoinBattle(chainID, battle string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxJoinBattle, nonce, fee, core.JoinBattlePayload{Battle: battle})
}

// CommitInitialState records hash as the wallet's snapshot for battle.
func (w *Wallet) CommitInitialState(chainID, battle string, hash crypto.Digest, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCommitInitialState, nonce, fee, core.CommitInitialStatePayload{
		Battle: battle,
		Hash:   hash,
	})
}

// ClaimWinnings claims amount from battle's vault against proof.
func (w *Wallet) ClaimWinnings(chainID, battle string, proof []crypto.Digest, amount uint64, leaf crypto.Digest, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaimWinnings, nonce, fee, core.ClaimWinningsPayload{
		Battle: battle,
		Proof:  proof,
		Amount: amount,
		Leaf:   leaf,
	})
}

// PlaceBet stakes amount on predictedWinner in battle.
func (w *Wallet) PlaceBet(chainID, battle, predictedWinner string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxPlaceBet, nonce, fee, core.PlaceBetPayload{
		Battle:          battle,
		PredictedWinner: predictedWinner,
		Amount:          amount,
	})
}

// ClaimBetWinnings claims payout for the wallet's bet on battle.
func (w *Wallet) ClaimBetWinnings(chainID, battle string, proof []crypto.Digest, payout uint64, leaf crypto.Digest, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaimBetWinnings, nonce, fee, core.ClaimBetWinningsPayload{
		Battle:       battle,
		Proof:        proof,
		PayoutAmount: payout,
		Leaf:         leaf,
	})
}

package core

import "github.com/tolelom/kombat/crypto"

// Account holds a token balance and replay-protection nonce.
// For end users Address is the hex-encoded ed25519 public key and Authority
// is empty. Vault accounts carry a derived Address and name the battle or
// pool that may sign for them in Authority.
type Account struct {
	Address   string `json:"address"`
	Balance   uint64 `json:"balance"`
	Nonce     uint64 `json:"nonce"`
	Authority string `json:"authority,omitempty"`
}

// Signer returns the identity allowed to debit the account.
func (a *Account) Signer() string {
	if a.Authority != "" {
		return a.Authority
	}
	return a.Address
}

// SettlementMode selects how strictly claims are bound to their leaves.
type SettlementMode string

const (
	// ModeCompat verifies only the proof against the root. A winnings leaf
	// may be claimed again while the vault still holds funds.
	ModeCompat SettlementMode = "compat"
	// ModeStrict additionally requires the leaf to be the canonical hash of
	// (battle, claimant, amount) and consumes each winnings leaf once.
	ModeStrict SettlementMode = "strict"
)

// Valid reports whether m is a known mode. The empty mode means ModeCompat.
func (m SettlementMode) Valid() bool {
	return m == "" || m == ModeCompat || m == ModeStrict
}

// GlobalConfig is the per-deployment settlement configuration. It is created
// once and afterwards only its MerkleRoot changes, through set_merkle_root.
type GlobalConfig struct {
	Address    string         `json:"address"`
	Admin      string         `json:"admin"`
	MerkleRoot crypto.Digest  `json:"merkle_root"`
	Hasher     string         `json:"hasher"`
	Mode       SettlementMode `json:"mode"`
}

// Strict reports whether claims run in ModeStrict.
func (g *GlobalConfig) Strict() bool {
	return g.Mode == ModeStrict
}

// Battle is one wager session. Its lifecycle state is never stored; see
// DeriveState.
type Battle struct {
	ID             string     `json:"id"`
	Creator        string     `json:"creator"`
	Type           BattleType `json:"battle_type"`
	LeagueAmount   uint64     `json:"league_amount"`
	MaxPlayers     uint8      `json:"max_players"`
	CurrentPlayers uint8      `json:"current_players"`
	Players        []string   `json:"players"`
	StartTime      int64      `json:"start_time"`
	EndTime        int64      `json:"end_time"`
	Active         bool       `json:"is_active"`
	TotalPool      uint64     `json:"total_pool"`
	Vault          string     `json:"vault"`
}

// VaultKind distinguishes the two escrow containers.
type VaultKind string

const (
	VaultBattle  VaultKind = "battle"
	VaultBetting VaultKind = "betting"
)

// Vault is the bookkeeping record of an escrow account. The tokens live in
// the Account at Address; Deposited-Released must always equal its balance.
type Vault struct {
	Address   string    `json:"address"`
	Owner     string    `json:"owner"` // battle or betting pool ID
	Kind      VaultKind `json:"kind"`
	Deposited uint64    `json:"deposited"`
	Released  uint64    `json:"released"`
}

// Held returns the amount the vault should currently hold.
func (v *Vault) Held() uint64 {
	return v.Deposited - v.Released
}

// PlayerCommit is a player's anti-cheat snapshot hash for one battle.
type PlayerCommit struct {
	ID        string        `json:"id"`
	Battle    string        `json:"battle"`
	Player    string        `json:"player"`
	Hash      crypto.Digest `json:"hash"`
	Timestamp int64         `json:"timestamp"`
	Verified  bool          `json:"is_verified"`
}

// BettingPool aggregates observer bets on a 1v1 battle by player slot.
type BettingPool struct {
	ID        string `json:"id"`
	Battle    string `json:"battle"`
	Total     uint64 `json:"total_pool"`
	OnPlayerA uint64 `json:"bets_on_player_a"`
	OnPlayerB uint64 `json:"bets_on_player_b"`
	Settled   bool   `json:"is_settled"`
	Vault     string `json:"vault"`
}

// Bet is a single observer's stake on a predicted winner.
type Bet struct {
	ID              string `json:"id"`
	Bettor          string `json:"bettor"`
	Battle          string `json:"battle"`
	PredictedWinner string `json:"predicted_winner"`
	Amount          uint64 `json:"amount"`
	Claimed         bool   `json:"is_claimed"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
//
// Create* methods fail with ErrAlreadyExists when the key is occupied;
// Set* methods overwrite.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Global configuration
	GetConfig() (*GlobalConfig, error)
	CreateConfig(cfg *GlobalConfig) error
	SetConfig(cfg *GlobalConfig) error

	// Battles
	GetBattle(id string) (*Battle, error)
	CreateBattle(b *Battle) error
	SetBattle(b *Battle) error

	// Vaults
	GetVault(address string) (*Vault, error)
	CreateVault(v *Vault) error
	SetVault(v *Vault) error

	// Commitments
	GetCommit(id string) (*PlayerCommit, error)
	CreateCommit(c *PlayerCommit) error

	// Betting
	GetBettingPool(id string) (*BettingPool, error)
	SetBettingPool(p *BettingPool) error
	GetBet(id string) (*Bet, error)
	CreateBet(bet *Bet) error
	SetBet(bet *Bet) error

	// Consumed payout leaves
	HasClaimedLeaf(id string) (bool, error)
	MarkClaimedLeaf(id string) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}

package core

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tolelom/kombat/crypto"
)

const (
	MaxPlayersOneVsOne    = 2
	MaxPlayersFriends     = 6
	MaxBattleDurationDays = 7
	SecondsPerDay         = 86400
)

// BattleType is the kind of wager session.
type BattleType string

const (
	OneVsOne BattleType = "one_vs_one"
	Friends  BattleType = "friends"
)

// MaxPlayers returns the capacity for t, or 0 if t is unknown.
func (t BattleType) MaxPlayers() uint8 {
	switch t {
	case OneVsOne:
		return MaxPlayersOneVsOne
	case Friends:
		return MaxPlayersFriends
	default:
		return 0
	}
}

func (t *BattleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch BattleType(s) {
	case OneVsOne, Friends:
		*t = BattleType(s)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBattleType, s)
	}
}

// BattleState is the lifecycle state derived from a battle and a clock sample.
type BattleState string

const (
	StateCreated BattleState = "created"
	StateOpen    BattleState = "open"
	StateFull    BattleState = "full"
	StateExpired BattleState = "expired"
)

// DeriveState computes the lifecycle state of b at time now. Nothing stores
// this value; every operation re-derives what it needs.
func DeriveState(b *Battle, now int64) BattleState {
	switch {
	case !b.Active || now >= b.EndTime:
		return StateExpired
	case b.CurrentPlayers >= b.MaxPlayers:
		return StateFull
	case b.CurrentPlayers <= 1:
		return StateCreated
	default:
		return StateOpen
	}
}

// HasPlayer reports whether id has joined b.
func (b *Battle) HasPlayer(id string) bool {
	return slices.Contains(b.Players, id)
}

// Ended reports whether no further joins, commits or bets are accepted.
func (b *Battle) Ended(now int64) bool {
	return now >= b.EndTime
}

// Claimable reports whether payouts may be claimed. Note the strict
// inequality: at now == EndTime a battle is neither open nor claimable.
func (b *Battle) Claimable(now int64) bool {
	return now > b.EndTime
}

// ---- derived identifiers ----

// GlobalConfigAddress is the fixed address of the GlobalConfig singleton.
var GlobalConfigAddress = crypto.DeriveAddress([]byte("global_state"))

// BattleID derives the battle address for creator and stake.
func BattleID(creator string, leagueAmount uint64) string {
	return crypto.DeriveAddress([]byte("battle"), []byte(creator), crypto.Uint64Seed(leagueAmount))
}

// BattleVaultID derives the escrow address holding a battle's stakes.
func BattleVaultID(battle string) string {
	return crypto.DeriveAddress([]byte("battle_vault"), []byte(battle))
}

// CommitID derives the commitment slot for (battle, player).
func CommitID(battle, player string) string {
	return crypto.DeriveAddress([]byte("commit"), []byte(battle), []byte(player))
}

// BettingPoolID derives the betting pool address for a battle.
func BettingPoolID(battle string) string {
	return crypto.DeriveAddress([]byte("betting_pool"), []byte(battle))
}

// BettingVaultID derives the escrow address holding a battle's bets.
func BettingVaultID(battle string) string {
	return crypto.DeriveAddress([]byte("betting_vault"), []byte(battle))
}

// BetID derives the bet slot for (battle, bettor).
func BetID(battle, bettor string) string {
	return crypto.DeriveAddress([]byte("bet"), []byte(battle), []byte(bettor))
}

// ClaimedLeafID derives the marker recording that leaf was paid from battle.
func ClaimedLeafID(battle string, leaf crypto.Digest) string {
	return crypto.DeriveAddress([]byte("claimed_leaf"), []byte(battle), leaf[:])
}

package battle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/testutil"
	"github.com/tolelom/kombat/vm/modules/battle"
	"github.com/tolelom/kombat/wallet"
)

var start = time.Unix(1_700_000_000, 0)

const day = 24 * time.Hour

func createBattle(t *testing.T, c *testutil.Chain, creator *wallet.Wallet, typ core.BattleType, stake uint64, days uint8) *core.Battle {
	t.Helper()
	require.NoError(t, c.Send(creator, core.TxCreateBattle, core.CreateBattlePayload{
		BattleType:   typ,
		LeagueAmount: stake,
		DurationDays: days,
	}))
	b, err := battle.Load(c.State, core.BattleID(creator.PubKey(), stake))
	require.NoError(t, err)
	return b
}

func vaultBalance(t *testing.T, c *testutil.Chain, b *core.Battle) uint64 {
	t.Helper()
	v, err := c.State.GetVault(b.Vault)
	require.NoError(t, err)
	bal := c.Balance(b.Vault)
	assert.Equal(t, v.Held(), bal, "vault ledger matches balance")
	return bal
}

func TestCreateBattle(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)

	b := createBattle(t, c, creator, core.OneVsOne, 100, 3)

	assert.Equal(t, creator.PubKey(), b.Creator)
	assert.Equal(t, []string{creator.PubKey()}, b.Players)
	assert.Equal(t, uint8(1), b.CurrentPlayers)
	assert.Equal(t, uint8(2), b.MaxPlayers)
	assert.Equal(t, start.Unix(), b.StartTime)
	assert.Equal(t, start.Unix()+3*core.SecondsPerDay, b.EndTime)
	assert.Equal(t, uint64(100), b.TotalPool)
	assert.True(t, b.Active)
	assert.Equal(t, core.StateCreated, core.DeriveState(b, start.Unix()))

	assert.Equal(t, uint64(900), c.Balance(creator.PubKey()))
	assert.Equal(t, uint64(100), vaultBalance(t, c, b))

	evs := c.EventsOf(events.EventBattleCreated)
	require.Len(t, evs, 1)
	assert.Equal(t, b.ID, evs[0].Data["battle"])

	// Same creator and stake derive the same battle ID.
	err := c.Send(creator, core.TxCreateBattle, core.CreateBattlePayload{BattleType: core.Friends, LeagueAmount: 100, DurationDays: 1})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestCreateBattleValidation(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)

	err := c.Send(creator, core.TxCreateBattle, core.CreateBattlePayload{BattleType: core.OneVsOne, LeagueAmount: 1, DurationDays: 8})
	assert.ErrorIs(t, err, core.ErrInvalidDuration)

	err = c.Send(creator, core.TxCreateBattle, map[string]any{"battle_type": "ffa", "league_amount": 1, "duration_days": 1})
	assert.ErrorIs(t, err, core.ErrInvalidBattleType)

	err = c.Send(creator, core.TxCreateBattle, core.CreateBattlePayload{BattleType: core.OneVsOne, DurationDays: 1})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	err = c.Send(creator, core.TxCreateBattle, core.CreateBattlePayload{BattleType: core.OneVsOne, LeagueAmount: 1001, DurationDays: 1})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	_, err = c.State.GetBattle(core.BattleID(creator.PubKey(), 1001))
	assert.ErrorIs(t, err, core.ErrNotFound, "failed create leaves nothing behind")

	assert.Equal(t, uint64(1000), c.Balance(creator.PubKey()))
}

func TestJoinBattle(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	joiner := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.OneVsOne, 100, 1)

	require.NoError(t, c.Send(joiner, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID}))

	b, err := battle.Load(c.State, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{creator.PubKey(), joiner.PubKey()}, b.Players)
	assert.Equal(t, uint64(200), b.TotalPool)
	assert.Equal(t, core.StateFull, core.DeriveState(b, c.Now().Unix()))
	assert.Equal(t, uint64(200), vaultBalance(t, c, b))
	assert.Equal(t, uint64(900), c.Balance(joiner.PubKey()))

	evs := c.EventsOf(events.EventPlayerJoined)
	require.Len(t, evs, 1)
	assert.Equal(t, uint8(2), evs[0].Data["total_players"])
}

func TestJoinErrorOrder(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.OneVsOne, 100, 1)

	err := c.Send(creator, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrAlreadyJoined)

	second := c.NewWallet(1000)
	require.NoError(t, c.Send(second, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID}))

	// Full is reported before Ended once both apply.
	c.Advance(2 * day)
	third := c.NewWallet(1000)
	err = c.Send(third, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrBattleFull)
}

func TestJoinAtEndTime(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.Friends, 10, 1)

	c.SetTime(time.Unix(b.EndTime, 0))
	late := c.NewWallet(1000)
	err := c.Send(late, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrBattleEnded)
	assert.Equal(t, uint64(1000), c.Balance(late.PubKey()))
}

func TestJoinUnknownBattle(t *testing.T) {
	c := testutil.NewChain(t, start)
	w := c.NewWallet(1000)
	err := c.Send(w, core.TxJoinBattle, core.JoinBattlePayload{Battle: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestJoinWithoutFundsLeavesBattleUnchanged(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.OneVsOne, 100, 1)

	poor := c.NewWallet(99)
	err := c.Send(poor, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	b, err = battle.Load(c.State, b.ID)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b.CurrentPlayers)
	assert.Equal(t, uint64(100), b.TotalPool)
	assert.Empty(t, c.EventsOf(events.EventPlayerJoined))
}

func TestFriendsCapacity(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.Friends, 50, 7)

	for i := 0; i < core.MaxPlayersFriends-1; i++ {
		w := c.NewWallet(50)
		require.NoError(t, c.Send(w, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID}))
	}
	extra := c.NewWallet(50)
	err := c.Send(extra, core.TxJoinBattle, core.JoinBattlePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrBattleFull)

	b, err = battle.Load(c.State, b.ID)
	require.NoError(t, err)
	assert.Len(t, b.Players, core.MaxPlayersFriends)
	assert.Equal(t, uint64(50*core.MaxPlayersFriends), b.TotalPool)
	assert.Equal(t, b.TotalPool, vaultBalance(t, c, b))
}

func TestCommitInitialState(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.OneVsOne, 100, 1)
	hash := crypto.SHA256{}.Sum([]byte("wallet snapshot"))

	outsider := c.NewWallet(10)
	err := c.Send(outsider, core.TxCommitInitialState, core.CommitInitialStatePayload{Battle: b.ID, Hash: hash})
	assert.ErrorIs(t, err, core.ErrNotParticipant)

	c.Advance(time.Minute)
	require.NoError(t, c.Send(creator, core.TxCommitInitialState, core.CommitInitialStatePayload{Battle: b.ID, Hash: hash}))

	commit, err := c.State.GetCommit(core.CommitID(b.ID, creator.PubKey()))
	require.NoError(t, err)
	assert.Equal(t, hash, commit.Hash)
	assert.Equal(t, c.Now().Unix(), commit.Timestamp)
	assert.False(t, commit.Verified)

	evs := c.EventsOf(events.EventPlayerCommitted)
	require.Len(t, evs, 1)
	assert.Equal(t, hash.String(), evs[0].Data["hash"])

	err = c.Send(creator, core.TxCommitInitialState, core.CommitInitialStatePayload{Battle: b.ID, Hash: hash})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestCommitAfterEnd(t *testing.T) {
	c := testutil.NewChain(t, start)
	creator := c.NewWallet(1000)
	b := createBattle(t, c, creator, core.OneVsOne, 100, 1)

	c.SetTime(time.Unix(b.EndTime, 0))
	err := c.Send(creator, core.TxCommitInitialState, core.CommitInitialStatePayload{Battle: b.ID})
	assert.ErrorIs(t, err, core.ErrBattleEnded)
}

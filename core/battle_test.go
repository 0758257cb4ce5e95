package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveState(t *testing.T) {
	newBattle := func(players uint8) *Battle {
		return &Battle{
			Type:           OneVsOne,
			MaxPlayers:     MaxPlayersOneVsOne,
			CurrentPlayers: players,
			EndTime:        1000,
			Active:         true,
		}
	}

	tests := []struct {
		name string
		b    *Battle
		now  int64
		want BattleState
	}{
		{"creator only", newBattle(1), 10, StateCreated},
		{"full", newBattle(2), 10, StateFull},
		{"at end time", newBattle(1), 1000, StateExpired},
		{"after end time", newBattle(2), 1001, StateExpired},
		{"inactive", &Battle{MaxPlayers: 6, CurrentPlayers: 3, EndTime: 1000}, 10, StateExpired},
		{"friends partially joined", &Battle{Type: Friends, MaxPlayers: 6, CurrentPlayers: 3, EndTime: 1000, Active: true}, 10, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.b, tt.now))
		})
	}
}

func TestEndTimeBoundary(t *testing.T) {
	b := &Battle{EndTime: 500}

	assert.False(t, b.Ended(499))
	assert.False(t, b.Claimable(499))

	// At exactly EndTime the battle accepts nothing and pays nothing.
	assert.True(t, b.Ended(500))
	assert.False(t, b.Claimable(500))

	assert.True(t, b.Claimable(501))
}

func TestBattleTypeJSON(t *testing.T) {
	var p CreateBattlePayload
	require.NoError(t, json.Unmarshal([]byte(`{"battle_type":"friends","league_amount":5,"duration_days":2}`), &p))
	assert.Equal(t, Friends, p.BattleType)
	assert.Equal(t, uint8(MaxPlayersFriends), p.BattleType.MaxPlayers())

	err := json.Unmarshal([]byte(`{"battle_type":"free_for_all"}`), &p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBattleType))
}

func TestDerivedIDsAreDistinct(t *testing.T) {
	battle := BattleID("creator", 100)
	assert.Equal(t, battle, BattleID("creator", 100))
	assert.NotEqual(t, battle, BattleID("creator", 101))

	ids := []string{
		GlobalConfigAddress,
		battle,
		BattleVaultID(battle),
		BettingPoolID(battle),
		BettingVaultID(battle),
		CommitID(battle, "p"),
		BetID(battle, "p"),
	}
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestErrorKinds(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrAlreadyClaimed)
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "AlreadyClaimed", e.Code)
	assert.Equal(t, KindStateConflict, e.Kind)

	_, ok = AsError(ErrNotFound)
	assert.False(t, ok)
}

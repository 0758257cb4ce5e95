// Package battle implements the battle lifecycle: creation with the
// creator's stake escrowed, joining, and per-player state commitments.
//
// No state field is stored on a battle. Each operation re-checks the
// predicates it depends on against the clock sample of its own block, in a
// fixed order so the reported error is deterministic.
package battle

import (
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/vm"
	"github.com/tolelom/kombat/vm/modules/internal/escrow"
)

func init() {
	vm.Register(core.TxCreateBattle, vm.Typed(core.TxCreateBattle, handleCreate))
	vm.Register(core.TxJoinBattle, vm.Typed(core.TxJoinBattle, handleJoin))
	vm.Register(core.TxCommitInitialState, vm.Typed(core.TxCommitInitialState, handleCommit))
}

// Create opens a battle for creator and escrows the first stake.
func Create(state core.State, creator string, now int64, p core.CreateBattlePayload) (*core.Battle, error) {
	if p.DurationDays > core.MaxBattleDurationDays {
		return nil, core.ErrInvalidDuration
	}
	maxPlayers := p.BattleType.MaxPlayers()
	if maxPlayers == 0 {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidBattleType, p.BattleType)
	}
	if p.LeagueAmount == 0 {
		return nil, fmt.Errorf("league amount: %w", core.ErrInvalidAmount)
	}

	id := core.BattleID(creator, p.LeagueAmount)
	b := &core.Battle{
		ID:             id,
		Creator:        creator,
		Type:           p.BattleType,
		LeagueAmount:   p.LeagueAmount,
		MaxPlayers:     maxPlayers,
		CurrentPlayers: 1,
		Players:        []string{creator},
		StartTime:      now,
		EndTime:        now + int64(p.DurationDays)*core.SecondsPerDay,
		Active:         true,
		TotalPool:      p.LeagueAmount,
		Vault:          core.BattleVaultID(id),
	}
	if err := state.CreateBattle(b); err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}

	vault, err := escrow.Open(state, b.Vault, id, core.VaultBattle)
	if err != nil {
		return nil, err
	}
	if err := escrow.Deposit(state, vault, creator, p.LeagueAmount); err != nil {
		return nil, err
	}
	return b, nil
}

// Join adds player to the battle and escrows their stake.
func Join(state core.State, battleID, player string, now int64) (*core.Battle, error) {
	b, err := Load(state, battleID)
	if err != nil {
		return nil, err
	}

	switch {
	case !b.Active:
		return nil, core.ErrBattleNotActive
	case b.CurrentPlayers >= b.MaxPlayers:
		return nil, core.ErrBattleFull
	case b.Ended(now):
		return nil, core.ErrBattleEnded
	case b.HasPlayer(player):
		return nil, core.ErrAlreadyJoined
	}
	if b.TotalPool+b.LeagueAmount < b.TotalPool {
		return nil, core.ErrAmountOverflow
	}

	b.Players = append(b.Players, player)
	b.CurrentPlayers++
	b.TotalPool += b.LeagueAmount
	if err := state.SetBattle(b); err != nil {
		return nil, err
	}

	vault, err := escrow.Load(state, b.Vault)
	if err != nil {
		return nil, err
	}
	if err := escrow.Deposit(state, vault, player, b.LeagueAmount); err != nil {
		return nil, err
	}
	return b, nil
}

// CommitInitialState records hash as player's snapshot for the battle.
// Each (battle, player) pair has exactly one slot; a second commit fails
// with core.ErrAlreadyExists.
func CommitInitialState(state core.State, battleID, player string, hash crypto.Digest, now int64) (*core.PlayerCommit, error) {
	b, err := Load(state, battleID)
	if err != nil {
		return nil, err
	}

	switch {
	case !b.Active:
		return nil, core.ErrBattleNotActive
	case !b.HasPlayer(player):
		return nil, core.ErrNotParticipant
	case b.Ended(now):
		return nil, core.ErrBattleEnded
	}

	c := &core.PlayerCommit{
		ID:        core.CommitID(b.ID, player),
		Battle:    b.ID,
		Player:    player,
		Hash:      hash,
		Timestamp: now,
	}
	if err := state.CreateCommit(c); err != nil {
		return nil, fmt.Errorf("commit initial state: %w", err)
	}
	return c, nil
}

// Load returns the battle with the given ID.
func Load(state core.State, id string) (*core.Battle, error) {
	b, err := state.GetBattle(id)
	if err != nil {
		return nil, fmt.Errorf("battle %q: %w", id, err)
	}
	return b, nil
}

func handleCreate(ctx *vm.Context, p core.CreateBattlePayload) error {
	b, err := Create(ctx.State, ctx.Caller(), ctx.Now(), p)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventBattleCreated, map[string]any{
		"battle":        b.ID,
		"creator":       b.Creator,
		"battle_type":   string(b.Type),
		"league_amount": b.LeagueAmount,
		"end_time":      b.EndTime,
	})
	return nil
}

func handleJoin(ctx *vm.Context, p core.JoinBattlePayload) error {
	b, err := Join(ctx.State, p.Battle, ctx.Caller(), ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventPlayerJoined, map[string]any{
		"battle":        b.ID,
		"player":        ctx.Caller(),
		"total_players": b.CurrentPlayers,
	})
	return nil
}

func handleCommit(ctx *vm.Context, p core.CommitInitialStatePayload) error {
	c, err := CommitInitialState(ctx.State, p.Battle, ctx.Caller(), p.Hash, ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventPlayerCommitted, map[string]any{
		"battle":    c.Battle,
		"player":    c.Player,
		"hash":      c.Hash.String(),
		"timestamp": c.Timestamp,
	})
	return nil
}

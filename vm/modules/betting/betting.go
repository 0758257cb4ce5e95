// Package betting implements the pari-mutuel pool observers stake into on
// the outcome of a full 1v1 battle. Stakes are tracked per player slot:
// slot A is players[0], slot B is players[1]. Odds and payouts are never
// computed here; settlement pays whatever the published root authorizes.
package betting

import (
	"errors"
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/vm"
	"github.com/tolelom/kombat/vm/modules/battle"
	"github.com/tolelom/kombat/vm/modules/internal/escrow"
)

func init() {
	vm.Register(core.TxPlaceBet, vm.Typed(core.TxPlaceBet, handlePlaceBet))
}

// PlaceBet records bettor's stake of amount on predictedWinner and escrows
// it in the battle's betting vault. The pool and vault are created on the
// first bet. A bettor holds at most one bet per battle; a second attempt
// fails with core.ErrAlreadyExists.
func PlaceBet(state core.State, battleID, bettor, predictedWinner string, amount uint64, now int64) (*core.Bet, *core.BettingPool, error) {
	b, err := battle.Load(state, battleID)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case b.Type != core.OneVsOne:
		return nil, nil, core.ErrBettingOnlyFor1v1
	case b.Ended(now):
		return nil, nil, core.ErrBattleEnded
	case b.CurrentPlayers != core.MaxPlayersOneVsOne:
		return nil, nil, core.ErrBattleNotFull
	case !b.HasPlayer(predictedWinner):
		return nil, nil, core.ErrInvalidPredictedWinner
	case b.HasPlayer(bettor):
		return nil, nil, core.ErrParticipantCannotBet
	case amount == 0:
		return nil, nil, fmt.Errorf("bet amount: %w", core.ErrInvalidAmount)
	}

	pool, err := loadOrInitPool(state, b.ID)
	if err != nil {
		return nil, nil, err
	}
	if pool.Total+amount < pool.Total {
		return nil, nil, core.ErrAmountOverflow
	}
	pool.Total += amount
	if predictedWinner == b.Players[0] {
		pool.OnPlayerA += amount
	} else {
		pool.OnPlayerB += amount
	}
	if err := state.SetBettingPool(pool); err != nil {
		return nil, nil, err
	}

	bet := &core.Bet{
		ID:              core.BetID(b.ID, bettor),
		Bettor:          bettor,
		Battle:          b.ID,
		PredictedWinner: predictedWinner,
		Amount:          amount,
	}
	if err := state.CreateBet(bet); err != nil {
		return nil, nil, fmt.Errorf("place bet: %w", err)
	}

	vault, err := escrow.LoadOrOpen(state, pool.Vault, pool.ID, core.VaultBetting)
	if err != nil {
		return nil, nil, err
	}
	if err := escrow.Deposit(state, vault, bettor, amount); err != nil {
		return nil, nil, err
	}
	return bet, pool, nil
}

// loadOrInitPool returns the pool for battleID, zero-initialized if this is
// the first bet.
func loadOrInitPool(state core.State, battleID string) (*core.BettingPool, error) {
	id := core.BettingPoolID(battleID)
	pool, err := state.GetBettingPool(id)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("betting pool %s: %w", id, err)
	}
	return &core.BettingPool{
		ID:     id,
		Battle: battleID,
		Vault:  core.BettingVaultID(battleID),
	}, nil
}

func handlePlaceBet(ctx *vm.Context, p core.PlaceBetPayload) error {
	bet, _, err := PlaceBet(ctx.State, p.Battle, ctx.Caller(), p.PredictedWinner, p.Amount, ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventBetPlaced, map[string]any{
		"battle":           bet.Battle,
		"bettor":           bet.Bettor,
		"predicted_winner": bet.PredictedWinner,
		"amount":           bet.Amount,
	})
	return nil
}

// Package settlement releases escrowed funds once a battle has ended,
// against a Merkle proof that the payout is covered by the root the
// administrator published. Game results and odds are never recomputed.
//
// In compat mode a winnings claim is not recorded anywhere, so the same
// valid (leaf, proof) can be replayed until the battle vault is empty. Bet
// claims flip the bet's claimed flag before paying and cannot be replayed.
// Strict mode binds each leaf to (battle, claimant, amount) and consumes
// winnings leaves.
package settlement

import (
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/vm"
	"github.com/tolelom/kombat/vm/modules/battle"
	"github.com/tolelom/kombat/vm/modules/internal/escrow"
	"github.com/tolelom/kombat/vm/modules/settlement/internal/payout"
)

func init() {
	vm.Register(core.TxClaimWinnings, vm.Typed(core.TxClaimWinnings, handleClaimWinnings))
	vm.Register(core.TxClaimBetWinnings, vm.Typed(core.TxClaimBetWinnings, handleClaimBetWinnings))
}

// ClaimWinnings pays p.Amount from the battle vault to winner.
func ClaimWinnings(state core.State, cfg *core.GlobalConfig, winner string, p core.ClaimWinningsPayload, now int64) error {
	b, err := battle.Load(state, p.Battle)
	if err != nil {
		return err
	}
	if !b.Claimable(now) {
		return core.ErrBattleNotEnded
	}
	if !b.HasPlayer(winner) {
		return core.ErrNotParticipant
	}

	if cfg.Strict() {
		claimed, err := state.HasClaimedLeaf(core.ClaimedLeafID(b.ID, p.Leaf))
		if err != nil {
			return err
		}
		if claimed {
			return core.ErrAlreadyClaimed
		}
	}
	if err := authorize(cfg, b.ID, winner, p.Amount, p.Proof, p.Leaf); err != nil {
		return err
	}
	if cfg.Strict() {
		if err := state.MarkClaimedLeaf(core.ClaimedLeafID(b.ID, p.Leaf)); err != nil {
			return err
		}
	}

	vault, err := escrow.Load(state, b.Vault)
	if err != nil {
		return err
	}
	return payout.Release(state, payout.Grant(vault), vault, winner, p.Amount)
}

// ClaimBetWinnings pays p.PayoutAmount from the betting vault to bettor and
// marks the bet claimed.
func ClaimBetWinnings(state core.State, cfg *core.GlobalConfig, bettor string, p core.ClaimBetWinningsPayload, now int64) (*core.Bet, error) {
	b, err := battle.Load(state, p.Battle)
	if err != nil {
		return nil, err
	}
	if !b.Claimable(now) {
		return nil, core.ErrBattleNotEnded
	}

	betID := p.Bet
	if betID == "" {
		betID = core.BetID(b.ID, bettor)
	}
	bet, err := state.GetBet(betID)
	if err != nil {
		return nil, fmt.Errorf("bet %q: %w", betID, err)
	}
	if bet.Battle != b.ID {
		return nil, fmt.Errorf("bet %q is not on battle %q: %w", betID, b.ID, core.ErrNotFound)
	}
	if bet.Bettor != bettor {
		return nil, core.ErrNotBetOwner
	}
	if bet.Claimed {
		return nil, core.ErrAlreadyClaimed
	}
	if err := authorize(cfg, b.ID, bettor, p.PayoutAmount, p.Proof, p.Leaf); err != nil {
		return nil, err
	}

	bet.Claimed = true
	if err := state.SetBet(bet); err != nil {
		return nil, err
	}

	vault, err := escrow.Load(state, core.BettingVaultID(b.ID))
	if err != nil {
		return nil, err
	}
	if err := payout.Release(state, payout.Grant(vault), vault, bettor, p.PayoutAmount); err != nil {
		return nil, err
	}
	return bet, nil
}

// authorize checks proof against the configured root. In strict mode the
// leaf must also be the canonical leaf for (battle, payee, amount).
func authorize(cfg *core.GlobalConfig, battleID, payee string, amount uint64, proof []crypto.Digest, leaf crypto.Digest) error {
	h, err := crypto.HasherByName(cfg.Hasher)
	if err != nil {
		return fmt.Errorf("global config: %w", err)
	}
	if cfg.Strict() && leaf != crypto.LeafHash(h, battleID, payee, amount) {
		return core.ErrLeafMismatch
	}
	if !crypto.VerifyProof(h, proof, cfg.MerkleRoot, leaf) {
		return core.ErrInvalidMerkleProof
	}
	return nil
}

func handleClaimWinnings(ctx *vm.Context, p core.ClaimWinningsPayload) error {
	cfg, err := ctx.State.GetConfig()
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	if err := ClaimWinnings(ctx.State, cfg, ctx.Caller(), p, ctx.Now()); err != nil {
		return err
	}
	ctx.Emit(events.EventWinningsClaimed, map[string]any{
		"battle": p.Battle,
		"winner": ctx.Caller(),
		"amount": p.Amount,
	})
	return nil
}

func handleClaimBetWinnings(ctx *vm.Context, p core.ClaimBetWinningsPayload) error {
	cfg, err := ctx.State.GetConfig()
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	bet, err := ClaimBetWinnings(ctx.State, cfg, ctx.Caller(), p, ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventBetWinningsClaimed, map[string]any{
		"battle": bet.Battle,
		"bettor": bet.Bettor,
		"amount": p.PayoutAmount,
	})
	return nil
}

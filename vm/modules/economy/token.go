// Package economy provides the token-transfer primitive every escrow
// movement goes through, plus the user-facing transfer transaction.
package economy

import (
	"errors"
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/vm"
)

func init() {
	vm.Register(core.TxTransfer, vm.Typed(core.TxTransfer, handleTransfer))
}

// Transfer debits from and credits to by amount. authority must be the
// signer of the source account: its own address for user accounts, the
// owning battle or pool for vault accounts.
func Transfer(state core.State, from, to, authority string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("transfer: %w", core.ErrInvalidAmount)
	}
	if to == "" {
		return errors.New("transfer: to address required")
	}

	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Signer() != authority {
		return fmt.Errorf("transfer from %s: %w", from, core.ErrUnauthorized)
	}
	if sender.Balance < amount {
		return fmt.Errorf("transfer from %s: %w: have %d, need %d",
			from, core.ErrInsufficientFunds, sender.Balance, amount)
	}
	if from == to {
		return nil
	}
	sender.Balance -= amount
	if err := state.SetAccount(sender); err != nil {
		return err
	}

	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance+amount < recipient.Balance {
		return fmt.Errorf("transfer to %s: %w", to, core.ErrAmountOverflow)
	}
	recipient.Balance += amount
	return state.SetAccount(recipient)
}

func handleTransfer(ctx *vm.Context, p core.TransferPayload) error {
	// Users sign only for their own account here, and may not pay into a
	// derived address: vault balances move exclusively through escrow.
	if crypto.IsDerivedAddress(p.To) {
		return fmt.Errorf("transfer to derived address %s: %w", p.To, core.ErrUnauthorized)
	}
	if err := Transfer(ctx.State, ctx.Caller(), p.To, ctx.Caller(), p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Caller(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

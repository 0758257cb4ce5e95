// Package payout is the only way funds leave a vault. Being internal to the
// settlement module, the battle and betting modules cannot import it, so
// stakes they escrow can be released only by a verified claim.
package payout

import (
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/vm/modules/economy"
	"github.com/tolelom/kombat/vm/modules/internal/escrow"
)

// Authority is the capability to debit one vault. Its fields are
// unexported, so the zero value is the only one other packages can build,
// and Release rejects it.
type Authority struct {
	vault string
	owner string
}

// Grant returns the debit capability for v. Call it only after the claim
// has been authorized against the payout root.
func Grant(v *core.Vault) Authority {
	return Authority{vault: v.Address, owner: v.Owner}
}

// Release pays amount out of v to the to account under auth and records it
// in the vault ledger.
func Release(state core.State, auth Authority, v *core.Vault, to string, amount uint64) error {
	if auth.vault == "" || auth.vault != v.Address || auth.owner != v.Owner {
		return fmt.Errorf("release from %s: %w", v.Address, core.ErrUnauthorized)
	}
	if amount > v.Held() {
		return fmt.Errorf("release from %s: %w: holds %d, need %d",
			v.Address, core.ErrInsufficientFunds, v.Held(), amount)
	}
	if err := economy.Transfer(state, v.Address, to, auth.owner, amount); err != nil {
		return fmt.Errorf("release from %s: %w", v.Address, err)
	}
	v.Released += amount
	return escrow.Reconcile(state, v)
}

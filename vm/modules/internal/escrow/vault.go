// Package escrow models the pooled-fund vaults behind battles and betting
// pools: opening them, depositing stakes and keeping the Deposited/Released
// ledger equal to the account balance. A vault account is signed for by its
// owner's derived identity, never by a person. Paying out is not possible
// from here; see the settlement module's payout package.
package escrow

import (
	"errors"
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/vm/modules/economy"
)

// Open creates the vault record and its escrow account.
func Open(state core.State, address, owner string, kind core.VaultKind) (*core.Vault, error) {
	v := &core.Vault{Address: address, Owner: owner, Kind: kind}
	if err := state.CreateVault(v); err != nil {
		return nil, fmt.Errorf("open %s vault: %w", kind, err)
	}
	acc, err := state.GetAccount(address)
	if err != nil {
		return nil, err
	}
	if acc.Balance != 0 {
		return nil, fmt.Errorf("open %s vault %s: %w", kind, address, core.ErrVaultImbalance)
	}
	acc.Authority = owner
	if err := state.SetAccount(acc); err != nil {
		return nil, err
	}
	return v, nil
}

// Load returns the vault at address, or nil with core.ErrNotFound.
func Load(state core.State, address string) (*core.Vault, error) {
	v, err := state.GetVault(address)
	if err != nil {
		return nil, fmt.Errorf("vault %s: %w", address, err)
	}
	return v, nil
}

// LoadOrOpen returns the existing vault at address or opens a new one.
func LoadOrOpen(state core.State, address, owner string, kind core.VaultKind) (*core.Vault, error) {
	v, err := state.GetVault(address)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("vault %s: %w", address, err)
	}
	return Open(state, address, owner, kind)
}

// Deposit moves amount from the from account, signed by from, into v.
func Deposit(state core.State, v *core.Vault, from string, amount uint64) error {
	if v.Deposited+amount < v.Deposited {
		return fmt.Errorf("deposit into %s: %w", v.Address, core.ErrAmountOverflow)
	}
	if err := economy.Transfer(state, from, v.Address, from, amount); err != nil {
		return fmt.Errorf("deposit into %s: %w", v.Address, err)
	}
	v.Deposited += amount
	return Reconcile(state, v)
}

// Balance returns the tokens currently held by v's account.
func Balance(state core.State, v *core.Vault) (uint64, error) {
	acc, err := state.GetAccount(v.Address)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Reconcile persists v after checking that its account balance equals
// deposits minus payouts.
func Reconcile(state core.State, v *core.Vault) error {
	bal, err := Balance(state, v)
	if err != nil {
		return err
	}
	if bal != v.Held() {
		return fmt.Errorf("vault %s: %w: balance %d, ledger %d",
			v.Address, core.ErrVaultImbalance, bal, v.Held())
	}
	return state.SetVault(v)
}

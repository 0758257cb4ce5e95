// Package admin bootstraps the settlement configuration and lets the
// administrator publish new payout roots.
package admin

import (
	"fmt"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/vm"
)

func init() {
	vm.Register(core.TxInitialize, vm.Typed(core.TxInitialize, handleInitialize))
	vm.Register(core.TxSetMerkleRoot, vm.Typed(core.TxSetMerkleRoot, handleSetMerkleRoot))
}

// Initialize creates the GlobalConfig with a zero root. It fails with
// core.ErrAlreadyExists once a config exists.
func Initialize(state core.State, admin, hasher string, mode core.SettlementMode) (*core.GlobalConfig, error) {
	if _, err := crypto.PubKeyFromHex(admin); err != nil {
		return nil, fmt.Errorf("initialize: admin: %w", err)
	}
	h, err := crypto.HasherByName(hasher)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("initialize: unknown settlement mode %q", mode)
	}
	if mode == "" {
		mode = core.ModeCompat
	}
	cfg := &core.GlobalConfig{
		Address: core.GlobalConfigAddress,
		Admin:   admin,
		Hasher:  h.Name(),
		Mode:    mode,
	}
	if err := state.CreateConfig(cfg); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return cfg, nil
}

// SetMerkleRoot replaces the trusted root. Only cfg.Admin may call it.
func SetMerkleRoot(state core.State, cfg *core.GlobalConfig, caller string, root crypto.Digest) error {
	if caller != cfg.Admin {
		return core.ErrNotAdmin
	}
	cfg.MerkleRoot = root
	return state.SetConfig(cfg)
}

func handleInitialize(ctx *vm.Context, p core.InitializePayload) error {
	_, err := Initialize(ctx.State, p.Admin, p.Hasher, p.Mode)
	return err
}

func handleSetMerkleRoot(ctx *vm.Context, p core.SetMerkleRootPayload) error {
	cfg, err := ctx.State.GetConfig()
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	if err := SetMerkleRoot(ctx.State, cfg, ctx.Caller(), p.Root); err != nil {
		return err
	}
	ctx.Emit(events.EventMerkleRootUpdated, map[string]any{
		"root":  p.Root.String(),
		"admin": ctx.Caller(),
	})
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/vm/modules/admin"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 stamped with at. It credits
// the Alloc balances, bootstraps the global settlement config when an admin
// is configured, and commits state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey, at time.Time) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	if cfg.Genesis.Admin != "" {
		g := cfg.Genesis
		if _, err := admin.Initialize(state, g.Admin, g.Hasher, g.Mode); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlockAt(0, GenesisHash, proposerPub.Hex(), nil, at)
	block.Header.StateRoot = stateRoot
	// The chain ID is bound into the genesis hash through TxRoot.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}

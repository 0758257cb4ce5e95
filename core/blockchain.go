package core

import (
	"fmt"
	"sync"
)

// BlockStore is the persistence interface used by Blockchain.
// Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock atomically writes the block, its height index entry, and
	// the tip pointer.
	CommitBlock(block *Block) error
}

// Blockchain tracks the canonical sequence of committed blocks. Besides
// linkage it enforces that the clock sample never moves backwards, which
// is what makes end-time checks safe across blocks.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing chain tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// AddBlock checks block against the tip with CheckNext, then persists it and
// advances the tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := checkNext(bc.tip, block); err != nil {
		return err
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

// CheckNext reports whether block can extend the current tip: its height
// follows the tip, PrevHash links to it, and its clock sample does not move
// backwards. Any block may start a fresh chain.
func (bc *Blockchain) CheckNext(block *Block) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return checkNext(bc.tip, block)
}

func checkNext(tip, block *Block) error {
	if tip == nil {
		return nil
	}
	if block.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
	}
	if block.Header.PrevHash != tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
	}
	if block.Header.Timestamp < tip.Header.Timestamp {
		return fmt.Errorf("timestamp %d precedes tip %d", block.Header.Timestamp, tip.Header.Timestamp)
	}
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at the given height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the current tip (0 for a fresh chain).
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

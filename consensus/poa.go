// Package consensus implements Proof-of-Authority block production.
// Validators propose blocks in round-robin order. Each block is signed by
// the proposer; other nodes verify the signature before accepting the block.
//
// The proposer samples its clock once per block. Every transaction in the
// block observes that sample, and samples never move backwards.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/kombat/config"
	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/logger"
	"github.com/tolelom/kombat/vm"
)

const defaultMaxBlockTxs = 500

// PoA is the Proof-of-Authority consensus engine.
type PoA struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	log     zerolog.Logger
	now     func() time.Time
}

// Option customizes a PoA engine.
type Option func(*PoA)

// WithClock replaces the wall clock used to stamp blocks.
func WithClock(now func() time.Time) Option {
	return func(p *PoA) { p.now = now }
}

// New creates a PoA engine for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	log zerolog.Logger,
	opts ...Option,
) *PoA {
	p := &PoA{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		log:     logger.Component(log, "consensus"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	if len(p.cfg.Validators) == 0 {
		return false
	}
	nextHeight := p.bc.Height() + 1
	idx := int(nextHeight) % len(p.cfg.Validators)
	return p.cfg.Validators[idx] == p.pubKey.Hex()
}

// ProduceBlock builds, executes, signs and commits the next block.
// Transactions that fail are left out of the block and dropped from the
// mempool; their writes are reverted by the executor.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	if !p.IsProposer() {
		return nil, errors.New("not the proposer for this round")
	}

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = defaultMaxBlockTxs
	}
	txs := p.mempool.Pending(limit)

	tip := p.bc.Tip()
	var prevHash string
	var nextHeight int64
	at := p.now()
	if tip == nil {
		prevHash = config.GenesisHash
		nextHeight = 1
	} else {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
		if at.UnixNano() < tip.Header.Timestamp {
			at = time.Unix(0, tip.Header.Timestamp)
		}
	}

	block := core.NewBlockAt(nextHeight, prevHash, p.pubKey.Hex(), nil, at)

	snap, err := p.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	p.exec.BeginBlock()
	included := make([]*core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if err := p.exec.ExecuteTx(block, tx); err != nil {
			ev := p.log.Info().Str("tx", tx.ID).Str("type", string(tx.Type)).Err(err)
			if ce, ok := core.AsError(err); ok {
				ev = ev.Str("code", ce.Code).Str("kind", string(ce.Kind))
			}
			ev.Msg("transaction rejected")
			continue
		}
		included = append(included, tx)
	}
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		p.exec.AbortBlock()
		if revertErr := p.state.RevertToSnapshot(snap); revertErr != nil {
			return nil, fmt.Errorf("add block: %w (revert: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := p.state.Commit(); err != nil {
		p.log.Fatal().Err(err).Int64("height", block.Header.Height).
			Msg("block stored but state commit failed")
	}

	// Transaction events only reach subscribers once the block is durable.
	p.exec.FinalizeBlock()
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})

	txIDs := make([]string, len(txs))
	for i, tx := range txs {
		txIDs[i] = tx.ID
	}
	p.mempool.Remove(txIDs)

	p.log.Debug().
		Int64("height", block.Header.Height).
		Int("txs", len(included)).
		Int("rejected", len(txs)-len(included)).
		Msg("block committed")
	return block, nil
}

// ValidateBlock checks that block was proposed by the expected validator.
func (p *PoA) ValidateBlock(block *core.Block) error {
	if len(p.cfg.Validators) == 0 {
		return errors.New("no validators configured")
	}
	idx := int(block.Header.Height) % len(p.cfg.Validators)
	expected := p.cfg.Validators[idx]
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromHex(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}

	if p.bc.Tip() == nil && !config.IsGenesisHash(block.Header.PrevHash) {
		return errors.New("first block must reference genesis prev-hash")
	}
	return p.bc.CheckNext(block)
}

// Run produces a block every interval while this node is the proposer. It
// blocks until ctx is cancelled.
func (p *PoA) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.IsProposer() {
				if _, err := p.ProduceBlock(); err != nil {
					p.log.Error().Err(err).Msg("produce block")
				}
			}
		}
	}
}

package vm

import (
	"fmt"
	"math"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
)

// Context is passed to every Handler. It carries the state, the block whose
// timestamp is this operation's single clock sample, and the triggering
// transaction.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// Caller returns the identity that signed the transaction.
func (c *Context) Caller() string {
	return c.Tx.From
}

// Now returns the clock sample in unix seconds.
func (c *Context) Now() int64 {
	return c.Block.Now()
}

// Emit queues an event stamped with the current tx and block. Queued events
// are published only if the handler succeeds.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Executor applies transactions to the state using the global Handler
// registry. Each transaction runs inside its own snapshot: a handler error
// reverts every write it made, so no operation is ever partially applied.
//
// Outside a block, events of a successful transaction are published at
// once. Between BeginBlock and FinalizeBlock they are held back, so
// subscribers never see a block that is later abandoned.
type Executor struct {
	state   core.State
	emitter *events.Emitter

	inBlock bool
	held    []events.Event
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// BeginBlock starts holding events until FinalizeBlock or AbortBlock.
func (e *Executor) BeginBlock() {
	e.inBlock = true
	e.held = nil
}

// FinalizeBlock publishes the events held since BeginBlock in execution
// order. Call it once the block's state is committed.
func (e *Executor) FinalizeBlock() {
	held := e.held
	e.inBlock = false
	e.held = nil
	if e.emitter == nil {
		return
	}
	for _, ev := range held {
		e.emitter.Emit(ev)
	}
}

// AbortBlock drops the events held since BeginBlock.
func (e *Executor) AbortBlock() {
	e.inBlock = false
	e.held = nil
}

func (e *Executor) publish(evs ...events.Event) {
	if e.inBlock {
		e.held = append(e.held, evs...)
		return
	}
	if e.emitter == nil {
		return
	}
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	pending, err := e.applyTx(block, tx)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	e.publish(append(pending, events.Event{
		Type:        events.EventTxExecuted,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
	})...)
	return nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the
// handler. It returns the events the handler queued.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) ([]events.Event, error) {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return nil, fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return nil, fmt.Errorf("%w for fee: have %d need %d", core.ErrInsufficientFunds, acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return nil, fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return nil, err
	}

	ctx := &Context{State: e.state, Block: block, Tx: tx}
	if err := globalRegistry.Execute(tx.Type, ctx, tx.Payload); err != nil {
		return nil, err
	}
	return ctx.pending, nil
}

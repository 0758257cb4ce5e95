package testutil

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/storage"
	"github.com/tolelom/kombat/vm"
	"github.com/tolelom/kombat/wallet"
)

// ChainID is the chain ID every Chain signs for.
const ChainID = "test-chain"

// Chain executes signed transactions directly against an in-memory state,
// one single-transaction block per call, at a clock the test controls.
// It records every published event.
type Chain struct {
	t       testing.TB
	State   *storage.StateDB
	Emitter *events.Emitter
	Exec    *vm.Executor
	Events  []events.Event

	now    time.Time
	height int64
}

// NewChain returns an empty chain whose clock starts at start.
func NewChain(t testing.TB, start time.Time) *Chain {
	t.Helper()
	c := &Chain{
		t:       t,
		State:   NewStateDB(),
		Emitter: events.NewEmitter(zerolog.Nop()),
		now:     start,
	}
	c.Exec = vm.NewExecutor(c.State, c.Emitter)
	c.Emitter.SubscribeAll(func(ev events.Event) { c.Events = append(c.Events, ev) })
	return c
}

// Now returns the clock sample the next transaction will observe.
func (c *Chain) Now() time.Time { return c.now }

// SetTime moves the clock to at.
func (c *Chain) SetTime(at time.Time) { c.now = at }

// Advance moves the clock forward by d.
func (c *Chain) Advance(d time.Duration) { c.now = c.now.Add(d) }

// NewWallet generates a wallet and credits it with balance.
func (c *Chain) NewWallet(balance uint64) *wallet.Wallet {
	c.t.Helper()
	w, err := wallet.Generate()
	require.NoError(c.t, err)
	c.Fund(w.PubKey(), balance)
	return w
}

// Fund adds amount to addr's balance.
func (c *Chain) Fund(addr string, amount uint64) {
	c.t.Helper()
	acc, err := c.State.GetAccount(addr)
	require.NoError(c.t, err)
	acc.Balance += amount
	require.NoError(c.t, c.State.SetAccount(acc))
}

// Balance returns addr's balance.
func (c *Chain) Balance(addr string) uint64 {
	c.t.Helper()
	acc, err := c.State.GetAccount(addr)
	require.NoError(c.t, err)
	return acc.Balance
}

// Send signs a transaction from w at its current nonce and executes it in a
// new block stamped with the chain clock.
func (c *Chain) Send(w *wallet.Wallet, typ core.TxType, payload any) error {
	c.t.Helper()
	acc, err := c.State.GetAccount(w.PubKey())
	require.NoError(c.t, err)
	tx, err := w.NewTx(ChainID, typ, acc.Nonce, 0, payload)
	require.NoError(c.t, err)
	return c.Apply(tx)
}

// Apply executes an already-signed transaction in a new block.
func (c *Chain) Apply(tx *core.Transaction) error {
	c.height++
	block := core.NewBlockAt(c.height, "", tx.From, []*core.Transaction{tx}, c.now)
	return c.Exec.ExecuteTx(block, tx)
}

// EventsOf returns the recorded events of type typ.
func (c *Chain) EventsOf(typ events.EventType) []events.Event {
	var out []events.Event
	for _, ev := range c.Events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

package vm_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/testutil"
	"github.com/tolelom/kombat/vm"
)

const (
	txWriteThenFail core.TxType = "test_write_then_fail"
	txWrite         core.TxType = "test_write"
)

type writePayload struct {
	Amount uint64 `json:"amount"`
}

var errBoom = errors.New("boom")

func init() {
	write := func(ctx *vm.Context, p writePayload) error {
		acc, err := ctx.State.GetAccount("scratch")
		if err != nil {
			return err
		}
		acc.Balance += p.Amount
		if err := ctx.State.SetAccount(acc); err != nil {
			return err
		}
		ctx.Emit("test_written", map[string]any{"amount": p.Amount})
		return nil
	}
	vm.Register(txWrite, vm.Typed(txWrite, write))
	vm.Register(txWriteThenFail, vm.Typed(txWriteThenFail, func(ctx *vm.Context, p writePayload) error {
		if err := write(ctx, p); err != nil {
			return err
		}
		return errBoom
	}))
}

func TestExecuteTxAppliesAndEmits(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	w := c.NewWallet(100)

	require.NoError(t, c.Send(w, txWrite, writePayload{Amount: 7}))

	assert.Equal(t, uint64(7), c.Balance("scratch"))
	acc, err := c.State.GetAccount(w.PubKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Nonce)

	require.Len(t, c.Events, 2)
	assert.Equal(t, events.EventType("test_written"), c.Events[0].Type)
	assert.Equal(t, events.EventTxExecuted, c.Events[1].Type)
	assert.Equal(t, c.Events[0].TxID, c.Events[1].TxID)
}

func TestExecuteTxRevertsEverythingOnError(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	w := c.NewWallet(100)
	root := c.State.ComputeRoot()

	err := c.Send(w, txWriteThenFail, writePayload{Amount: 7})
	require.ErrorIs(t, err, errBoom)

	assert.Zero(t, c.Balance("scratch"))
	acc, err := c.State.GetAccount(w.PubKey())
	require.NoError(t, err)
	assert.Zero(t, acc.Nonce, "nonce increment is reverted too")
	assert.Equal(t, root, c.State.ComputeRoot())
	assert.Empty(t, c.Events, "events of a failed tx are never published")
}

func TestExecuteTxChecks(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	w := c.NewWallet(100)

	t.Run("bad nonce", func(t *testing.T) {
		tx, err := w.NewTx(testutil.ChainID, txWrite, 5, 0, writePayload{Amount: 1})
		require.NoError(t, err)
		assert.ErrorContains(t, c.Apply(tx), "invalid nonce")
	})

	t.Run("fee exceeds balance", func(t *testing.T) {
		tx, err := w.NewTx(testutil.ChainID, txWrite, 0, 101, writePayload{Amount: 1})
		require.NoError(t, err)
		assert.ErrorIs(t, c.Apply(tx), core.ErrInsufficientFunds)
	})

	t.Run("tampered signature", func(t *testing.T) {
		tx, err := w.NewTx(testutil.ChainID, txWrite, 0, 0, writePayload{Amount: 1})
		require.NoError(t, err)
		tx.Payload = []byte(`{"amount":1000}`)
		assert.ErrorContains(t, c.Apply(tx), "signature")
	})

	t.Run("unknown type", func(t *testing.T) {
		assert.ErrorContains(t, c.Send(w, "no_such_type", struct{}{}), "no handler")
	})

	t.Run("malformed payload", func(t *testing.T) {
		assert.ErrorContains(t, c.Send(w, txWrite, map[string]string{"amount": "x"}), "decode test_write payload")
	})

	assert.Zero(t, c.Balance("scratch"))
}

func TestContextClockIsBlockTime(t *testing.T) {
	block := core.NewBlockAt(1, "", "", nil, time.Unix(1234, 500))
	ctx := &vm.Context{Block: block, Tx: &core.Transaction{From: "me"}}
	assert.Equal(t, int64(1234), ctx.Now())
	assert.Equal(t, "me", ctx.Caller())
}

func TestBlockEventsHeldUntilFinalized(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	w := c.NewWallet(100)

	c.Exec.BeginBlock()
	require.NoError(t, c.Send(w, txWrite, writePayload{Amount: 1}))
	require.Error(t, c.Send(w, txWriteThenFail, writePayload{Amount: 1}))
	require.NoError(t, c.Send(w, txWrite, writePayload{Amount: 2}))
	assert.Empty(t, c.Events)

	c.Exec.FinalizeBlock()
	written := c.EventsOf("test_written")
	require.Len(t, written, 2)
	assert.Equal(t, uint64(1), written[0].Data["amount"])
	assert.Equal(t, uint64(2), written[1].Data["amount"])
	assert.Len(t, c.EventsOf(events.EventTxExecuted), 2)

	c.Events = nil
	c.Exec.BeginBlock()
	require.NoError(t, c.Send(w, txWrite, writePayload{Amount: 3}))
	c.Exec.AbortBlock()
	assert.Empty(t, c.Events)

	// Back outside a block, events publish immediately.
	require.NoError(t, c.Send(w, txWrite, writePayload{Amount: 4}))
	assert.Len(t, c.EventsOf("test_written"), 1)
}

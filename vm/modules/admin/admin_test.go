package admin_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/testutil"
	"github.com/tolelom/kombat/vm/modules/admin"
)

func TestInitializeOnce(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	adm := c.NewWallet(10)

	require.NoError(t, c.Send(adm, core.TxInitialize, core.InitializePayload{Admin: adm.PubKey()}))

	cfg, err := c.State.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, adm.PubKey(), cfg.Admin)
	assert.Equal(t, crypto.HasherXORFold, cfg.Hasher)
	assert.Equal(t, core.ModeCompat, cfg.Mode)
	assert.True(t, cfg.MerkleRoot.IsZero())
	assert.Empty(t, c.EventsOf(events.EventMerkleRootUpdated))

	other := c.NewWallet(10)
	err = c.Send(other, core.TxInitialize, core.InitializePayload{Admin: other.PubKey()})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)
}

func TestInitializeValidatesInput(t *testing.T) {
	s := testutil.NewStateDB()
	w := testutil.NewChain(t, time.Unix(0, 0)).NewWallet(0)

	_, err := admin.Initialize(s, "not-a-key", "", "")
	assert.Error(t, err)
	_, err = admin.Initialize(s, w.PubKey(), "md5", "")
	assert.Error(t, err)
	_, err = admin.Initialize(s, w.PubKey(), "", "lenient")
	assert.Error(t, err)

	cfg, err := admin.Initialize(s, w.PubKey(), crypto.HasherBlake2b, core.ModeStrict)
	require.NoError(t, err)
	assert.True(t, cfg.Strict())
	assert.Equal(t, core.GlobalConfigAddress, cfg.Address)
}

func TestSetMerkleRoot(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	adm := c.NewWallet(10)
	stranger := c.NewWallet(10)
	require.NoError(t, c.Send(adm, core.TxInitialize, core.InitializePayload{Admin: adm.PubKey()}))

	root := crypto.SHA256{}.Sum([]byte("round 1"))

	err := c.Send(stranger, core.TxSetMerkleRoot, core.SetMerkleRootPayload{Root: root})
	assert.ErrorIs(t, err, core.ErrNotAdmin)

	require.NoError(t, c.Send(adm, core.TxSetMerkleRoot, core.SetMerkleRootPayload{Root: root}))
	cfg, err := c.State.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, root, cfg.MerkleRoot)

	evs := c.EventsOf(events.EventMerkleRootUpdated)
	require.Len(t, evs, 1)
	assert.Equal(t, root.String(), evs[0].Data["root"])

	// Replacing the root is allowed at any time.
	next := crypto.SHA256{}.Sum([]byte("round 2"))
	require.NoError(t, c.Send(adm, core.TxSetMerkleRoot, core.SetMerkleRootPayload{Root: next}))
	cfg, err = c.State.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, next, cfg.MerkleRoot)
}

func TestSetMerkleRootBeforeInitialize(t *testing.T) {
	c := testutil.NewChain(t, time.Unix(1_000, 0))
	w := c.NewWallet(10)
	err := c.Send(w, core.TxSetMerkleRoot, core.SetMerkleRootPayload{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

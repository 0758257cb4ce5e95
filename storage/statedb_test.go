package storage_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/internal/testutil"
	"github.com/tolelom/kombat/storage"
)

func TestCreateRejectsOccupiedSlot(t *testing.T) {
	s := testutil.NewStateDB()
	b := &core.Battle{ID: "b1", Active: true}
	require.NoError(t, s.CreateBattle(b))

	err := s.CreateBattle(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAlreadyExists))

	_, err = s.GetBet("missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestUnknownAccountIsZero(t *testing.T) {
	s := testutil.NewStateDB()
	acc, err := s.GetAccount("nobody")
	require.NoError(t, err)
	assert.Equal(t, &core.Account{Address: "nobody"}, acc)
}

func TestSnapshotRevert(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetAccount(&core.Account{Address: "a", Balance: 10}))
	rootBefore := s.ComputeRoot()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: "a", Balance: 5}))
	require.NoError(t, s.MarkClaimedLeaf("leaf"))
	assert.NotEqual(t, rootBefore, s.ComputeRoot())

	require.NoError(t, s.RevertToSnapshot(snap))
	acc, err := s.GetAccount("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), acc.Balance)
	claimed, err := s.HasClaimedLeaf("leaf")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, rootBefore, s.ComputeRoot())

	assert.Error(t, s.RevertToSnapshot(snap), "snapshot is consumed")
}

func TestMarkClaimedLeafOnce(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.MarkClaimedLeaf("x"))
	assert.True(t, errors.Is(s.MarkClaimedLeaf("x"), core.ErrAlreadyClaimed))
}

func TestCommitPersistsAndRootIsStable(t *testing.T) {
	db := testutil.NewMemDB()
	s := storage.NewStateDB(db)
	require.NoError(t, s.SetAccount(&core.Account{Address: "a", Balance: 1}))
	require.NoError(t, s.CreateBet(&core.Bet{ID: "bet", Amount: 3}))
	root := s.ComputeRoot()
	require.NoError(t, s.Commit())

	// Root covers persisted entries, not only the write buffer.
	assert.Equal(t, root, s.ComputeRoot())

	assert.Equal(t, 2, db.Len(""))

	reopened := storage.NewStateDB(db)
	bet, err := reopened.GetBet("bet")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), bet.Amount)
	assert.Equal(t, root, reopened.ComputeRoot())
}

func TestLevelDBBatchAndIterator(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()

	batch := db.NewBatch()
	batch.Set([]byte("p:1"), []byte("one"))
	batch.Set([]byte("p:2"), []byte("two"))
	batch.Set([]byte("q:1"), []byte("other"))
	require.NoError(t, batch.Write())

	it := db.NewIterator([]byte("p:"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"p:1", "p:2"}, keys)

	_, err = db.Get([]byte("missing"))
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	s := testutil.NewStateDB()
	view := s.Committed()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			snap, err := s.Snapshot()
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, s.SetAccount(&core.Account{Address: fmt.Sprintf("a%d", i), Balance: 1}))
			if i%2 == 0 {
				assert.NoError(t, s.RevertToSnapshot(snap))
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, err := s.GetAccount(fmt.Sprintf("a%d", i))
			assert.NoError(t, err)
			_ = s.ComputeRoot()
			acc, err := view.GetAccount(fmt.Sprintf("a%d", i))
			assert.NoError(t, err)
			assert.Zero(t, acc.Balance)
		}
	}()
	wg.Wait()

	require.NoError(t, s.Commit())
	acc, err := view.GetAccount("a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Balance)
	acc, err = view.GetAccount("a0")
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)
}

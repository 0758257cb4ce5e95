package core

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxTxAge       = int64(time.Hour)
	maxTxFuture    = int64(5 * time.Minute)
)

// slot identifies the one pending transaction a sender may have per nonce.
type slot struct {
	from  string
	nonce uint64
}

// Mempool is a thread-safe pool of signed transactions waiting for a block.
// Each sender holds at most one transaction per nonce. Pending interleaves
// senders by arrival but always yields a sender's nonces in ascending order,
// so a tx signed later with a lower nonce does not strand the ones above it.
type Mempool struct {
	mu      sync.RWMutex
	chainID string
	byID    map[string]*Transaction
	slots   map[slot]string
	arrival []string
	now     func() time.Time
}

// NewMempool creates an empty mempool accepting transactions for chainID.
func NewMempool(chainID string) *Mempool {
	return &Mempool{
		chainID: chainID,
		byID:    make(map[string]*Transaction),
		slots:   make(map[slot]string),
		now:     time.Now,
	}
}

// Add admits tx after checking the chain ID, the signature and the
// timestamp window (-1 h / +5 min). It rejects a full pool, a tx already
// present, and a second tx for a sender's pending nonce.
func (m *Mempool) Add(tx *Transaction) error {
	if tx.ChainID != m.chainID {
		return fmt.Errorf("chain ID mismatch: got %q want %q", tx.ChainID, m.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := m.now().UnixNano()
	switch {
	case now-tx.Timestamp > maxTxAge:
		return errors.New("transaction expired")
	case tx.Timestamp-now > maxTxFuture:
		return errors.New("transaction timestamp too far in the future")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[tx.ID]; ok {
		return errors.New("tx already in pool")
	}
	key := slot{from: tx.From, nonce: tx.Nonce}
	if held, ok := m.slots[key]; ok {
		return fmt.Errorf("nonce %d already pending for %s in tx %s", tx.Nonce, tx.From, held)
	}
	if len(m.byID) >= maxMempoolSize {
		return errors.New("mempool full")
	}
	m.byID[tx.ID] = tx
	m.slots[key] = tx.ID
	m.arrival = append(m.arrival, tx.ID)
	return nil
}

// Pending returns up to n transactions. Senders take turns in arrival order;
// within a sender, transactions come out by ascending nonce.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySender := make(map[string][]*Transaction)
	for _, id := range m.arrival {
		tx := m.byID[id]
		bySender[tx.From] = append(bySender[tx.From], tx)
	}
	for _, txs := range bySender {
		slices.SortFunc(txs, func(a, b *Transaction) int { return cmp.Compare(a.Nonce, b.Nonce) })
	}

	out := make([]*Transaction, 0, min(n, len(m.arrival)))
	for _, id := range m.arrival {
		if len(out) >= n {
			break
		}
		from := m.byID[id].From
		queue := bySender[from]
		out = append(out, queue[0])
		bySender[from] = queue[1:]
	}
	return out
}

// Remove drops the given transactions, typically after a block was built.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if tx, ok := m.byID[id]; ok {
			delete(m.slots, slot{from: tx.From, nonce: tx.Nonce})
			delete(m.byID, id)
		}
	}
	m.arrival = slices.DeleteFunc(m.arrival, func(id string) bool {
		_, ok := m.byID[id]
		return !ok
	})
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

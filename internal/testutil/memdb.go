// Package testutil provides in-memory storage, a single-node execution
// harness and a Merkle tree builder for tests. Never import this in
// production code.
package testutil

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/storage"
)

// MemDB is a thread-safe in-memory storage.DB. Iterators walk keys in
// ascending byte order, as LevelDB does, and see a copy taken when they
// were created.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = bytes.Clone(value)
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Len returns the number of stored keys with the given prefix.
func (m *MemDB) Len(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(m.data))
	it := &memIter{pos: -1}
	for _, k := range keys {
		if strings.HasPrefix(k, string(prefix)) {
			it.keys = append(it.keys, []byte(k))
			it.vals = append(it.vals, bytes.Clone(m.data[k]))
		}
	}
	return it
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

// memBatch buffers writes and applies them under one lock.
type memBatch struct {
	db  *MemDB
	ops []batchOp
}

type batchOp struct {
	key    string
	value  []byte
	delete bool
}

func (b *memBatch) Set(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: string(key), value: bytes.Clone(value)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: string(key), delete: true})
}

func (b *memBatch) Reset() { b.ops = b.ops[:0] }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, op.key)
			continue
		}
		b.db.data[op.key] = op.value
	}
	return nil
}

type memIter struct {
	keys [][]byte
	vals [][]byte
	pos  int
}

func (it *memIter) Next() bool    { it.pos++; return it.pos < len(it.keys) }
func (it *memIter) Key() []byte   { return it.keys[it.pos] }
func (it *memIter) Value() []byte { return it.vals[it.pos] }
func (it *memIter) Release()      {}
func (it *memIter) Error() error  { return nil }

// NewBlockStore returns a storage.BlockStore backed by a fresh MemDB.
func NewBlockStore() *storage.BlockStore {
	return storage.NewBlockStore(NewMemDB())
}

// NewStateDB returns a storage.StateDB backed by a fresh MemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}

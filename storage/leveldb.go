package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tolelom/kombat/core"
)

// LevelDB implements DB using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Reset()                { b.batch.Reset() }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }

// ---- BlockStore ----

const (
	prefixBlock  = "block:"
	prefixHeight = "height:"
	keyTip       = "chain:tip"
)

// BlockStore implements core.BlockStore on top of any DB.
type BlockStore struct {
	db DB
}

// NewBlockStore wraps db as a core.BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

func (s *BlockStore) GetBlock(hash string) (*core.Block, error) {
	data, err := s.db.Get([]byte(prefixBlock + hash))
	if err != nil {
		return nil, err
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BlockStore) GetBlockByHeight(height int64) (*core.Block, error) {
	hash, err := s.db.Get([]byte(fmt.Sprintf("%s%d", prefixHeight, height)))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *BlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte(keyTip))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// CommitBlock writes the block body, its height index and the tip pointer
// in one batch.
func (s *BlockStore) CommitBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set([]byte(prefixBlock+block.Hash), data)
	batch.Set([]byte(fmt.Sprintf("%s%d", prefixHeight, block.Header.Height)), []byte(block.Hash))
	batch.Set([]byte(keyTip), []byte(block.Hash))
	return batch.Write()
}

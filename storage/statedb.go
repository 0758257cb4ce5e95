package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixConfig  = registerPrefix("cfg:")
	prefixBattle  = registerPrefix("battle:")
	prefixVault   = registerPrefix("vault:")
	prefixCommit  = registerPrefix("commit:")
	prefixPool    = registerPrefix("pool:")
	prefixBet     = registerPrefix("bet:")
	prefixLeaf    = registerPrefix("leaf:")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback, and deterministic state-root computation.
// Nothing reaches the DB until Commit, so a reverted snapshot leaves no
// trace of a failed operation. It is safe for concurrent use, but readers
// that must not see uncommitted writes should use Committed.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Committed returns a StateDB over the same DB with an empty write buffer.
// It observes only flushed blocks, never the writes of a block in progress
// or of a transaction that is later reverted. Use it for reads only.
func (s *StateDB) Committed() *StateDB {
	return NewStateDB(s.db)
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) exists(key string) (bool, error) {
	_, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// createJSON writes v only if key is vacant.
func (s *StateDB) createJSON(key string, v any) error {
	ok, err := s.exists(key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", core.ErrAlreadyExists, key)
	}
	return s.setJSON(key, v)
}

// ---- Account ----

// GetAccount returns a zero-balance account for unknown addresses.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- GlobalConfig ----

func (s *StateDB) GetConfig() (*core.GlobalConfig, error) {
	var cfg core.GlobalConfig
	if err := s.getJSON(prefixConfig+core.GlobalConfigAddress, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *StateDB) CreateConfig(cfg *core.GlobalConfig) error {
	return s.createJSON(prefixConfig+core.GlobalConfigAddress, cfg)
}

func (s *StateDB) SetConfig(cfg *core.GlobalConfig) error {
	return s.setJSON(prefixConfig+core.GlobalConfigAddress, cfg)
}

// ---- Battle ----

func (s *StateDB) GetBattle(id string) (*core.Battle, error) {
	var b core.Battle
	if err := s.getJSON(prefixBattle+id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) CreateBattle(b *core.Battle) error {
	return s.createJSON(prefixBattle+b.ID, b)
}

func (s *StateDB) SetBattle(b *core.Battle) error {
	return s.setJSON(prefixBattle+b.ID, b)
}

// ---- Vault ----

func (s *StateDB) GetVault(address string) (*core.Vault, error) {
	var v core.Vault
	if err := s.getJSON(prefixVault+address, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *StateDB) CreateVault(v *core.Vault) error {
	return s.createJSON(prefixVault+v.Address, v)
}

func (s *StateDB) SetVault(v *core.Vault) error {
	return s.setJSON(prefixVault+v.Address, v)
}

// ---- PlayerCommit ----

func (s *StateDB) GetCommit(id string) (*core.PlayerCommit, error) {
	var c core.PlayerCommit
	if err := s.getJSON(prefixCommit+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) CreateCommit(c *core.PlayerCommit) error {
	return s.createJSON(prefixCommit+c.ID, c)
}

// ---- Betting ----

func (s *StateDB) GetBettingPool(id string) (*core.BettingPool, error) {
	var p core.BettingPool
	if err := s.getJSON(prefixPool+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetBettingPool(p *core.BettingPool) error {
	return s.setJSON(prefixPool+p.ID, p)
}

func (s *StateDB) GetBet(id string) (*core.Bet, error) {
	var b core.Bet
	if err := s.getJSON(prefixBet+id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) CreateBet(b *core.Bet) error {
	return s.createJSON(prefixBet+b.ID, b)
}

func (s *StateDB) SetBet(b *core.Bet) error {
	return s.setJSON(prefixBet+b.ID, b)
}

// ---- Claimed leaves ----

func (s *StateDB) HasClaimedLeaf(id string) (bool, error) {
	return s.exists(prefixLeaf + id)
}

func (s *StateDB) MarkClaimedLeaf(id string) error {
	ok, err := s.HasClaimedLeaf(id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: leaf %s", core.ErrAlreadyClaimed, id)
	}
	s.set(prefixLeaf+id, []byte{1})
	return nil
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffers(dirty map[string][]byte, deleted map[string]bool) (map[string][]byte, map[string]bool) {
	d := make(map[string][]byte, len(dirty))
	for k, v := range dirty {
		d[k] = bytes.Clone(v)
	}
	del := make(map[string]bool, len(deleted))
	for k, v := range deleted {
		del[k] = v
	}
	return d, del
}

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirty, deleted := copyBuffers(s.dirty, s.deleted)
	s.snapshots = append(s.snapshots, stateSnapshot{dirty: dirty, deleted: deleted})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it together with every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.dirty, s.deleted = copyBuffers(s.snapshots[id].dirty, s.snapshots[id].deleted)
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under the registered prefixes merged with the write
// buffer, sorted by key, length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}

// Package indexer maintains secondary indexes over committed transactions so
// clients can list battles by player and bets by bettor without scanning the
// full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/logger"
	"github.com/tolelom/kombat/storage"
)

const (
	prefixPlayerBattles = "idx:player:battle:"
	prefixBettorBets    = "idx:bettor:bet:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db  storage.DB
	log zerolog.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log zerolog.Logger) *Indexer {
	idx := &Indexer{db: db, log: logger.Component(log, "indexer")}
	emitter.Subscribe(events.EventBattleCreated, idx.onBattleCreated)
	emitter.Subscribe(events.EventPlayerJoined, idx.onPlayerJoined)
	emitter.Subscribe(events.EventBetPlaced, idx.onBetPlaced)
	return idx
}

// GetBattlesByPlayer returns the IDs of every battle player created or joined.
func (idx *Indexer) GetBattlesByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerBattles + player)
}

// GetBetsByBettor returns the IDs of every bet placed by bettor.
func (idx *Indexer) GetBetsByBettor(bettor string) ([]string, error) {
	return idx.getList(prefixBettorBets + bettor)
}

// ---- event handlers ----

func (idx *Indexer) onBattleCreated(ev events.Event) {
	battle, _ := ev.Data["battle"].(string)
	creator, _ := ev.Data["creator"].(string)
	if battle == "" || creator == "" {
		return
	}
	idx.add(prefixPlayerBattles+creator, battle)
}

func (idx *Indexer) onPlayerJoined(ev events.Event) {
	battle, _ := ev.Data["battle"].(string)
	player, _ := ev.Data["player"].(string)
	if battle == "" || player == "" {
		return
	}
	idx.add(prefixPlayerBattles+player, battle)
}

func (idx *Indexer) onBetPlaced(ev events.Event) {
	battle, _ := ev.Data["battle"].(string)
	bettor, _ := ev.Data["bettor"].(string)
	if battle == "" || bettor == "" {
		return
	}
	idx.add(prefixBettorBets+bettor, core.BetID(battle, bettor))
}

func (idx *Indexer) add(key, value string) {
	if err := idx.addToList(key, value); err != nil {
		idx.log.Error().Err(err).Str("key", key).Msg("update index")
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// addToList appends value to the list at key unless it is already present.
func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	if slices.Contains(ids, value) {
		return nil
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

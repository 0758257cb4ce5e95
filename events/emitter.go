package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tolelom/kombat/internal/logger"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTokenTransfer EventType = "token_transfer"

	EventBattleCreated      EventType = "battle_created"
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerCommitted    EventType = "player_committed"
	EventWinningsClaimed    EventType = "winnings_claimed"
	EventBetPlaced          EventType = "bet_placed"
	EventBetWinningsClaimed EventType = "bet_winnings_claimed"
	EventMerkleRootUpdated  EventType = "merkle_root_updated"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a synchronous pub/sub broker. Subscribe before Emit.
// Emission is fire-and-forget: handlers cannot fail the operation that
// emitted the event.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	log      zerolog.Logger
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter(log zerolog.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		log:      logger.Component(log, "events"),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers synchronously. Each handler is
// guarded by panic recovery.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		e.deliver(h, ev)
	}
}

func (e *Emitter) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Str("event", string(ev.Type)).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()
	h(ev)
}

package events_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/kombat/events"
	"github.com/tolelom/kombat/internal/logger"
)

func TestEmitRecoversHandlerPanics(t *testing.T) {
	var buf bytes.Buffer
	e := events.NewEmitter(logger.NewWithWriter(&buf, "debug"))

	var got []events.EventType
	e.Subscribe(events.EventBattleCreated, func(events.Event) { panic("boom") })
	e.Subscribe(events.EventBattleCreated, func(ev events.Event) { got = append(got, ev.Type) })
	e.SubscribeAll(func(ev events.Event) { got = append(got, "all:"+ev.Type) })

	e.Emit(events.Event{Type: events.EventBattleCreated})
	e.Emit(events.Event{Type: events.EventBetPlaced})

	assert.Equal(t, []events.EventType{
		events.EventBattleCreated,
		"all:" + events.EventBattleCreated,
		"all:" + events.EventBetPlaced,
	}, got)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "events", line["component"])
	assert.Equal(t, "handler panicked", line["message"])
	assert.Equal(t, "boom", line["panic"])
	assert.Equal(t, "error", line["level"])
}

func TestLoggerLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, "loud")
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Info().Msg("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

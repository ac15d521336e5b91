package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublish_FillsIDAndTimestamp(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.SubscribeAll(func(e Event) { ch <- e })

	bus.PublishTradeOpened(1, "SOL/USDT-P", "SHORT", 0.6, 100)

	ev := receive(t, ch)
	assert.Equal(t, EventTradeOpened, ev.Type)
	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, int64(1), ev.Data["trade_id"])
}

func TestSubscribe_OnlyMatchingType(t *testing.T) {
	bus := NewEventBus()
	closed := make(chan Event, 2)
	bus.Subscribe(EventTradeClosed, func(e Event) { closed <- e })

	bus.PublishFiltersCleared(3)
	loss := -5.0
	bus.PublishTradeClosed(2, "BTC", "LONG", 95, -5, &loss, false)

	ev := receive(t, closed)
	assert.Equal(t, EventTradeClosed, ev.Type)
	assert.Equal(t, -5.0, ev.Data["pnl_usd"])

	select {
	case extra := <-closed:
		t.Fatalf("unexpected event %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishLedgerReset(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(EventLedgerReset, func(e Event) { ch <- e })

	bus.PublishLedgerReset("outcomes", "/tmp/a.json", "/tmp/a.json.corrupt-1", errors.New("bad json"))

	ev := receive(t, ch)
	require.Equal(t, EventLedgerReset, ev.Type)
	assert.Equal(t, "bad json", ev.Data["error"])
	assert.Equal(t, "outcomes", ev.Data["ledger"])
}

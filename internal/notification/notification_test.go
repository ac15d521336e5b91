package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-perp-bot/internal/events"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*Notification
	err  error
	got  chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{got: make(chan struct{}, 16)}
}

func (r *recordingNotifier) Send(n *Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	r.got <- struct{}{}
	return r.err
}
func (r *recordingNotifier) Name() string    { return "recording" }
func (r *recordingNotifier) IsEnabled() bool { return true }

func TestFromEvent(t *testing.T) {
	m := NewManager(zerolog.Nop())

	assert.Nil(t, m.FromEvent(events.Event{Type: events.EventReviewCompleted, Data: map[string]interface{}{"filters_applied": 0}}))

	n := m.FromEvent(events.Event{Type: events.EventReviewCompleted, Data: map[string]interface{}{
		"filters_applied": 2,
		"summary":         "Overall: CRITICAL",
	}})
	require.NotNil(t, n)
	assert.Equal(t, NotifyFiltersApplied, n.Type)
	assert.Contains(t, n.Title, "2 new")
	assert.Equal(t, "Overall: CRITICAL", n.Message)

	n = m.FromEvent(events.Event{Type: events.EventLedgerReset, Data: map[string]interface{}{
		"ledger": "outcomes", "error": "unexpected EOF", "quarantine_path": "/tmp/x.corrupt",
	}})
	require.NotNil(t, n)
	assert.Equal(t, NotifyError, n.Type)
	assert.Contains(t, n.Message, "unexpected EOF")

	assert.Nil(t, m.FromEvent(events.Event{Type: events.EventTradeOpened}))
}

func TestManager_SubscribeForwardsFromBus(t *testing.T) {
	m := NewManager(zerolog.Nop())
	rec := newRecordingNotifier()
	m.AddNotifier(rec)
	assert.True(t, m.Enabled())

	bus := events.NewEventBus()
	m.Subscribe(bus)
	bus.PublishFiltersCleared(4)

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sent, 1)
	assert.Equal(t, NotifyFiltersCleared, rec.sent[0].Type)
}

func TestManager_SendReturnsProviderError(t *testing.T) {
	m := NewManager(zerolog.Nop())
	rec := newRecordingNotifier()
	rec.err = errors.New("boom")
	m.AddNotifier(rec)
	m.AddNotifier(NewDiscordNotifier(DiscordConfig{}))

	assert.Error(t, m.Send(&Notification{Title: "x"}))
}

func TestTelegramNotifier_Send(t *testing.T) {
	var body map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true, APIBase: srv.URL})
	require.True(t, tg.IsEnabled())
	require.NoError(t, tg.Send(&Notification{Title: "T", Message: "M"}))

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "*T*\n\nM", body["text"])

	assert.False(t, NewTelegramNotifier(TelegramConfig{Enabled: true}).IsEnabled())
}

func TestDiscordNotifier_Send(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	d := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	require.NoError(t, d.Send(&Notification{Type: NotifyError, Title: "x", Timestamp: time.Now()}))

	status.Store(http.StatusBadRequest)
	assert.Error(t, d.Send(&Notification{Title: "x"}))
}

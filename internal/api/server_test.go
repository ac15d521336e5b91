package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/adjuster"
	"dex-perp-bot/internal/auth"
	"dex-perp-bot/internal/events"
	"dex-perp-bot/internal/selfimprove"
)

func newTestStrategy(t *testing.T) *selfimprove.Strategy {
	t.Helper()
	cfg := selfimprove.DefaultConfig()
	cfg.LogDir = t.TempDir()
	return selfimprove.New(cfg, zerolog.Nop())
}

func newTestServer(t *testing.T, jwt *auth.JWTManager) (*Server, *selfimprove.Strategy) {
	t.Helper()
	strategy := newTestStrategy(t)
	srv := NewServer(config.ServerConfig{AllowedOrigins: "*"}, strategy, nil, jwt, zerolog.Nop())
	return srv, strategy
}

func do(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	srv.AddHealthCheck("redis", func(ctx context.Context) error { return errors.New("down") })
	w = do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
}

func TestReadOnlyViews(t *testing.T) {
	srv, strategy := newTestServer(t, nil)
	id := strategy.RecordTradeEntry("SOL/USDT-P", "SHORT", 0.7, 100, "test", nil)
	require.NotZero(t, id)

	w := do(t, srv, http.MethodGet, "/api/learning/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	w = do(t, srv, http.MethodGet, "/api/learning/trades/open", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SOL/USDT-P")

	w = do(t, srv, http.MethodGet, "/api/learning/dimensions", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/learning/report", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluateDecision(t *testing.T) {
	srv, strategy := newTestServer(t, nil)
	strategy.Adjuster().AddFilter(adjuster.FilterBlock, adjuster.DimensionCombo, "SOL_SHORT", 1, "losing combo", nil)

	w := do(t, srv, http.MethodPost, "/api/learning/decisions/evaluate",
		`{"symbol":"SOL/USDT-P","action":"SELL","confidence":0.8}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.True(t, resp.Rejected)
	assert.Contains(t, resp.RejectionReason, "combo=SOL_SHORT")

	w = do(t, srv, http.MethodPost, "/api/learning/decisions/evaluate",
		`{"symbol":"BTC/USDT-P","action":"LONG","confidence":0.8}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.False(t, resp.Rejected)
	assert.Equal(t, 100.0, resp.Decision.Size())

	w = do(t, srv, http.MethodPost, "/api/learning/decisions/evaluate", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/learning/prompt", "", "")
	assert.Contains(t, w.Body.String(), "SOL_SHORT")
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	srv, strategy := newTestServer(t, jwt)
	filterID := strategy.Adjuster().AddFilter(adjuster.FilterBlock, adjuster.DimensionSymbol, "DOGE", 1, "bad", nil)

	w := do(t, srv, http.MethodPost, "/api/learning/filters/clear", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	viewer, err := jwt.GenerateAccessToken("viewer", false, 0)
	require.NoError(t, err)
	w = do(t, srv, http.MethodPost, "/api/learning/filters/clear", "", viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := jwt.GenerateAccessToken("ops", true, 0)
	require.NoError(t, err)

	w = do(t, srv, http.MethodPost, "/api/learning/filters/"+filterID+"/deactivate", "", admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, strategy.ActiveFiltersSummary())

	w = do(t, srv, http.MethodPost, "/api/learning/filters/"+filterID+"/deactivate", "", admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/api/learning/review", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"skipped":true`)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	bus := events.NewEventBus()
	hub := InitWebSocket(bus, zerolog.Nop())

	strategy := newTestStrategy(t)
	srv := NewServer(config.ServerConfig{}, strategy, hub, nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	defer hub.Stop()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/learning"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "CONNECTED", msg["type"])

	bus.PublishFiltersCleared(3)

	var evt events.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, events.EventFiltersCleared, evt.Type)
	assert.Equal(t, 1, hub.GetClientCount())
}

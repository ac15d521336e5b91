package database

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-perp-bot/internal/decision"
	"dex-perp-bot/internal/outcome"
)

func ptr[T any](v T) *T { return &v }

func TestNewArchivedOutcome(t *testing.T) {
	closed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trade := &outcome.TradeOutcome{
		ID:           7,
		OpenTime:     closed.Add(-time.Hour),
		CloseTime:    &closed,
		Symbol:       "SOL/USDT-P",
		Direction:    decision.DirectionShort,
		Confidence:   0.8,
		EntryPrice:   100,
		ExitPrice:    ptr(105.0),
		PnLPercent:   ptr(-5.0),
		IsWin:        ptr(false),
		LLMReasoning: "funding flip",
		Status:       outcome.StatusClosed,
		Tags:         map[string]interface{}{"regime": "chop"},
	}

	row, err := NewArchivedOutcome("bot-a", trade)
	require.NoError(t, err)

	assert.Equal(t, "bot-a", row.BotID)
	assert.Equal(t, int64(7), row.TradeID)
	assert.Equal(t, "SOL", row.BaseSymbol)
	assert.Equal(t, "SHORT", row.Direction)
	assert.Nil(t, row.PnLUSD)

	var tags map[string]interface{}
	require.NoError(t, json.Unmarshal(row.Tags, &tags))
	assert.Equal(t, "chop", tags["regime"])

	args := row.args()
	assert.Len(t, args, strings.Count(upsertOutcomeQuery, "$"))
}

func TestNewArchivedOutcome_NilTagsAndTrade(t *testing.T) {
	row, err := NewArchivedOutcome("b", &outcome.TradeOutcome{ID: 1, Symbol: "BTC"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(row.Tags))

	_, err = NewArchivedOutcome("b", nil)
	assert.Error(t, err)
}

func TestMigrationsCreateArchiveTable(t *testing.T) {
	require.NotEmpty(t, migrations)
	assert.Contains(t, migrations[0], "PRIMARY KEY (bot_id, trade_id)")
}

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"Warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"FATAL":   zerolog.FatalLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range testCases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", JSONFormat: true, Component: "test"}, &buf)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	tradeLog := TradeContext(logger, 7, "SOL", "SHORT")
	tradeLog.Warn().Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "SOL", entry["symbol"])
	assert.Equal(t, float64(7), entry["trade_id"])
	assert.Contains(t, entry, "time")
}

func TestFilterContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug", JSONFormat: true}, &buf)

	filterLog := FilterContext(WithComponent(logger, "StrategyAdjuster"), "combo_SOL_SHORT_1", "block", "combo", "SOL_SHORT")
	filterLog.Info().Msg("added")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "StrategyAdjuster", entry["component"])
	assert.Equal(t, "block", entry["filter_type"])
	assert.Equal(t, "SOL_SHORT", entry["key"])
}

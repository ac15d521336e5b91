package logging

import (
	"github.com/rs/zerolog"
)

// TradeContext creates a logger context for trade outcome operations
func TradeContext(logger zerolog.Logger, tradeID int64, symbol, direction string) zerolog.Logger {
	return logger.With().
		Int64("trade_id", tradeID).
		Str("symbol", symbol).
		Str("direction", direction).
		Logger()
}

// DecisionContext creates a logger context for decision filtering
func DecisionContext(logger zerolog.Logger, symbol, action string, confidence float64) zerolog.Logger {
	return logger.With().
		Str("symbol", symbol).
		Str("action", action).
		Float64("confidence", confidence).
		Logger()
}

// FilterContext creates a logger context for filter mutations
func FilterContext(logger zerolog.Logger, filterID, filterType, dimension, key string) zerolog.Logger {
	return logger.With().
		Str("filter_id", filterID).
		Str("filter_type", filterType).
		Str("dimension", dimension).
		Str("key", key).
		Logger()
}

// APIContext creates a logger context for API operations
func APIContext(logger zerolog.Logger, method, path string, statusCode int) zerolog.Logger {
	return logger.With().
		Str("method", method).
		Str("path", path).
		Int("status_code", statusCode).
		Logger()
}

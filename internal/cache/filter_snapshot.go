package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/adjuster"
	"dex-perp-bot/internal/logging"
)

// Key formats for the learning snapshot
const (
	KeyFilters = "learning:%s:filters"
	KeyPrompt  = "learning:%s:prompt"
)

// DefaultSnapshotTTL keeps a snapshot readable for a day after the bot stops
const DefaultSnapshotTTL = 24 * time.Hour

// FilterSnapshot is the JSON document stored under KeyFilters
type FilterSnapshot struct {
	BotID         string            `json:"bot_id"`
	UpdatedAt     time.Time         `json:"updated_at"`
	PromptContext string            `json:"prompt_context"`
	Filters       []adjuster.Filter `json:"filters"`
}

// snapshotStore is the slice of CacheService the snapshot cache needs
type snapshotStore interface {
	SetPair(ctx context.Context, k1, v1, k2, v2 string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// FilterSnapshotCache publishes the active filter set after every change.
// It is a read-only mirror; nothing reads it back into the ledger.
type FilterSnapshotCache struct {
	store  snapshotStore
	botID  string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewFilterSnapshotCache creates a snapshot cache for one bot
func NewFilterSnapshotCache(cs *CacheService, botID string, logger zerolog.Logger) *FilterSnapshotCache {
	return newFilterSnapshotCache(cs, botID, logger)
}

func newFilterSnapshotCache(store snapshotStore, botID string, logger zerolog.Logger) *FilterSnapshotCache {
	return &FilterSnapshotCache{
		store:  store,
		botID:  botID,
		ttl:    DefaultSnapshotTTL,
		logger: logging.WithComponent(logger, "FilterSnapshotCache"),
		now:    time.Now,
	}
}

// FiltersKey is the Redis key of the JSON snapshot
func (c *FilterSnapshotCache) FiltersKey() string {
	return fmt.Sprintf(KeyFilters, c.botID)
}

// PromptKey is the Redis key of the plain prompt text
func (c *FilterSnapshotCache) PromptKey() string {
	return fmt.Sprintf(KeyPrompt, c.botID)
}

// PublishFilters writes the snapshot and the prompt text
func (c *FilterSnapshotCache) PublishFilters(ctx context.Context, promptContext string, filters []adjuster.Filter) error {
	if filters == nil {
		filters = []adjuster.Filter{}
	}
	snap := FilterSnapshot{
		BotID:         c.botID,
		UpdatedAt:     c.now().UTC(),
		PromptContext: promptContext,
		Filters:       filters,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal filter snapshot: %w", err)
	}

	if err := c.store.SetPair(ctx, c.FiltersKey(), string(data), c.PromptKey(), promptContext, c.ttl); err != nil {
		return err
	}

	c.logger.Debug().Int("filters", len(filters)).Msg("Filter snapshot published")
	return nil
}

// Snapshot reads the last published snapshot
func (c *FilterSnapshotCache) Snapshot(ctx context.Context) (*FilterSnapshot, error) {
	data, err := c.store.Get(ctx, c.FiltersKey())
	if err != nil {
		return nil, err
	}

	var snap FilterSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filter snapshot: %w", err)
	}
	return &snap, nil
}

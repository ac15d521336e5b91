// Package cache mirrors the learned filter set into Redis so dashboards and
// sibling processes can read it without touching the ledger files.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/logging"
)

var (
	// ErrCacheUnavailable is returned while the circuit breaker is open
	ErrCacheUnavailable = errors.New("redis unavailable (circuit breaker open)")
	// ErrCacheMiss is returned for absent keys
	ErrCacheMiss = errors.New("cache miss")
)

// CacheService provides Redis access with graceful degradation. When Redis
// is unavailable, operations fail fast with ErrCacheUnavailable.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       zerolog.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures   int
	checkInterval time.Duration
}

// NewCacheService connects to Redis. A failed initial ping is not an error:
// the service starts degraded and recovers on a later health check.
func NewCacheService(cfg config.RedisConfig, logger zerolog.Logger) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   1,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	cs := &CacheService{
		client:        client,
		config:        cfg,
		logger:        logging.WithComponent(logger, "CacheService"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cs.lastCheck = time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn().Err(err).Str("address", cfg.Address).Msg("Initial Redis connection failed; running degraded")
		return cs, nil
	}

	cs.healthy = true
	cs.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return cs, nil
}

// IsHealthy returns whether Redis is currently available
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure(err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn().Err(err).Int("failures", cs.failureCount).Msg("Circuit breaker open: Redis marked unhealthy")
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info().Msg("Circuit breaker closed: Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth pings in the background once the check interval has passed
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	if shouldCheck {
		cs.lastCheck = time.Now()
	}
	cs.mu.Unlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a value from cache
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return "", ErrCacheUnavailable
	}

	result, err := cs.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		cs.recordFailure(err)
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores a string value with TTL
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}

	if err := cs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// SetPair stores two keys in one pipeline round trip
func (cs *CacheService) SetPair(ctx context.Context, k1, v1, k2, v2 string, ttl time.Duration) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}

	_, err := cs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k1, v1, ttl)
		pipe.Set(ctx, k2, v2, ttl)
		return nil
	})
	if err != nil {
		cs.recordFailure(err)
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a JSON value
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure(err)
		return err
	}
	cs.recordSuccess()
	return nil
}

// Close closes the Redis connection
func (cs *CacheService) Close() error {
	return cs.client.Close()
}

// Stats reports the circuit breaker state
type Stats struct {
	Healthy      bool      `json:"healthy"`
	FailureCount int       `json:"failure_count"`
	LastCheck    time.Time `json:"last_check"`
}

// GetStats returns the circuit breaker state
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		LastCheck:    cs.lastCheck,
	}
}

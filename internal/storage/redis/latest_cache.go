package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	telemetry "optinet-monitor/internal/telemetry/domain"
)

const latestIndexKey = "latest:index"

// LatestSource is the durable fallback consulted when the cache is cold.
type LatestSource interface {
	Latest(ctx context.Context) ([]telemetry.Measurement, error)
}

// LatestCache keeps the most recent measurement per (card, measure key) in
// Redis so rule sweeps do not hit the database on every cycle. Writes are
// write-through; reads fall back to the source when the cache is cold.
type LatestCache struct {
	client   *goredis.Client
	fallback LatestSource
	logger   *zap.Logger
}

// NewLatestCache constructs a cache.
func NewLatestCache(client *goredis.Client, fallback LatestSource, logger *zap.Logger) (*LatestCache, error) {
	if client == nil {
		return nil, errors.New("latest cache: nil client")
	}
	if fallback == nil {
		return nil, errors.New("latest cache: nil fallback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LatestCache{client: client, fallback: fallback, logger: logger}, nil
}

// Set stores one measurement as the latest value for its (card, measure key).
func (c *LatestCache) Set(ctx context.Context, m telemetry.Measurement) error {
	if c == nil || c.client == nil {
		return errors.New("latest cache: not initialized")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("latest cache: encode: %w", err)
	}
	key := latestKey(m.CardSerial, m.MeasureKey)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.SAdd(ctx, latestIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("latest cache: write: %w", err)
	}
	return nil
}

// Latest returns the cached latest measurements. A cold or unreachable cache
// falls back to the durable source.
func (c *LatestCache) Latest(ctx context.Context) ([]telemetry.Measurement, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("latest cache: not initialized")
	}
	keys, err := c.client.SMembers(ctx, latestIndexKey).Result()
	if err != nil {
		c.logger.Warn("latest cache unavailable, reading from store", zap.Error(err))
		return c.fallback.Latest(ctx)
	}
	if len(keys) == 0 {
		return c.fallback.Latest(ctx)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("latest cache read failed, reading from store", zap.Error(err))
		return c.fallback.Latest(ctx)
	}

	result := make([]telemetry.Measurement, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var m telemetry.Measurement
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			c.logger.Warn("latest cache entry undecodable, skipping",
				zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		result = append(result, m)
	}
	if len(result) == 0 {
		return c.fallback.Latest(ctx)
	}
	return result, nil
}

func latestKey(cardSerial, measureKey string) string {
	return "latest:" + cardSerial + ":" + measureKey
}

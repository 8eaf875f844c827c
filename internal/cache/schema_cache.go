package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/config"
)

const (
	schemaKeyPrefix     = "ingest:schema"
	schemaScanBatchSize = 100
)

// SchemaCache holds raw schema configuration documents keyed by their
// storage location.
type SchemaCache interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Set(ctx context.Context, bucket, key string, payload []byte) error
	Invalidate(ctx context.Context, bucket, key string) error
	InvalidateAll(ctx context.Context) error
}

type redisSchemaCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSchemaCache struct{}

func NewSchemaCache(cfg config.CacheConfig) (SchemaCache, error) {
	if !cfg.Enabled {
		return &noopSchemaCache{}, nil
	}

	client, err := newRedisClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &redisSchemaCache{
		client: client,
		ttl:    cacheTTL(cfg),
	}, nil
}

func NewNoopSchemaCache() SchemaCache {
	return &noopSchemaCache{}
}

func (c *redisSchemaCache) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, buildSchemaKey(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return payload, true, nil
}

func (c *redisSchemaCache) Set(ctx context.Context, bucket, key string, payload []byte) error {
	if err := c.client.Set(ctx, buildSchemaKey(bucket, key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSchemaCache) Invalidate(ctx context.Context, bucket, key string) error {
	if err := c.client.Del(ctx, buildSchemaKey(bucket, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *redisSchemaCache) InvalidateAll(ctx context.Context) error {
	deleted, err := deleteKeysWithPrefix(ctx, c.client, schemaKeyPrefix, schemaScanBatchSize)
	if err != nil {
		return err
	}
	log.Info().Int("keys", deleted).Msg("schema cache flushed")
	return nil
}

func (c *noopSchemaCache) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (c *noopSchemaCache) Set(context.Context, string, string, []byte) error {
	return nil
}

func (c *noopSchemaCache) Invalidate(context.Context, string, string) error {
	return nil
}

func (c *noopSchemaCache) InvalidateAll(context.Context) error {
	return nil
}

func buildSchemaKey(bucket, key string) string {
	hash := sha1.Sum([]byte(bucket + "\x00" + key))
	return fmt.Sprintf("%s:%s", schemaKeyPrefix, hex.EncodeToString(hash[:]))
}

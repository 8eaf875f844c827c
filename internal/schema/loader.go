package schema

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/manifest-ingest/internal/cache"
	"github.com/andresuchdata/manifest-ingest/internal/storage"
)

const maxConfigSize = 16 << 20

// Loader reads the schema configuration document from object storage,
// going through the cache first.
type Loader struct {
	store  storage.ObjectReader
	cache  cache.SchemaCache
	bucket string
	key    string
}

func NewLoader(store storage.ObjectReader, c cache.SchemaCache, bucket, key string) *Loader {
	if c == nil {
		c = cache.NewNoopSchemaCache()
	}
	return &Loader{store: store, cache: c, bucket: bucket, key: key}
}

func (l *Loader) Load(ctx context.Context) (*Config, error) {
	payload, ok, err := l.cache.Get(ctx, l.bucket, l.key)
	if err != nil {
		log.Warn().Err(err).Str("bucket", l.bucket).Str("key", l.key).Msg("schema cache read failed")
	}
	if ok {
		cfg, err := ParseConfig(payload)
		if err == nil {
			return cfg, nil
		}
		log.Warn().Err(err).Str("key", l.key).Msg("discarding cached schema configuration")
		if err := l.cache.Invalidate(ctx, l.bucket, l.key); err != nil {
			log.Warn().Err(err).Str("key", l.key).Msg("schema cache invalidation failed")
		}
	}

	payload, err = l.read(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(payload)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", l.bucket, l.key, err)
	}

	if err := l.cache.Set(ctx, l.bucket, l.key, payload); err != nil {
		log.Warn().Err(err).Str("bucket", l.bucket).Str("key", l.key).Msg("schema cache write failed")
	}
	log.Info().Str("bucket", l.bucket).Str("key", l.key).Int("data_types", len(cfg.DataTypes)).Msg("schema configuration loaded")
	return cfg, nil
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	body, err := l.store.GetObject(ctx, l.bucket, l.key)
	if err != nil {
		return nil, fmt.Errorf("read schema configuration: %w", err)
	}
	defer body.Close()

	payload, err := io.ReadAll(io.LimitReader(body, maxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read schema configuration s3://%s/%s: %w", l.bucket, l.key, err)
	}
	if len(payload) > maxConfigSize {
		return nil, fmt.Errorf("schema configuration s3://%s/%s exceeds %d bytes", l.bucket, l.key, maxConfigSize)
	}
	return payload, nil
}

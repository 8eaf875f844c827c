// cmd/ingest/wire.go
package main

import (
	"fmt"

	"github.com/andresuchdata/manifest-ingest/internal/cache"
	"github.com/andresuchdata/manifest-ingest/internal/config"
	"github.com/andresuchdata/manifest-ingest/internal/pipeline"
	"github.com/andresuchdata/manifest-ingest/internal/repository/postgres"
	"github.com/andresuchdata/manifest-ingest/internal/schema"
	"github.com/andresuchdata/manifest-ingest/internal/signing"
	"github.com/andresuchdata/manifest-ingest/internal/storage"
	"github.com/andresuchdata/manifest-ingest/internal/stream"
	"github.com/andresuchdata/manifest-ingest/pkg/logger"
)

// deps is everything a manifest run needs, built once per process.
type deps struct {
	runner *pipeline.Runner
	runs   *pipeline.Repository
	db     *postgres.DB
}

func (d *deps) Close() {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to close database")
		}
	}
}

func buildDeps(cfg *config.Config) (*deps, error) {
	if err := cfg.ValidateIngest(); err != nil {
		return nil, err
	}
	partSizes := []struct {
		name string
		size int
	}{
		{"PART_SIZE_BYTES", cfg.Ingest.PartSize},
		{"MANIFEST_PART_SIZE_BYTES", cfg.Ingest.ManifestPartSize},
	}
	for _, p := range partSizes {
		if p.size < stream.MinPartSize {
			return nil, fmt.Errorf("%s: %w", p.name, stream.ErrPartSizeTooSmall)
		}
	}

	store, err := storage.NewMinioClient(storage.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	schemaCache, err := cache.NewSchemaCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise schema cache: %w", err)
	}
	loader := schema.NewLoader(store, schemaCache, cfg.Ingest.ConfigBucket, cfg.Ingest.ConfigKey)

	var opts []pipeline.RunnerOption
	if cfg.Security.VerifyEnabled() {
		pub, err := signing.ParsePublicKey(cfg.Security.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("PUBLIC_KEY: %w", err)
		}
		opts = append(opts, pipeline.WithVerifier(signing.NewRSAVerifier(pub)))
	} else {
		logger.Log.Warn().Msg("source manifest verification disabled")
	}
	if cfg.Security.SignEnabled() {
		priv, err := signing.ParsePrivateKey(cfg.Security.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("PRIVATE_KEY: %w", err)
		}
		opts = append(opts, pipeline.WithSigner(signing.NewRSASigner(priv)))
	} else {
		logger.Log.Warn().Msg("output manifest signing disabled")
	}

	d := &deps{}
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.runs = pipeline.NewRepository(db)
		opts = append(opts, pipeline.WithTracker(d.runs))
	}

	d.runner = pipeline.NewRunner(store, loader, pipeline.RunnerConfigFrom(cfg.Ingest), opts...)
	return d, nil
}

// cmd/ingest/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/manifest-ingest/internal/api"
	"github.com/andresuchdata/manifest-ingest/internal/cache"
	"github.com/andresuchdata/manifest-ingest/internal/manifest"
	"github.com/andresuchdata/manifest-ingest/internal/repository/postgres"
	"github.com/andresuchdata/manifest-ingest/internal/signing"
	"github.com/andresuchdata/manifest-ingest/pkg/logger"
)

func runManifest(c *cli.Context) error {
	d, err := buildDeps(configFrom(c))
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.runner.ProcessManifest(c.Context, c.String("bucket"), c.String("key"))
	if err != nil {
		return err
	}
	logger.Log.Info().
		Str("run_id", result.RunID).
		Str("output_bucket", result.OutputBucket).
		Int("entries", result.Entries).
		Int64("rows", result.Rows).
		Bool("skipped", result.Skipped).
		Msg("manifest processed")
	return nil
}

func serve(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	services := &api.Services{Processor: d.runner}
	if d.runs != nil {
		services.Runs = d.runs
	}

	port := c.String("port")
	if port == "" {
		port = cfg.Server.Port
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewRouter(services, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info().Str("port", port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Log.Info().Msg("Server exiting")
	return nil
}

func migrate(c *cli.Context) error {
	db, err := postgres.NewDB(configFrom(c).Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(c.Context)
}

func flushCache(c *cli.Context) error {
	cfg := configFrom(c)
	if !cfg.Cache.Enabled {
		logger.Log.Info().Msg("schema cache disabled, nothing to flush")
		return nil
	}
	schemaCache, err := cache.NewSchemaCache(cfg.Cache)
	if err != nil {
		return err
	}
	return schemaCache.InvalidateAll(c.Context)
}

func keygen(c *cli.Context) error {
	pair, err := signing.GenerateKeyPair()
	if err != nil {
		return err
	}
	pubPath, privPath, err := pair.WriteFiles(c.String("dir"), c.String("name"))
	if err != nil {
		return err
	}
	logger.Log.Info().Str("public_key", pubPath).Str("private_key", privPath).Msg("key pair written")
	return nil
}

func signManifest(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: ingest sign <manifest> <private key file>", 2)
	}
	manifestPath := c.Args().Get(0)

	key, err := signing.LoadPrivateKeyFile(c.Args().Get(1))
	if err != nil {
		return err
	}
	m, err := readLocalManifest(manifestPath)
	if err != nil {
		return err
	}
	if err := manifest.Sign(m, signing.NewRSASigner(key)); err != nil {
		return err
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	logger.Log.Info().Str("manifest", manifestPath).Int("entries", len(m.Entries)).Msg("manifest signed")
	return nil
}

func verifyManifest(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: ingest verify <manifest> <public key file>", 2)
	}
	manifestPath := c.Args().Get(0)

	key, err := signing.LoadPublicKeyFile(c.Args().Get(1))
	if err != nil {
		return err
	}
	m, err := readLocalManifest(manifestPath)
	if err != nil {
		return err
	}
	if err := manifest.Verify(m, signing.NewRSAVerifier(key)); err != nil {
		return err
	}
	logger.Log.Info().Str("manifest", manifestPath).Int("entries", len(m.Entries)).Msg("manifest verified")
	return nil
}

// readLocalManifest parses a manifest file and hashes the entry files that
// sit next to it.
func readLocalManifest(path string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := manifest.HashFilesInDir(m, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return m, nil
}

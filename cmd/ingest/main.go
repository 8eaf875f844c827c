// cmd/ingest/main.go
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/manifest-ingest/internal/config"
	"github.com/andresuchdata/manifest-ingest/pkg/logger"
)

const configKey = "config"

func loadConfig(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "ingest",
		Usage:    "Transform and republish manifest batches with signed content hashes",
		Metadata: map[string]interface{}{},
		Before:   loadConfig,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Process a single manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "bucket",
						Usage:    "Bucket holding the manifest",
						Required: true,
						EnvVars:  []string{"MANIFEST_BUCKET"},
					},
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Object key of the manifest",
						Required: true,
						EnvVars:  []string{"MANIFEST_KEY"},
					},
				},
				Action: runManifest,
			},
			{
				Name:  "serve",
				Usage: "Serve the storage notification webhook and run status API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Usage:   "Port to listen on",
						EnvVars: []string{"SERVER_PORT"},
					},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create the run tracking tables",
				Action: migrate,
			},
			{
				Name:   "flush-cache",
				Usage:  "Drop every cached schema configuration",
				Action: flushCache,
			},
			{
				Name:  "keygen",
				Usage: "Generate an RSA key pair for signing manifests",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory to write the key files to",
						Value: ".",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Key file name prefix",
						Value: "ingest",
					},
				},
				Action: keygen,
			},
			{
				Name:      "sign",
				Usage:     "Hash the files next to a local manifest and sign its entries",
				ArgsUsage: "<manifest> <private key file>",
				Action:    signManifest,
			},
			{
				Name:      "verify",
				Usage:     "Hash the files next to a local manifest and verify its signatures",
				ArgsUsage: "<manifest> <public key file>",
				Action:    verifyManifest,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Log.Error().Stack().Err(err).Msg("ingest failed")
		os.Exit(1)
	}
}

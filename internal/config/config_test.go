package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T, env map[string]string) *viper.Viper {
	t.Helper()
	for k, val := range env {
		t.Setenv(k, val)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(t, nil))
	require.NoError(t, err)

	assert.Equal(t, 10*MiB, cfg.Ingest.PartSize)
	assert.Equal(t, 10*MiB, cfg.Ingest.ManifestPartSize)
	assert.Equal(t, ',', cfg.Ingest.Delimiter)
	assert.Equal(t, "config/input_config.json", cfg.Ingest.ConfigKey)
	assert.Equal(t, "1.0.0", cfg.Ingest.ManifestVersion)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.True(t, cfg.Storage.UseSSL)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.False(t, cfg.Cache.Enabled)
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := fromViper(newTestViper(t, map[string]string{
		"PROCESSED_BUCKET":     "processed",
		"PROCESSED_KMS_ID":     "kms-1",
		"PART_SIZE_BYTES":      "6291456",
		"CSV_DELIMITER":        ";",
		"PUBLIC_KEY":           "None",
		"PRIVATE_KEY":          "None",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "processed", cfg.Ingest.OutputBucket)
	assert.Equal(t, "kms-1", cfg.Ingest.KMSKeyID)
	assert.Equal(t, 6291456, cfg.Ingest.PartSize)
	assert.Equal(t, ';', cfg.Ingest.Delimiter)
	assert.False(t, cfg.Security.VerifyEnabled())
	assert.False(t, cfg.Security.SignEnabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestTabDelimiter(t *testing.T) {
	cfg, err := fromViper(newTestViper(t, map[string]string{"CSV_DELIMITER": `\t`}))
	require.NoError(t, err)
	assert.Equal(t, '\t', cfg.Ingest.Delimiter)
}

func TestInvalidDelimiter(t *testing.T) {
	_, err := fromViper(newTestViper(t, map[string]string{"CSV_DELIMITER": ";;"}))
	require.Error(t, err)
}

func TestValidateIngest(t *testing.T) {
	cfg := &Config{
		Storage:  StorageConfig{Endpoint: "localhost:9000"},
		Ingest:   IngestConfig{ConfigBucket: "config", ConfigKey: "config/input_config.json"},
		Security: SecurityConfig{PublicKey: "None", PrivateKey: "None"},
	}
	require.NoError(t, cfg.ValidateIngest())

	cfg.Security.PrivateKey = ""
	err := cfg.ValidateIngest()
	require.ErrorIs(t, err, ErrMissingSetting)
	assert.Contains(t, err.Error(), "PRIVATE_KEY")

	cfg.Ingest.ConfigBucket = ""
	err = cfg.ValidateIngest()
	require.ErrorIs(t, err, ErrMissingSetting)
	assert.Contains(t, err.Error(), "CONFIG_BUCKET")
}

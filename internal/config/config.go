// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DisabledKey is the key value that turns signature verification or signing off.
const DisabledKey = "None"

const (
	MiB                    = 1024 * 1024
	defaultPartSize        = 10 * MiB
	defaultReadBufferSize  = 10 * MiB
	defaultManifestVersion = "1.0.0"
)

// ErrMissingSetting is returned when a required setting is not present.
var ErrMissingSetting = errors.New("missing required setting")

type Config struct {
	LogLevel  string
	LogFormat string
	Storage   StorageConfig
	Ingest    IngestConfig
	Security  SecurityConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Server    ServerConfig
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type IngestConfig struct {
	ConfigBucket     string
	ConfigKey        string
	OutputBucket     string
	KMSKeyID         string
	PartSize         int
	ManifestPartSize int
	ReadBufferSize   int
	Delimiter        rune
	ManifestVersion  string
}

// SecurityConfig carries base64 DER keys. A value of DisabledKey switches the
// corresponding step off.
type SecurityConfig struct {
	PublicKey  string
	PrivateKey string
}

// VerifyEnabled reports whether source manifests must be verified.
func (s SecurityConfig) VerifyEnabled() bool {
	return s.PublicKey != DisabledKey
}

// SignEnabled reports whether output manifests must be signed.
func (s SecurityConfig) SignEnabled() bool {
	return s.PrivateKey != DisabledKey
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	SchemaTTLSeconds int
}

type ServerConfig struct {
	Port           string
	Mode           string
	AllowedOrigins []string
}

// Load reads the .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("CONFIG_KEY", "config/input_config.json")
	v.SetDefault("PART_SIZE_BYTES", defaultPartSize)
	v.SetDefault("MANIFEST_PART_SIZE_BYTES", defaultPartSize)
	v.SetDefault("READ_BUFFER_BYTES", defaultReadBufferSize)
	v.SetDefault("CSV_DELIMITER", ",")
	v.SetDefault("MANIFEST_VERSION", defaultManifestVersion)
	v.SetDefault("TRACKING_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ingest")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_SCHEMA_TTL_SECONDS", 300)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	delimiter, err := parseDelimiter(v.GetString("CSV_DELIMITER"))
	if err != nil {
		return nil, err
	}

	return &Config{
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Ingest: IngestConfig{
			ConfigBucket:     strings.TrimSpace(v.GetString("CONFIG_BUCKET")),
			ConfigKey:        strings.TrimSpace(v.GetString("CONFIG_KEY")),
			OutputBucket:     strings.TrimSpace(v.GetString("PROCESSED_BUCKET")),
			KMSKeyID:         strings.TrimSpace(v.GetString("PROCESSED_KMS_ID")),
			PartSize:         v.GetInt("PART_SIZE_BYTES"),
			ManifestPartSize: v.GetInt("MANIFEST_PART_SIZE_BYTES"),
			ReadBufferSize:   v.GetInt("READ_BUFFER_BYTES"),
			Delimiter:        delimiter,
			ManifestVersion:  v.GetString("MANIFEST_VERSION"),
		},
		Security: SecurityConfig{
			PublicKey:  strings.TrimSpace(v.GetString("PUBLIC_KEY")),
			PrivateKey: strings.TrimSpace(v.GetString("PRIVATE_KEY")),
		},
		Database: DatabaseConfig{
			Enabled:         v.GetBool("TRACKING_ENABLED"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			SchemaTTLSeconds: v.GetInt("CACHE_SCHEMA_TTL_SECONDS"),
		},
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}, nil
}

// ValidateIngest checks the settings needed to process a manifest.
func (c *Config) ValidateIngest() error {
	required := []struct{ name, value string }{
		{"STORAGE_ENDPOINT", c.Storage.Endpoint},
		{"CONFIG_BUCKET", c.Ingest.ConfigBucket},
		{"CONFIG_KEY", c.Ingest.ConfigKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, r.name)
		}
	}
	if c.Security.PublicKey == "" {
		return fmt.Errorf("%w: PUBLIC_KEY (use %q to disable)", ErrMissingSetting, DisabledKey)
	}
	if c.Security.PrivateKey == "" {
		return fmt.Errorf("%w: PRIVATE_KEY (use %q to disable)", ErrMissingSetting, DisabledKey)
	}
	return nil
}

func parseDelimiter(raw string) (rune, error) {
	if raw == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, fmt.Errorf("CSV_DELIMITER must be a single character, got %q", raw)
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return r, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

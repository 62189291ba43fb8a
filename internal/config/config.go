package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "MEMEFLIX"
	defaultHTTPAddress     = "0.0.0.0:5000"
	defaultDatabasePath    = "memeflix.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTokenTTLMinutes = 7 * 24 * 60
	defaultMediaBackend    = MediaBackendLocal
	defaultMediaRoot       = "media"
	defaultSeedPath        = "seed/memes.yaml"
	defaultAllowedOrigin   = "*"
)

const (
	// MediaBackendLocal serves media files from a directory on disk.
	MediaBackendLocal = "local"
	// MediaBackendMinio serves media objects from an S3-compatible bucket.
	MediaBackendMinio = "minio"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	SigningSecret  string
	TokenTTL       time.Duration
	AllowedOrigins []string
	SeedPath       string
	Media          MediaConfig
}

// MediaConfig selects and configures the store behind /media.
type MediaConfig struct {
	Backend string
	Root    string
	Minio   MinioConfig
}

// MinioConfig describes an S3-compatible bucket holding media objects.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("seed.path", defaultSeedPath)
	configViper.SetDefault("media.backend", defaultMediaBackend)
	configViper.SetDefault("media.root", defaultMediaRoot)
	configViper.SetDefault("media.minio.prefix", "")
	configViper.SetDefault("media.minio.use_ssl", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadStorage parses configuration for offline maintenance commands, which only
// need the database, logging and seed settings.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		SeedPath:       configViper.GetString("seed.path"),
		Media: MediaConfig{
			Backend: strings.ToLower(strings.TrimSpace(configViper.GetString("media.backend"))),
			Root:    configViper.GetString("media.root"),
			Minio: MinioConfig{
				Endpoint:  configViper.GetString("media.minio.endpoint"),
				AccessKey: configViper.GetString("media.minio.access_key"),
				SecretKey: configViper.GetString("media.minio.secret_key"),
				Bucket:    configViper.GetString("media.minio.bucket"),
				Prefix:    configViper.GetString("media.minio.prefix"),
				UseSSL:    configViper.GetBool("media.minio.use_ssl"),
			},
		},
	}
}

func (c AppConfig) validateStorage() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	switch c.Media.Backend {
	case MediaBackendLocal:
		if strings.TrimSpace(c.Media.Root) == "" {
			return fmt.Errorf("media.root is required for the local media backend")
		}
	case MediaBackendMinio:
		if strings.TrimSpace(c.Media.Minio.Endpoint) == "" {
			return fmt.Errorf("media.minio.endpoint is required for the minio media backend")
		}
		if strings.TrimSpace(c.Media.Minio.Bucket) == "" {
			return fmt.Errorf("media.minio.bucket is required for the minio media backend")
		}
	default:
		return fmt.Errorf("unsupported media.backend %q", c.Media.Backend)
	}
	return nil
}

// Env values arrive as a single comma-separated string.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	if len(origins) == 0 {
		return []string{defaultAllowedOrigin}
	}
	return origins
}

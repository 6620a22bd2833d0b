package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/lyzr/jukebox/common/models"
)

// Storage types selectable with STORAGE_TYPE
const (
	StorageLocal    = "local"
	StorageS3       = "s3"
	StorageGCS      = "gcs"
	StoragePostgres = "postgres"
)

// Audio source names accepted in AUDIO_SOURCES
const (
	SourceNode  = "node"
	SourceFetch = "fetch"
)

// Config holds all service configuration.
// It is built once by Load and treated as read-only afterwards.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
	Storage   StorageConfig
	Audio     AudioConfig
	RateLimit RateLimitConfig

	// ConfigFile optionally points at a YAML file with storage_options and audio_source_options
	ConfigFile string `env:"CONFIG_FILE"`

	StorageOptions     map[string]any `env:"-"`
	AudioSourceOptions map[string]any `env:"-"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name            string        `env:"SERVICE_NAME"`
	Port            int           `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds Postgres connection settings.
// An empty Host disables the database.
type DatabaseConfig struct {
	Host        string        `env:"POSTGRES_HOST"`
	Port        int           `env:"POSTGRES_PORT" envDefault:"5432"`
	Database    string        `env:"POSTGRES_DB" envDefault:"jukebox"`
	User        string        `env:"POSTGRES_USER" envDefault:"jukebox"`
	Password    string        `env:"POSTGRES_PASSWORD" envDefault:"jukebox"`
	SSLMode     string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns    int           `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	MinConns    int           `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxIdleTime time.Duration `env:"POSTGRES_MAX_IDLE_TIME" envDefault:"30m"`
	MaxLifetime time.Duration `env:"POSTGRES_MAX_LIFETIME" envDefault:"1h"`
	AutoMigrate bool          `env:"POSTGRES_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig holds Redis settings; an empty Addr disables Redis
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// CacheConfig holds the metadata cache settings
type CacheConfig struct {
	Enabled    bool          `env:"CACHE_ENABLED" envDefault:"true"`
	DefaultTTL time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"1h"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool `env:"ENABLE_PPROF" envDefault:"false"`
	PprofPort   int  `env:"PPROF_PORT" envDefault:"6060"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type string `env:"STORAGE_TYPE" envDefault:"local"`

	LocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"data/storage"`

	S3Bucket   string `env:"STORAGE_S3_BUCKET"`
	S3Region   string `env:"STORAGE_S3_REGION"`
	S3Endpoint string `env:"STORAGE_S3_ENDPOINT"`
	S3Prefix   string `env:"STORAGE_S3_PREFIX"`

	GCSBucket string `env:"STORAGE_GCS_BUCKET"`
	GCSPrefix string `env:"STORAGE_GCS_PREFIX"`
}

// AudioConfig holds the resolution pipeline settings
type AudioConfig struct {
	Format     string   `env:"AUDIO_FORMAT" envDefault:"m4a"`
	FallbackID string   `env:"AUDIO_FALLBACK_ID" envDefault:"7GhIk7Il098yCjg4BQjzvb"`
	Sources    []string `env:"AUDIO_SOURCES" envDefault:"fetch" envSeparator:","`
	NodeHosts  []string `env:"NODE_HOSTS" envSeparator:","`
	TempDir    string   `env:"AUDIO_TEMP_DIR"`

	DownloaderCommand string `env:"AUDIO_DOWNLOADER_COMMAND" envDefault:"yt-dlp-wrapper"`
	FFmpegBinary      string `env:"FFMPEG_BINARY" envDefault:"ffmpeg"`

	DownloadTimeout  time.Duration `env:"AUDIO_DOWNLOAD_TIMEOUT" envDefault:"90s"`
	TranscodeTimeout time.Duration `env:"AUDIO_TRANSCODE_TIMEOUT" envDefault:"60s"`
	ProbeTimeout     time.Duration `env:"AUDIO_PROBE_TIMEOUT" envDefault:"5s"`

	SearchTemplate   string `env:"AUDIO_SEARCH_TEMPLATE" envDefault:"ytsearch1:%s"`
	LocationTemplate string `env:"AUDIO_LOCATION_TEMPLATE" envDefault:"https://www.youtube.com/results?search_query=%s"`

	MetadataBaseURL string `env:"METADATA_BASE_URL"`
	MaxUploadBytes  int64  `env:"AUDIO_MAX_UPLOAD_BYTES" envDefault:"26214400"`
}

// RateLimitConfig bounds uploads per client
type RateLimitConfig struct {
	UploadsPerMinute int `env:"UPLOAD_RATE_LIMIT" envDefault:"10"`
}

// Load reads configuration from the environment and the optional options file
func Load(serviceName string) (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = serviceName
	}

	if err := cfg.loadOptions(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.Audio.NodeHosts = mergeHosts(cfg.Audio.NodeHosts, OptionStrings(cfg.AudioSourceOptions, "NODE_HOST"))
	cfg.Audio.NodeHosts = mergeHosts(cfg.Audio.NodeHosts, OptionStrings(cfg.AudioSourceOptions, "NODE_HOSTS"))

	if cfg.Audio.TempDir == "" {
		cfg.Audio.TempDir = filepath.Join(os.TempDir(), "jukebox")
	}

	return &cfg, cfg.Validate()
}

// loadOptions reads storage_options and audio_source_options from ConfigFile
func (c *Config) loadOptions() error {
	c.StorageOptions = map[string]any{}
	c.AudioSourceOptions = map[string]any{}
	if c.ConfigFile == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(c.ConfigFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", c.ConfigFile, err)
	}

	for k, val := range v.GetStringMap("storage_options") {
		c.StorageOptions[k] = val
	}
	for k, val := range v.GetStringMap("audio_source_options") {
		c.AudioSourceOptions[k] = val
	}
	return nil
}

// applyEnvOverrides lets <KIND>_IS_DISABLED environment variables win over the options file
func (c *Config) applyEnvOverrides() {
	for _, kind := range models.AllKinds {
		if v, ok := os.LookupEnv(kind.DisabledFlag()); ok {
			c.StorageOptions[kind.DisabledFlag()] = v
		}
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port < 1 || c.Service.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Service.Port))
	}
	if strings.TrimSpace(c.Audio.Format) == "" {
		errs = append(errs, errors.New("audio format is required"))
	}
	if c.Audio.FallbackID == "" {
		errs = append(errs, errors.New("fallback track id is required"))
	}
	if c.Audio.DownloadTimeout <= 0 || c.Audio.TranscodeTimeout <= 0 || c.Audio.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("audio timeouts must be positive"))
	}
	if c.Audio.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}

	switch c.Storage.Type {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("STORAGE_LOCAL_DIR is required for local storage"))
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("STORAGE_S3_BUCKET is required for s3 storage"))
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("STORAGE_GCS_BUCKET is required for gcs storage"))
		}
	case StoragePostgres:
		if !c.DatabaseEnabled() {
			errs = append(errs, errors.New("POSTGRES_HOST is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type: %q", c.Storage.Type))
	}

	for _, src := range c.Audio.Sources {
		switch src {
		case SourceNode, SourceFetch:
		default:
			errs = append(errs, fmt.Errorf("unknown audio source: %q", src))
		}
	}
	if slices.Contains(c.Audio.Sources, SourceNode) && len(c.Audio.NodeHosts) == 0 {
		errs = append(errs, errors.New("node audio source requires NODE_HOST or NODE_HOSTS"))
	}

	if c.DatabaseEnabled() && c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, errors.New("max_conns must be >= min_conns"))
	}

	return errors.Join(errs...)
}

// DatabaseEnabled reports whether Postgres is configured
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != ""
}

// RedisEnabled reports whether Redis is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func mergeHosts(hosts, extra []string) []string {
	for _, h := range extra {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h != "" && !slices.Contains(hosts, h) {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Package config provides configuration management for the autovideo worker
// using Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultHTTPTimeout     = 60 * time.Second
	defaultJobTimeout      = 30 * time.Minute
	defaultProbeTimeout    = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	defaultStepTimeout     = 2 * time.Minute
	defaultLeaseDuration   = 45 * time.Minute
	defaultMaxClips        = 5
	defaultClipConcurrency = 2
	defaultComposition     = "ShortVideo"
	defaultBucket          = "videos"
	defaultShortsBucket    = "shorts"
	defaultTranscriptMax   = 50000
)

// Config holds all configuration for the worker.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Render   RenderConfig   `mapstructure:"render"`
	Shorts   ShortsConfig   `mapstructure:"shorts"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds record store connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	// Provider is "supabase" or "localfs".
	Provider string `mapstructure:"provider"`
	// BaseURL is the storage service base URL (supabase provider).
	BaseURL string `mapstructure:"base_url"`
	// ServiceKey authenticates uploads (supabase provider). Redacted in logs.
	ServiceKey string `mapstructure:"service_key"`
	// Bucket is the bucket for single-render artifacts.
	Bucket string `mapstructure:"bucket"`
	// ShortsBucket is the bucket for staged-pipeline clips.
	ShortsBucket string `mapstructure:"shorts_bucket"`
	// LocalDir is the root directory for the localfs provider.
	LocalDir string `mapstructure:"local_dir"`
	// PublicBaseURL is the public URL prefix for the localfs provider.
	PublicBaseURL string `mapstructure:"public_base_url"`
	// ScratchDir is where runs place temporary media files.
	ScratchDir string `mapstructure:"scratch_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// WebhookConfig holds webhook intake configuration.
type WebhookConfig struct {
	// Secret is the shared secret required by the intake endpoints.
	// Empty disables the check. Redacted in logs.
	Secret string `mapstructure:"secret"`
	// TriggerURL is the endpoint a successful reset re-invokes (best-effort).
	TriggerURL string `mapstructure:"trigger_url"`
}

// RenderConfig holds single-artifact render pipeline configuration.
type RenderConfig struct {
	// EngineBinary is the renderer CLI the engine adapter drives.
	EngineBinary string `mapstructure:"engine_binary"`
	// ProjectDir is the composition project the bundle is built from.
	ProjectDir string `mapstructure:"project_dir"`
	// BundleDir is where the prepared bundle is produced/served from.
	BundleDir string `mapstructure:"bundle_dir"`
	// DefaultComposition is used when the project inputs name none.
	DefaultComposition string `mapstructure:"default_composition"`
	// JobTimeout bounds one full pipeline run; on expiry the record is
	// forced into the error state.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// StepTimeout bounds individual engine invocations.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	// ProbeTimeout bounds the duration probe (non-fatal on expiry).
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// DownloadTimeout bounds remote media downloads.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// ShortsConfig holds staged-pipeline configuration.
type ShortsConfig struct {
	// MaxClips caps the clips per run when inputs do not set it.
	MaxClips int `mapstructure:"max_clips"`
	// ClipConcurrency bounds per-clip fan-out within one run.
	ClipConcurrency int `mapstructure:"clip_concurrency"`
	// JobTimeout bounds one full staged run.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// TranscriptMaxChars truncates the stored transcript.
	TranscriptMaxChars int `mapstructure:"transcript_max_chars"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = $PATH lookup)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = $PATH lookup)
	YtdlpPath  string `mapstructure:"ytdlp_path"`  // Path to yt-dlp binary (empty = $PATH lookup)
}

// OpenAIConfig holds transcription/analysis API configuration.
type OpenAIConfig struct {
	// APIKey authenticates Whisper and chat completion calls. Redacted in logs.
	APIKey string `mapstructure:"api_key"`
	// ChatModel is the model used for moment detection and titles.
	ChatModel string `mapstructure:"chat_model"`
}

// ReaperConfig holds stale-processing sweep configuration.
type ReaperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron is a 6-field cron expression for the sweep schedule.
	Cron string `mapstructure:"cron"`
	// Lease is how long a record may sit in processing before the sweep
	// forces it into the error state.
	Lease time.Duration `mapstructure:"lease"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with AUTOVIDEO_ and use underscores for
// nesting. Example: AUTOVIDEO_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/autovideo")
		v.AddConfigPath("$HOME/.autovideo")
	}

	v.SetEnvPrefix("AUTOVIDEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper unmarshals and validates configuration from an already
// initialized viper instance. Callers are expected to have applied defaults,
// file, env, and flag bindings beforehand.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "autovideo.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.provider", "localfs")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.service_key", "")
	v.SetDefault("storage.bucket", defaultBucket)
	v.SetDefault("storage.shorts_bucket", defaultShortsBucket)
	v.SetDefault("storage.local_dir", "./data/objects")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.scratch_dir", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.trigger_url", "")

	// Render defaults
	v.SetDefault("render.engine_binary", "")
	v.SetDefault("render.project_dir", "")
	v.SetDefault("render.bundle_dir", "")
	v.SetDefault("render.default_composition", defaultComposition)
	v.SetDefault("render.job_timeout", defaultJobTimeout)
	v.SetDefault("render.step_timeout", defaultStepTimeout)
	v.SetDefault("render.probe_timeout", defaultProbeTimeout)
	v.SetDefault("render.download_timeout", defaultDownloadTimeout)

	// Shorts defaults
	v.SetDefault("shorts.max_clips", defaultMaxClips)
	v.SetDefault("shorts.clip_concurrency", defaultClipConcurrency)
	v.SetDefault("shorts.job_timeout", time.Hour)
	v.SetDefault("shorts.transcript_max_chars", defaultTranscriptMax)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.ytdlp_path", "")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.chat_model", "gpt-4o")

	// Reaper defaults
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.cron", "0 */5 * * * *") // every 5 minutes (6-field cron)
	v.SetDefault("reaper.lease", defaultLeaseDuration)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Storage.Provider {
	case "localfs":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the localfs provider")
		}
	case "supabase":
		if c.Storage.BaseURL == "" {
			return fmt.Errorf("storage.base_url is required for the supabase provider")
		}
		if c.Storage.ServiceKey == "" {
			return fmt.Errorf("storage.service_key is required for the supabase provider")
		}
	default:
		return fmt.Errorf("storage.provider must be one of: localfs, supabase")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Render.JobTimeout <= 0 {
		return fmt.Errorf("render.job_timeout must be positive")
	}
	if c.Shorts.ClipConcurrency < 1 {
		return fmt.Errorf("shorts.clip_concurrency must be at least 1")
	}
	if c.Shorts.MaxClips < 1 {
		return fmt.Errorf("shorts.max_clips must be at least 1")
	}

	return nil
}

// Package config loads setlist settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/validation"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	OpenRouter OpenRouterConfig `koanf:"openrouter"`
	Plex       PlexConfig       `koanf:"plex"`
	Storage    StorageConfig    `koanf:"storage"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Worker     WorkerConfig     `koanf:"worker"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	SessionTTL      time.Duration `koanf:"session_ttl" validate:"gt=0"`
}

// OpenRouterConfig configures the generation service.
type OpenRouterConfig struct {
	APIKey       string        `koanf:"api_key" validate:"required"`
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	DefaultModel string        `koanf:"default_model" validate:"required"`
	Referer      string        `koanf:"referer"`
	Title        string        `koanf:"title"`
	Timeout      time.Duration `koanf:"timeout" validate:"gte=0"`
}

// PlexConfig configures the media server.
type PlexConfig struct {
	URL               string        `koanf:"url" validate:"required,url"`
	Token             string        `koanf:"token" validate:"required"`
	UserID            string        `koanf:"user_id"`
	LibraryScope      string        `koanf:"library_scope"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff      time.Duration `koanf:"retry_backoff" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
}

// StorageConfig selects where history and drafts are kept.
type StorageConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=sqlite memory"`
	Path         string `koanf:"path" validate:"required_if=Driver sqlite"`
	HistoryLimit int    `koanf:"history_limit" validate:"gte=1,lte=100"`
}

// PipelineConfig holds the per-session defaults.
type PipelineConfig struct {
	PlaylistLength  int           `koanf:"playlist_length" validate:"gte=1,lte=100"`
	MaxAttempts     int           `koanf:"max_attempts" validate:"gte=1,lte=10"`
	BatchSize       int           `koanf:"batch_size" validate:"gte=1,lte=50"`
	SearchTimeout   time.Duration `koanf:"search_timeout" validate:"gt=0"`
	Mode            string        `koanf:"mode" validate:"oneof=tracks artists"`
	TimeFrame       string        `koanf:"time_frame" validate:"oneof=all day week month quarter year"`
	StyleRefinement bool          `koanf:"style_refinement"`
}

// WorkerConfig sizes the playlist history worker pool.
type WorkerConfig struct {
	Workers   int `koanf:"workers" validate:"gte=1,lte=32"`
	QueueSize int `koanf:"queue_size" validate:"gte=1"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks every field constraint. Failures wrap domain.ErrConfiguration.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// LoggingSettings converts the settings for logging.Init.
func (c *Config) LoggingSettings() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Caller: c.Logging.Caller,
	}
}

// Mode returns the configured analysis mode.
func (c *Config) Mode() domain.AnalysisMode {
	return domain.ParseAnalysisMode(c.Pipeline.Mode)
}

// TimeFrame returns the configured history window.
func (c *Config) TimeFrame() frequency.TimeFrame {
	f, err := frequency.ParseTimeFrame(c.Pipeline.TimeFrame)
	if err != nil {
		return frequency.FrameAll
	}
	return f
}

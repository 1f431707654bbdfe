package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/setlist/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			SessionTTL:      2 * time.Hour,
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "deepseek/deepseek-r1",
			Referer:      "https://github.com/ewilliams-labs/setlist",
			Title:        "setlist",
			Timeout:      90 * time.Second,
		},
		Plex: PlexConfig{
			Timeout:           15 * time.Second,
			RequestsPerSecond: 20,
			Burst:             10,
			MaxRetries:        3,
			RetryBackoff:      250 * time.Millisecond,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			Path:         "setlist.db",
			HistoryLimit: 10,
		},
		Pipeline: PipelineConfig{
			PlaylistLength:  20,
			MaxAttempts:     3,
			BatchSize:       5,
			SearchTimeout:   5 * time.Second,
			Mode:            "tracks",
			TimeFrame:       "all",
			StyleRefinement: true,
		},
		Worker: WorkerConfig{
			Workers:   2,
			QueueSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration: defaults first, then the config file if one
// is found, then environment variables.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: config file %s: %v", domain.ErrConfiguration, path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: failed to load config file %s: %v", domain.ErrConfiguration, configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal configuration: %v", domain.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_addr":             "server.addr",
	"http_read_timeout":     "server.read_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"cors_origins":          "server.cors_origins",
	"session_ttl":           "server.session_ttl",

	"openrouter_api_key":       "openrouter.api_key",
	"openrouter_base_url":      "openrouter.base_url",
	"openrouter_default_model": "openrouter.default_model",
	"openrouter_referer":       "openrouter.referer",
	"openrouter_title":         "openrouter.title",
	"openrouter_timeout":       "openrouter.timeout",

	"plex_server_url":          "plex.url",
	"plex_url":                 "plex.url",
	"plex_token":               "plex.token",
	"plex_user_id":             "plex.user_id",
	"plex_library":             "plex.library_scope",
	"plex_timeout":             "plex.timeout",
	"plex_requests_per_second": "plex.requests_per_second",
	"plex_burst":               "plex.burst",
	"plex_max_retries":         "plex.max_retries",
	"plex_retry_backoff":       "plex.retry_backoff",
	"plex_breaker_failures":    "plex.breaker_failures",
	"plex_breaker_timeout":     "plex.breaker_timeout",

	"storage_driver":        "storage.driver",
	"storage_path":          "storage.path",
	"playlist_history_size": "storage.history_limit",

	"playlist_length":  "pipeline.playlist_length",
	"max_attempts":     "pipeline.max_attempts",
	"batch_size":       "pipeline.batch_size",
	"search_timeout":   "pipeline.search_timeout",
	"analysis_mode":    "pipeline.mode",
	"time_frame":       "pipeline.time_frame",
	"style_refinement": "pipeline.style_refinement",

	"worker_count":      "worker.workers",
	"worker_queue_size": "worker.queue_size",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to config paths.
// Anything else is ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

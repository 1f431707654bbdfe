package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("PLEX_SERVER_URL", "http://plex.local:32400")
	t.Setenv("PLEX_TOKEN", "plex-token")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.OpenRouter.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("OpenRouter.BaseURL = %q", cfg.OpenRouter.BaseURL)
	}
	if cfg.Pipeline.PlaylistLength != 20 {
		t.Errorf("Pipeline.PlaylistLength = %d, want 20", cfg.Pipeline.PlaylistLength)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("Pipeline.MaxAttempts = %d, want 3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.SearchTimeout != 5*time.Second {
		t.Errorf("Pipeline.SearchTimeout = %v, want 5s", cfg.Pipeline.SearchTimeout)
	}
	if cfg.Storage.HistoryLimit != 10 {
		t.Errorf("Storage.HistoryLimit = %d, want 10", cfg.Storage.HistoryLimit)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PLAYLIST_LENGTH", "25")
	t.Setenv("SEARCH_TIMEOUT", "3s")
	t.Setenv("TIME_FRAME", "month")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("STYLE_REFINEMENT", "false")
	t.Setenv("PLEX_MAX_RETRIES", "0")
	t.Setenv("PLEX_RETRY_BACKOFF", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenRouter.APIKey != "sk-test" {
		t.Errorf("OpenRouter.APIKey = %q", cfg.OpenRouter.APIKey)
	}
	if cfg.Plex.URL != "http://plex.local:32400" {
		t.Errorf("Plex.URL = %q", cfg.Plex.URL)
	}
	if cfg.Pipeline.PlaylistLength != 25 {
		t.Errorf("Pipeline.PlaylistLength = %d, want 25", cfg.Pipeline.PlaylistLength)
	}
	if cfg.Pipeline.SearchTimeout != 3*time.Second {
		t.Errorf("Pipeline.SearchTimeout = %v, want 3s", cfg.Pipeline.SearchTimeout)
	}
	if cfg.Plex.MaxRetries != 0 {
		t.Errorf("Plex.MaxRetries = %d, want 0", cfg.Plex.MaxRetries)
	}
	if cfg.Plex.RetryBackoff != 2*time.Second {
		t.Errorf("Plex.RetryBackoff = %v, want 2s", cfg.Plex.RetryBackoff)
	}
	if cfg.TimeFrame() != frequency.FrameMonth {
		t.Errorf("TimeFrame() = %q, want month", cfg.TimeFrame())
	}
	if cfg.Pipeline.StyleRefinement {
		t.Errorf("Pipeline.StyleRefinement should be false")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Mode() != domain.ModeTracks {
		t.Errorf("Mode() = %q, want tracks", cfg.Mode())
	}
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
pipeline:
  playlist_length: 30
  mode: artists
storage:
  path: /tmp/setlist-test.db
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Pipeline.PlaylistLength != 30 {
		t.Errorf("Pipeline.PlaylistLength = %d, want 30", cfg.Pipeline.PlaylistLength)
	}
	if cfg.Mode() != domain.ModeArtists {
		t.Errorf("Mode() = %q, want artists", cfg.Mode())
	}
	if cfg.Storage.Path != "/tmp/setlist-test.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, env should win over file", cfg.Logging.Level)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing api key",
			env:  map[string]string{"OPENROUTER_API_KEY": ""},
		},
		{
			name: "missing plex token",
			env:  map[string]string{"PLEX_TOKEN": ""},
		},
		{
			name: "bad plex url",
			env:  map[string]string{"PLEX_SERVER_URL": "not a url"},
		},
		{
			name: "playlist too long",
			env:  map[string]string{"PLAYLIST_LENGTH": "500"},
		},
		{
			name: "unknown storage driver",
			env:  map[string]string{"STORAGE_DRIVER": "postgres"},
		},
		{
			name: "unknown time frame",
			env:  map[string]string{"TIME_FRAME": "decade"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"OPENROUTER_API_KEY": "openrouter.api_key",
		"PLEX_SERVER_URL":    "plex.url",
		"STORAGE_DRIVER":     "storage.driver",
		"HTTP_ADDR":          "server.addr",
		"PLEX_RETRY_BACKOFF": "plex.retry_backoff",
		"HOME":               "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

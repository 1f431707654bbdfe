package main

import (
	"fmt"

	"github.com/ewilliams-labs/setlist/internal/adapters/openrouter"
	"github.com/ewilliams-labs/setlist/internal/adapters/plex"
	"github.com/ewilliams-labs/setlist/internal/adapters/rest"
	"github.com/ewilliams-labs/setlist/internal/adapters/sqlite"
	"github.com/ewilliams-labs/setlist/internal/config"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/frequency"
	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/worker"
)

// app holds the wired adapters shared by every command.
type app struct {
	cfg   *config.Config
	llm   *openrouter.Client
	plex  *plex.Client
	store *sqlite.Adapter
	pool  *worker.Pool
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LoggingSettings())
	return cfg, nil
}

func newGenerator(cfg *config.Config) (*openrouter.Client, error) {
	return openrouter.NewClient(openrouter.Config{
		APIKey:       cfg.OpenRouter.APIKey,
		BaseURL:      cfg.OpenRouter.BaseURL,
		DefaultModel: cfg.OpenRouter.DefaultModel,
		Referer:      cfg.OpenRouter.Referer,
		Title:        cfg.OpenRouter.Title,
		Timeout:      cfg.OpenRouter.Timeout,
	})
}

func newApp(cfg *config.Config) (*app, error) {
	llm, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	px, err := plex.NewClient(plex.Config{
		BaseURL:           cfg.Plex.URL,
		Token:             cfg.Plex.Token,
		UserID:            cfg.Plex.UserID,
		Timeout:           cfg.Plex.Timeout,
		RequestsPerSecond: cfg.Plex.RequestsPerSecond,
		Burst:             cfg.Plex.Burst,
		MaxRetries:        cfg.Plex.MaxRetries,
		RetryBackoff:      cfg.Plex.RetryBackoff,
		BreakerFailures:   cfg.Plex.BreakerFailures,
		BreakerTimeout:    cfg.Plex.BreakerTimeout,
	})
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		llm:   llm,
		plex:  px,
		store: store,
		pool:  worker.NewPool(store, cfg.Worker.Workers, cfg.Worker.QueueSize),
	}, nil
}

func openStore(cfg config.StorageConfig) (*sqlite.Adapter, error) {
	path := cfg.Path
	switch cfg.Driver {
	case "sqlite":
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown storage driver %q: %w", cfg.Driver, domain.ErrConfiguration)
	}
	store, err := sqlite.NewAdapter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	store.SetHistoryLimit(cfg.HistoryLimit)
	return store, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newPipeline builds the pipeline of one session, applying per-session
// overrides on top of the configured defaults.
func (a *app) newPipeline(sessionID string, opts rest.SessionOptions) (*pipeline.Pipeline, error) {
	settings := pipeline.Settings{
		SessionID:       sessionID,
		UserID:          a.cfg.Plex.UserID,
		PlaylistLength:  a.cfg.Pipeline.PlaylistLength,
		MaxAttempts:     a.cfg.Pipeline.MaxAttempts,
		Mode:            a.cfg.Mode(),
		TimeFrame:       a.cfg.TimeFrame(),
		BatchSize:       a.cfg.Pipeline.BatchSize,
		SearchTimeout:   a.cfg.Pipeline.SearchTimeout,
		LibraryScope:    a.cfg.Plex.LibraryScope,
		StyleRefinement: a.cfg.Pipeline.StyleRefinement,
	}
	if opts.UserID != "" {
		settings.UserID = opts.UserID
	}
	if opts.PlaylistLength > 0 {
		settings.PlaylistLength = opts.PlaylistLength
	}
	if opts.Mode != "" {
		settings.Mode = domain.ParseAnalysisMode(opts.Mode)
	}
	if opts.TimeFrame != "" {
		frame, err := frequency.ParseTimeFrame(opts.TimeFrame)
		if err != nil {
			return nil, err
		}
		settings.TimeFrame = frame
	}

	deps := pipeline.Dependencies{
		Generator:  a.llm,
		History:    a.plex,
		Vocabulary: a.plex,
		Catalog:    a.plex,
		Committer:  a.plex,
		Drafts:     a.store,
		OnCommit:   a.pool.OnCommit,
	}
	return pipeline.New(deps, settings), nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/setlist/internal/adapters/rest"
	"github.com/ewilliams-labs/setlist/internal/logging"
	"github.com/ewilliams-labs/setlist/internal/supervisor"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	sessions := rest.NewSessions(a.newPipeline, a.store, a.cfg.Server.SessionTTL)
	handler := rest.NewHandler(rest.Dependencies{
		Sessions: sessions,
		Models:   a.llm,
		History:  a.store,
		Ping:     a.store.Ping,
	}, rest.Options{
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimitReqs:   a.cfg.Server.RateLimitReqs,
		RateLimitWindow: a.cfg.Server.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
	tree.AddWorkerService(a.pool)
	tree.AddWorkerService(sessions)
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, a.cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", a.cfg.Server.Addr).
		Str("storage", a.cfg.Storage.Driver).
		Str("default_model", a.llm.DefaultModelID()).
		Msg("setlist API starting")

	err := tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}
	logging.Info().Int("pending_history_jobs", a.pool.Pending()).Msg("setlist API stopped")
	return nil
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jidhr/internal/server"
)

// serveCmd runs the HTTP surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction pipeline over HTTP",
	Long: `Starts the HTTP server exposing single-word extraction, batch job
submission and polling, the resolution and indexing passes, and read access
to roots, tokens, and statistics. Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if p.offline != nil && p.cfg.Offline.Watch {
			go func() {
				if err := p.offline.Watch(ctx); err != nil {
					logger.Warn("offline snapshot watch stopped", zap.Error(err))
				}
			}()
		}

		srv := server.New(server.Options{
			Addr:            p.cfg.Server.Addr,
			ReadTimeout:     p.cfg.GetReadTimeout(),
			WriteTimeout:    p.cfg.GetWriteTimeout(),
			ShutdownTimeout: p.cfg.GetShutdownTimeout(),
		}, p.orch, p.jobs, p.resolver, p.indexer, p.store, logger)

		return srv.ListenAndServe(ctx)
	},
}

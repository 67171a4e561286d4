// Package server exposes the extraction pipeline over a thin HTTP surface:
// request and response mapping only, no pipeline logic.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"jidhr/internal/extract"
	"jidhr/internal/index"
	"jidhr/internal/resolve"
	"jidhr/internal/store"
)

// Options tunes the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	opts Options
	log  *zap.Logger

	orch     *extract.Orchestrator
	jobs     *extract.JobManager
	resolver *resolve.Resolver
	indexer  *index.Indexer
	store    *store.Store

	http *http.Server
}

// New creates a server over the given pipeline components.
func New(opts Options, orch *extract.Orchestrator, jobs *extract.JobManager,
	resolver *resolve.Resolver, indexer *index.Indexer, st *store.Store, log *zap.Logger) *Server {
	s := &Server{
		opts:     opts,
		log:      log,
		orch:     orch,
		jobs:     jobs,
		resolver: resolver,
		indexer:  indexer,
		store:    st,
	}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers through httptest without binding a port.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Post("/extract", s.handleExtract)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmitJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Delete("/{id}", s.handleCancelJob)
	})

	r.Post("/passes/resolve", s.handleResolvePass)
	r.Post("/passes/index", s.handleIndexPass)

	r.Get("/roots/{root}", s.handleGetRoot)
	r.Get("/tokens/{sura}/{aya}/{position}", s.handleGetToken)
	r.Get("/words/{word}", s.handleFindWord)

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.opts.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Package server exposes the pipeline over a JSON HTTP API, with a
// Prometheus metrics endpoint and a websocket feed for progress events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"labelfix/internal/pipeline"
	"labelfix/internal/store"
)

type Server struct {
	engine *pipeline.Engine
	store  *store.Store
	hub    *progressHub
	http   *http.Server
	log    zerolog.Logger
}

func New(engine *pipeline.Engine, st *store.Store, port int) *Server {
	s := &Server{
		engine: engine,
		store:  st,
		hub:    newProgressHub(),
		log:    log.With().Str("component", "server").Logger(),
	}
	engine.SetProgress(func(stage string, pct float64, message string) {
		s.hub.Broadcast(ProgressEvent{Stage: stage, Pct: pct, Message: message})
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // detection and retrain runs respond synchronously
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws/progress", s.hub.handleWS)

	mux.HandleFunc("POST /api/datasets", s.handleImportDataset)
	mux.HandleFunc("GET /api/datasets", s.handleListDatasets)
	mux.HandleFunc("GET /api/datasets/{id}", s.handleGetDataset)
	mux.HandleFunc("POST /api/datasets/{id}/baseline", s.handleTrainBaseline)
	mux.HandleFunc("POST /api/datasets/{id}/detect", s.handleRunDetection)
	mux.HandleFunc("GET /api/datasets/{id}/detections", s.handleListDetections)
	mux.HandleFunc("POST /api/datasets/{id}/suggestions", s.handleGenerateSuggestions)
	mux.HandleFunc("GET /api/datasets/{id}/suggestions", s.handleListSuggestions)
	mux.HandleFunc("POST /api/suggestions/{id}/review", s.handleReviewSuggestion)
	mux.HandleFunc("POST /api/datasets/{id}/corrections", s.handleApplyCorrections)
	mux.HandleFunc("POST /api/datasets/{id}/retrain", s.handleRetrain)
	mux.HandleFunc("GET /api/datasets/{id}/models", s.handleCompareModels)
	mux.HandleFunc("GET /api/datasets/{id}/stats", s.handleStats)
	mux.HandleFunc("POST /api/datasets/{id}/export", s.handleExport)

	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.closeAll()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

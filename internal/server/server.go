// Package server exposes the aircraft table over HTTP and streams updates to
// websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/tracker"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP listener
const ShutdownTimeout = 5 * time.Second

// StatsFunc returns the value served on /stats
type StatsFunc func() any

// AircraftList is the /aircraft response
type AircraftList struct {
	Now      float64            `json:"now"`
	Messages uint64             `json:"messages"`
	Aircraft []tracker.Snapshot `json:"aircraft"`
}

// Server serves the aircraft table
type Server struct {
	router chi.Router
	agg    *tracker.Aggregator
	hub    *Hub
	stats  StatsFunc
	logger *logrus.Logger

	// Now stamps the aircraft list. Defaults to time.Now.
	Now func() time.Time
}

// New builds the router. hub and stats may be nil.
func New(agg *tracker.Aggregator, hub *Hub, stats StatsFunc, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		agg:    agg,
		hub:    hub,
		stats:  stats,
		logger: logger,
		Now:    time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/aircraft", s.handleAircraftList)
	r.Get("/aircraft/{icao}", s.handleAircraft)
	r.Get("/stats", s.handleStats)
	if hub != nil {
		r.Get("/ws", hub.HandleConnection)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAircraftList(w http.ResponseWriter, r *http.Request) {
	now := s.Now()
	writeJSON(w, http.StatusOK, AircraftList{
		Now:      float64(now.UnixMilli()) / 1000,
		Messages: s.agg.Messages(),
		Aircraft: s.agg.Snapshots(),
	})
}

func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	icao, err := adsb.ParseICAO(chi.URLParam(r, "icao"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, ok := s.agg.Get(icao)
	if !ok {
		writeError(w, http.StatusNotFound, "aircraft not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats != nil {
		writeJSON(w, http.StatusOK, s.stats())
		return
	}

	stats := map[string]any{
		"aircraft": s.agg.Len(),
		"messages": s.agg.Messages(),
		"dropped":  s.agg.Dropped(),
	}
	if s.hub != nil {
		stats["ws_clients"] = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the operator HTTP surface: health, status,
// recent logs, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/events"
	"github.com/huginmedia/skald/internal/logbuffer"
	"github.com/huginmedia/skald/internal/playlist"
	"github.com/huginmedia/skald/internal/telemetry"
	"github.com/huginmedia/skald/internal/version"
)

// Deps are the read-only views the server renders.
type Deps struct {
	NowPlaying  func() (playlist.Entry, bool)
	SinkRunning func() bool
	SinkAge     func() time.Duration
	Votes       func() int
	Bus         *events.Bus
	LogBuffer   *logbuffer.Buffer
	Metrics     *telemetry.Metrics
}

// Server serves the operator endpoints.
type Server struct {
	cfg        *config.Config
	deps       Deps
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	tracker    *eventTracker
	startedAt  time.Time
}

// New constructs the server and wires routes.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With().Str("component", "server").Logger(),
		router:    router,
		tracker:   newEventTracker(deps.Bus),
		startedAt: time.Now(),
	}

	router.Get("/healthz", srv.handleHealthz)
	router.Get("/status", srv.handleStatus)
	router.Get("/logs", srv.handleLogs)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	trackerCtx, stopTracker := context.WithCancel(ctx)
	defer stopTracker()
	go s.tracker.run(trackerCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

type statusResponse struct {
	Version     string         `json:"version"`
	Environment string         `json:"environment"`
	Uptime      string         `json:"uptime"`
	NowPlaying  *nowPlayingDTO `json:"now_playing,omitempty"`
	Sink        sinkDTO        `json:"sink"`
	SkipVotes   int            `json:"skip_votes"`
	Recent      []trackedEvent `json:"recent_events"`
}

type nowPlayingDTO struct {
	ClipID      int64  `json:"clip_id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date,omitempty"`
	Link        string `json:"link,omitempty"`
}

type sinkDTO struct {
	Running    bool   `json:"running"`
	SessionAge string `json:"session_age"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:     version.Version,
		Environment: s.cfg.Environment,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Recent:      s.tracker.recent(),
	}

	if s.deps.NowPlaying != nil {
		if entry, ok := s.deps.NowPlaying(); ok {
			resp.NowPlaying = &nowPlayingDTO{
				ClipID:      entry.ID,
				Title:       entry.DisplayTitle(),
				ReleaseDate: entry.ReleaseDate,
				Link:        entry.Link,
			}
		}
	}
	if s.deps.SinkRunning != nil {
		resp.Sink.Running = s.deps.SinkRunning()
	}
	if s.deps.SinkAge != nil {
		resp.Sink.SessionAge = s.deps.SinkAge().Round(time.Second).String()
	}
	if s.deps.Votes != nil {
		resp.SkipVotes = s.deps.Votes()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.LogBuffer == nil {
		writeJSON(w, http.StatusOK, []logbuffer.Entry{})
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		Search:     r.URL.Query().Get("q"),
		Limit:      100,
		Descending: true,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			params.Limit = n
		}
	}

	entries := s.deps.LogBuffer.Query(params)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

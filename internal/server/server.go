/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-subtitles/internal/broadcast"
	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/monitor"
	"github.com/loqalabs/loqa-subtitles/internal/pipeline"
	"github.com/loqalabs/loqa-subtitles/internal/speech"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// SessionInfo exposes the running session's state
type SessionInfo interface {
	StreamID() string
	Stats() pipeline.Stats
}

// TranslationInfo exposes translation counters
type TranslationInfo interface {
	Stats() map[string]int64
	CacheStats() (hits, misses int64)
}

// SpeechInfo exposes speech worker counters
type SpeechInfo interface {
	Stats() speech.Stats
}

// PerformanceInfo exposes subtitle latency metrics
type PerformanceInfo interface {
	Snapshot() monitor.LatencySnapshot
}

// ResourceInfo exposes process resource health
type ResourceInfo interface {
	IsHealthy() bool
	HealthStatus() map[string]interface{}
}

// SubtitleHistory returns recent subtitles, oldest first
type SubtitleHistory interface {
	Recent(ctx context.Context, limit int) ([]*events.Subtitle, error)
}

// HistoryFunc adapts a function to SubtitleHistory
type HistoryFunc func(ctx context.Context, limit int) ([]*events.Subtitle, error)

// Recent calls f
func (f HistoryFunc) Recent(ctx context.Context, limit int) ([]*events.Subtitle, error) {
	return f(ctx, limit)
}

// Deps are the components the server reports on. Speech, Performance and
// Resources may be nil.
type Deps struct {
	Hub         *broadcast.Hub
	Session     SessionInfo
	Translation TranslationInfo
	Speech      SpeechInfo
	History     SubtitleHistory
	Performance PerformanceInfo
	Resources   ResourceInfo
}

// Server serves the websocket subtitle feed and the status API
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	router   chi.Router
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a server
func New(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	s.server = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		// websocket writes carry their own deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleWebSocket)
	s.router.Get("/ws", s.handleWebSocket)
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/subtitles", s.handleSubtitles)
	})

	logging.Sugar.Debugw("🌐 HTTP routes configured",
		"websocket_endpoint", "/ws",
		"stats_endpoint", "/api/stats",
		"subtitles_endpoint", "/api/subtitles")
}

// Start serves until Stop is called
func (s *Server) Start() error {
	logging.Sugar.Infow("🚀 Subtitle server starting",
		"addr", s.server.Addr,
		"subtitle_format", s.cfg.SubtitleFormat)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop disconnects subscribers and shuts the HTTP server down
func (s *Server) Stop() error {
	logging.Sugar.Infow("🛑 Shutting down subtitle server")

	if s.deps.Hub != nil {
		s.deps.Hub.CloseAll()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// handleWebSocket subscribes the caller to the subtitle feed. Messages from
// the client are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("loqa-subtitles: connect with a websocket client to receive subtitles\n"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logging.Sugar.Debugw("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := broadcast.NewWSClient(conn, s.cfg.ClientQueueSize)
	if err := s.deps.Hub.Register(client); err != nil {
		logging.Sugar.Warnw("Rejecting subtitle client", "remote_addr", r.RemoteAddr, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.deps.Hub.Unregister(client.ID())

	logging.Sugar.Infow("👋 Subtitle client connected", "client_id", client.ID(), "remote_addr", r.RemoteAddr)
	client.Run()
	logging.Sugar.Infow("Subtitle client disconnected", "client_id", client.ID())
}

// handleHealth reports liveness and the pipeline state
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Session.Stats()

	status := "ok"
	if stats.State == pipeline.StateBackoff || stats.State == pipeline.StateFailed {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"stream_id": s.deps.Session.StreamID(),
		"pipeline":  stats.State,
		"clients":   s.deps.Hub.Count(),
	}
	if s.deps.Resources != nil {
		if !s.deps.Resources.IsHealthy() {
			health["status"] = "degraded"
		}
		health["resources"] = s.deps.Resources.HealthStatus()
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStats returns the pipeline, translation and delivery counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hits, misses := s.deps.Translation.CacheStats()

	stats := map[string]interface{}{
		"stream_id": s.deps.Session.StreamID(),
		"pipeline":  s.deps.Session.Stats(),
		"providers": s.deps.Translation.Stats(),
		"cache": map[string]int64{
			"hits":   hits,
			"misses": misses,
		},
		"broadcast": s.deps.Hub.Stats(),
	}
	if s.deps.Speech != nil {
		stats["speech"] = s.deps.Speech.Stats()
	}
	if s.deps.Performance != nil {
		stats["performance"] = s.deps.Performance.Snapshot()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSubtitles returns the most recent subtitles
func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	subtitles, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		logging.LogError(err, "Failed to load subtitle history")
		http.Error(w, "failed to load subtitles", http.StatusInternalServerError)
		return
	}
	if subtitles == nil {
		subtitles = []*events.Subtitle{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(subtitles),
		"subtitles": subtitles,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Sugar.Errorw("Failed to write JSON response", "error", err)
	}
}

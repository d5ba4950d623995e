// Package web serves the read-only HTTP API and the live dashboard.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/events"
	"github.com/vadiminshakov/tradeit/internal/storage/state"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

type stateReader interface {
	LoadStatus(defaultMode domain.Mode) domain.StatusSnapshot
	ComputeEquityMetrics() (state.EquityMetrics, error)
	LoadTrades(limit int) ([]state.TradeLine, error)
}

// Server exposes the API endpoints, the HTML dashboard and the status streams.
type Server struct {
	addr        string
	store       stateReader
	settings    map[string]any
	mode        domain.Mode
	broadcaster *events.StatusBroadcaster
	prom        http.Handler
	logger      *zap.Logger
}

// NewServer creates a server. settings is served verbatim at /config and must
// already be redacted. prom may be nil to disable /metrics/prom.
func NewServer(addr string, store stateReader, settings map[string]any, mode domain.Mode,
	broadcaster *events.StatusBroadcaster, prom http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broadcaster == nil {
		broadcaster = events.NewStatusBroadcaster(0)
	}
	return &Server{
		addr:        addr,
		store:       store,
		settings:    settings,
		mode:        mode,
		broadcaster: broadcaster,
		prom:        prom,
		logger:      logger.With(zap.String("component", "api")),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /trades", s.handleTrades)
	mux.HandleFunc("GET /status/stream", s.handleStatusStream)
	mux.HandleFunc("GET /status/ws", s.handleStatusWS)
	if s.prom != nil {
		mux.Handle("GET /metrics/prom", s.prom)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "api server")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.LoadStatus(s.mode))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m, err := s.store.ComputeEquityMetrics()
	if err != nil {
		s.logger.Error("failed to compute equity metrics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"sharpe":       m.Sharpe,
		"max_drawdown": m.MaxDrawdown,
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.store.LoadTrades(limit)
	if err != nil {
		s.logger.Error("failed to load trades", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trades unavailable"})
		return
	}
	if trades == nil {
		trades = []state.TradeLine{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	send := func(e events.StatusEvent) bool {
		payload, err := json.Marshal(e)
		if err != nil {
			s.logger.Error("status stream marshal", zap.Error(err))
			return false
		}
		fmt.Fprintf(w, "event: status\n")
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return true
	}

	if last, ok := s.broadcaster.Last(); ok {
		send(last)
	} else {
		// open the stream so clients see the connection before the first tick
		fmt.Fprintf(w, ": connected\n\n")
		flusher.Flush()
	}

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-ch:
			if !ok || !send(e) {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

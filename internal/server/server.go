package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"
	"orderbook_go/internal/service"
	"orderbook_go/internal/ui"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the current book, health and metrics over HTTP.
type Server struct {
	addr    string
	pair    domain.Pair
	levels  int
	view    *service.BookView
	metrics *infra.Metrics
	logger  *slog.Logger
	srv     *http.Server
}

// New creates a server for the configured pair. levels is the default window.
func New(addr string, pair domain.Pair, levels int, view *service.BookView, metrics *infra.Metrics) *Server {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	s := &Server{
		addr:    addr,
		pair:    pair,
		levels:  levels,
		view:    view,
		metrics: metrics,
		logger:  slog.Default().With("module", "http_server"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", logging(s.logger, http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/v1/book", logging(s.logger, http.HandlerFunc(s.handleBook)))
	mux.Handle("GET /api/v1/books", logging(s.logger, http.HandlerFunc(s.handleBooks)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return cors(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := domain.StatusIdle
	if v, ok := s.view.Get(s.pair); ok {
		status = v.Status
	}
	code := http.StatusOK
	if status == domain.StatusError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  code,
		"health":  healthText(status),
		"session": status,
	})
}

func healthText(s domain.SessionStatus) string {
	switch s {
	case domain.StatusActive:
		return "healthy"
	case domain.StatusError:
		return "unhealthy"
	default:
		return "degraded"
	}
}

type bookResponse struct {
	Pair           string              `json:"pair"`
	Status         string              `json:"status"`
	Connected      bool                `json:"connected"`
	Error          string              `json:"error,omitempty"`
	Bids           []domain.DisplayRow `json:"bids"`
	Asks           []domain.DisplayRow `json:"asks"`
	LastUpdateTime time.Time           `json:"last_update_time"`
}

func toResponse(v domain.ViewState, levels int) bookResponse {
	bids := ui.Window(v.Book.Bids, levels)
	asks := ui.Window(v.Book.Asks, levels)
	if bids == nil {
		bids = []domain.DisplayRow{}
	}
	if asks == nil {
		asks = []domain.DisplayRow{}
	}
	return bookResponse{
		Pair:           v.Pair.String(),
		Status:         v.Status.String(),
		Connected:      v.Connected(),
		Error:          v.Error,
		Bids:           bids,
		Asks:           asks,
		LastUpdateTime: v.Book.LastUpdateTime,
	}
}

// GET /api/v1/book?base=STRK&quote=USDC&levels=10
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair := s.pair
	if base := q.Get("base"); base != "" {
		pair.Base = base
	}
	if quote := q.Get("quote"); quote != "" {
		pair.Quote = quote
	}

	levels := s.levels
	if raw := q.Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid levels %q", raw))
			return
		}
		levels = n
	}

	v, ok := s.view.Get(pair)
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("no book for %s", pair))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(v, levels))
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	all := s.view.All()
	out := make([]bookResponse, 0, len(all))
	for _, v := range all {
		out = append(out, toResponse(v, s.levels))
	}
	writeJSON(w, http.StatusOK, out)
}

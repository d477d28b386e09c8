// Package dashboard serves a small JSON API for monitoring the bot:
// live positions on both venues, the persisted funding signs, cycle
// statistics, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/stamford_arb/internal/storage"
	"github.com/eddiefleurent/stamford_arb/internal/venue"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	backpack  venue.Adapter
	hyper     venue.Adapter
	signs     storage.Interface
	status    StatusFunc
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// Status is a point-in-time view of the trading loop.
type Status struct {
	Mode            string    `json:"mode"`
	StartedAt       time.Time `json:"started_at"`
	CyclesCompleted int64     `json:"cycles_completed"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastError       string    `json:"last_error,omitempty"`
	PairsOpened     int64     `json:"pairs_opened"`
	PairsClosed     int64     `json:"pairs_closed"`
	Symbols         []string  `json:"symbols"`
}

// StatusFunc supplies the current Status; the trading loop owns it.
type StatusFunc func() Status

// PositionView is one venue position as reported over the API.
type PositionView struct {
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	Notional   float64 `json:"notional"`
}

func NewServer(cfg Config, backpack, hyper venue.Adapter, signs storage.Interface, status StatusFunc, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		backpack:  backpack,
		hyper:     hyper,
		signs:     signs,
		status:    status,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/signs", s.handleGetSigns)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	views := make([]PositionView, 0, 4)

	for _, adapter := range []venue.Adapter{s.backpack, s.hyper} {
		positions, err := adapter.Positions(r.Context())
		if err != nil {
			s.logger.WithError(err).Errorf("Failed to fetch %s positions", adapter.Name())
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
		for _, pos := range positions {
			views = append(views, positionView(adapter.Name(), pos))
		}
	}

	s.writeJSON(w, views)
}

func (s *Server) handleGetSigns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.signs.All())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func positionView(venueName string, pos venue.Position) PositionView {
	side := "long"
	if pos.Size < 0 {
		side = "short"
	}
	return PositionView{
		Venue:      venueName,
		Symbol:     pos.Symbol,
		Side:       side,
		Size:       math.Abs(pos.Size),
		EntryPrice: pos.EntryPrice,
		Notional:   math.Abs(pos.Size) * pos.EntryPrice,
	}
}

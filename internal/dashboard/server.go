// Package dashboard serves the control console: read-only views over the
// position book and manual overrides for the control loop.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

// Engine is the subset of strategy operations exposed as console actions.
type Engine interface {
	CloseAllPositions(ctx context.Context) (int, error)
	ClosePositionsAtExpiry(ctx context.Context) (int, error)
	RollHedgePositions(ctx context.Context) (int, error)
}

// Book is the read side of the position ledger.
type Book interface {
	Positions() []models.Position
	Orders() []models.Order
	TotalPnL() float64
	ActiveCount() int
	SyncPositions(ctx context.Context) error
	SyncOrders(ctx context.Context) error
	RefreshPnL(ctx context.Context) error
}

// Controller pauses and resumes the trading loop and forces reconnects.
type Controller interface {
	Pause()
	Resume()
	Running() bool
	Reconnect(ctx context.Context) error
	Connectivity() Connectivity
}

// Connectivity is the gateway connection state shown in the status payload.
type Connectivity struct {
	Connected         bool      `json:"connected"`
	LastProbeAt       time.Time `json:"lastProbeAt"`
	LastProbeError    string    `json:"lastProbeError,omitempty"`
	LastReconnectAt   time.Time `json:"lastReconnectAt"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

type Config struct {
	ListenAddr string
	AuthToken  string
}

type Server struct {
	router     *chi.Mux
	server     *http.Server
	engine     Engine
	book       Book
	controller Controller
	logger     *logrus.Logger
	listenAddr string
	authToken  string
	startedAt  time.Time
}

// StatusView is the /api/status payload.
type StatusView struct {
	Running         bool         `json:"running"`
	ActivePositions int          `json:"activePositions"`
	TotalPnL        float64      `json:"totalPnl"`
	Connection      Connectivity `json:"connection"`
	StartedAt       time.Time    `json:"startedAt"`
	UptimeSeconds   int64        `json:"uptimeSeconds"`
}

// ActionResult reports the outcome of a console action.
type ActionResult struct {
	Action string `json:"action"`
	Count  int    `json:"count,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewServer(cfg Config, engine Engine, book Book, controller Controller, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:     chi.NewRouter(),
		engine:     engine,
		book:       book,
		controller: controller,
		logger:     logger,
		listenAddr: cfg.ListenAddr,
		authToken:  cfg.AuthToken,
		startedAt:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/orders", s.handleOrders)
	s.router.Get("/api/pnl", s.handlePnL)

	s.router.Post("/api/control/start", s.handleStart)
	s.router.Post("/api/control/stop", s.handleStop)
	s.router.Post("/api/control/close-all", s.actionHandler("close-all", s.engine.CloseAllPositions))
	s.router.Post("/api/control/close-expired", s.actionHandler("close-expired", s.engine.ClosePositionsAtExpiry))
	s.router.Post("/api/control/roll-hedges", s.actionHandler("roll-hedges", s.engine.RollHedgePositions))
	s.router.Post("/api/control/reconnect", s.handleReconnect)
	s.router.Post("/api/control/refresh", s.handleRefresh)
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

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("control console listening on %s", s.listenAddr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusView{
		Running:         s.controller.Running(),
		ActivePositions: s.book.ActiveCount(),
		TotalPnL:        s.book.TotalPnL(),
		Connection:      s.controller.Connectivity(),
		StartedAt:       s.startedAt,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.book.Positions())
}

func (s *Server) handleOrders(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.book.Orders())
}

func (s *Server) handlePnL(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]float64{"totalPnl": s.book.TotalPnL()})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.controller.Resume()
	s.logger.Info("console: trading loop resumed")
	s.writeJSON(w, http.StatusOK, ActionResult{Action: "start"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.Pause()
	s.logger.Info("console: trading loop paused")
	s.writeJSON(w, http.StatusOK, ActionResult{Action: "stop"})
}

// actionHandler wraps an engine operation returning a count.
func (s *Server) actionHandler(name string, op func(context.Context) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := op(r.Context())
		if err != nil {
			s.logger.WithError(err).Errorf("console action %s failed", name)
			s.writeJSON(w, http.StatusInternalServerError, ActionResult{Action: name, Count: count, Error: err.Error()})
			return
		}
		s.logger.Infof("console action %s completed, count %d", name, count)
		s.writeJSON(w, http.StatusOK, ActionResult{Action: name, Count: count})
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reconnect(r.Context()); err != nil {
		s.logger.WithError(err).Error("console reconnect failed")
		s.writeJSON(w, http.StatusInternalServerError, ActionResult{Action: "reconnect", Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, ActionResult{Action: "reconnect"})
}

// handleRefresh resyncs positions, orders, and P&L from the gateway.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, step := range []func(context.Context) error{
		s.book.SyncPositions,
		s.book.SyncOrders,
		s.book.RefreshPnL,
	} {
		if err := step(ctx); err != nil {
			s.logger.WithError(err).Error("console refresh failed")
			s.writeJSON(w, http.StatusInternalServerError, ActionResult{Action: "refresh", Error: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, ActionResult{Action: "refresh"})
}

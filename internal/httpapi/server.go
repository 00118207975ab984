// Package httpapi exposes the read-only status/health HTTP surface
// described by SPEC_FULL §2.1: it never mutates trading state and exists
// purely as the ambient-stack status surface a deployable Go service
// carries, grounded on the teacher's chi-routed internal/server package.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/robinmaple/trading-automation-sub001/internal/activeorders"
	"github.com/robinmaple/trading-automation-sub001/internal/domain"
	"github.com/robinmaple/trading-automation-sub001/internal/monitoring"
	"github.com/robinmaple/trading-automation-sub001/internal/reconciliation"
	"github.com/robinmaple/trading-automation-sub001/internal/risk"
)

// Dependencies are the read-only service handles the status surface reports
// on. All are optional: a nil dependency degrades that section of the
// status payload rather than failing the request.
type Dependencies struct {
	Active          *activeorders.Store
	RiskService     *risk.Service
	Reconciliation  *reconciliation.Engine
	Monitoring      *monitoring.Service
	AccountNumber   string
}

// Server is the thin chi-routed status/health HTTP surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	deps   Dependencies
	log    zerolog.Logger
}

// New constructs the status server bound to addr, wired to deps.
func New(addr string, deps Dependencies, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    log.With().Str("component", "httpapi").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/orders/active", s.handleActiveOrders)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("status http server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	WorkingOrderCount      int       `json:"working_order_count"`
	Halted                 bool      `json:"halted"`
	HaltReason             string    `json:"halt_reason,omitempty"`
	ReconciliationHealthy  bool      `json:"reconciliation_healthy"`
	MonitoringErrorCount   int       `json:"monitoring_error_count"`
	LastTick               time.Time `json:"last_tick,omitempty"`
	HostCPUPercent         float64   `json:"host_cpu_percent,omitempty"`
	HostMemoryPercent      float64   `json:"host_memory_percent,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{ReconciliationHealthy: true}

	if s.deps.Active != nil {
		resp.WorkingOrderCount = s.deps.Active.CountWorking()
	}
	if s.deps.RiskService != nil {
		halt := s.deps.RiskService.CachedHaltState()
		resp.Halted = halt.Halted
		resp.HaltReason = halt.Reason
	}
	if s.deps.Reconciliation != nil {
		resp.ReconciliationHealthy = s.deps.Reconciliation.Healthy()
	}
	if s.deps.Monitoring != nil {
		resp.MonitoringErrorCount = s.deps.Monitoring.ErrorCount()
		resp.LastTick = s.deps.Monitoring.LastTick()
		health := s.deps.Monitoring.LastHealth()
		resp.HostCPUPercent = health.CPUPercent
		resp.HostMemoryPercent = health.MemoryPercent
	}

	writeJSON(w, http.StatusOK, resp)
}

type activeOrderSummary struct {
	Symbol            string  `json:"symbol"`
	Status            string  `json:"status"`
	CapitalCommitment string  `json:"capital_commitment"`
	FillProbability   float64 `json:"fill_probability"`
	IsLiveTrading     bool    `json:"is_live_trading"`
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Active == nil {
		writeJSON(w, http.StatusOK, []activeOrderSummary{})
		return
	}
	var orders []*domain.ActiveOrder = s.deps.Active.All()
	out := make([]activeOrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, activeOrderSummary{
			Symbol:            o.Symbol(),
			Status:            string(o.Status),
			CapitalCommitment: o.CapitalCommitment.String(),
			FillProbability:   o.FillProbability,
			IsLiveTrading:     o.IsLiveTrading,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

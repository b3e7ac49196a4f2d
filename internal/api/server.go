// Package api is the HTTP surface of the swap service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/monitor"
	"aptos-vault-swap/internal/observability"
	"aptos-vault-swap/internal/orchestrator"
)

// Swapper is the orchestrator surface the API drives.
type Swapper interface {
	Run(ctx context.Context, amount uint64, watch bool) *orchestrator.Report
	Quote(ctx context.Context, amount uint64) (domain.Quote, *domain.Failure)
	Watch(ctx context.Context, handle string) monitor.Report
	Status(ctx context.Context) orchestrator.Status
}

// HealthChecker reports ledger health.
type HealthChecker interface {
	IsHealthy(ctx context.Context) (bool, error)
}

// Info is the static configuration exposed on /api/info.
type Info struct {
	Account        string  `json:"account"`
	VaultAddress   string  `json:"vault_address"`
	RouterAddress  string  `json:"router_address"`
	SourceAsset    string  `json:"source_asset"`
	TargetAsset    string  `json:"target_asset"`
	MaxSlippage    float64 `json:"max_slippage"`
	MinAmount      uint64  `json:"min_amount"`
	MaxAmount      uint64  `json:"max_amount"`
	CooldownPeriod int64   `json:"cooldown_period"`
	MaxRetries     int     `json:"max_retries"`
}

// Config wires the server.
type Config struct {
	Swapper Swapper
	Health  HealthChecker
	Info    Info
	Events  http.Handler // websocket endpoint; omitted when nil
	Limiter *RateLimiter // applied to /api; omitted when nil
	Logger  *slog.Logger

	// TrustProxy takes the client address from X-Real-IP / X-Forwarded-For.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool
}

// Server routes HTTP requests to the orchestrator. Only one swap runs at a
// time: the orchestrator's security state has a single writer.
type Server struct {
	swapper Swapper
	health  HealthChecker
	info    Info
	events  http.Handler
	limiter *RateLimiter
	logger  *slog.Logger
	proxied bool

	swapMu sync.Mutex
}

// NewServer creates a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Swapper == nil {
		return nil, errors.New("swapper required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		swapper: cfg.Swapper,
		health:  cfg.Health,
		info:    cfg.Info,
		events:  cfg.Events,
		limiter: cfg.Limiter,
		logger:  cfg.Logger.With("component", "api"),
		proxied: cfg.TrustProxy,
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.proxied {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler())
	if s.events != nil {
		r.Handle("/ws", s.events)
	}

	r.Route("/api", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Post("/swap", s.handleSwap)
		api.Get("/quote", s.handleQuote)
		api.Get("/monitor/{handle}", s.handleMonitor)
		api.Get("/status", s.handleStatus)
		api.Get("/info", s.handleInfo)
	})
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type swapRequest struct {
	Amount  uint64 `json:"amount"`
	Monitor bool   `json:"monitor"`
}

type swapResponse struct {
	domain.AttemptResponse
	RunID    string                   `json:"run_id"`
	Attempts []domain.AttemptResponse `json:"attempts"`
	Monitor  *domain.MonitorResponse  `json:"monitor,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if !s.swapMu.TryLock() {
		writeError(w, http.StatusConflict, "a swap is already in progress")
		return
	}
	defer s.swapMu.Unlock()

	// A submitted swap must finish its bookkeeping even if the client leaves.
	report := s.swapper.Run(context.WithoutCancel(r.Context()), req.Amount, req.Monitor)

	resp := swapResponse{
		AttemptResponse: report.Response(),
		RunID:           report.RunID,
		Attempts:        make([]domain.AttemptResponse, 0, len(report.Attempts)),
	}
	for _, a := range report.Attempts {
		resp.Attempts = append(resp.Attempts, domain.NewAttemptResponse(a.Outcome))
	}
	if report.Monitor != nil {
		m := domain.NewMonitorResponse(report.Monitor.Handle, report.Monitor.Outcome)
		resp.Monitor = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

type quoteResponse struct {
	Amount         uint64  `json:"amount"`
	ExpectedOutput uint64  `json:"expected_output"`
	MinOutput      uint64  `json:"min_output"`
	PriceImpact    float64 `json:"price_impact"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	q, f := s.swapper.Quote(r.Context(), amount)
	if f != nil {
		writeJSON(w, http.StatusUnprocessableEntity, domain.NewAttemptResponse(f))
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Amount:         amount,
		ExpectedOutput: q.ExpectedOutput,
		MinOutput:      q.MinOutput,
		PriceImpact:    q.PriceImpact,
	})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "handle required")
		return
	}
	report := s.swapper.Watch(r.Context(), handle)
	writeJSON(w, http.StatusOK, domain.NewMonitorResponse(handle, report.Outcome))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.swapper.Status(r.Context()))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

type healthResponse struct {
	Status        string `json:"status"`
	LedgerHealthy bool   `json:"ledger_healthy"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", LedgerHealthy: true}
	if s.health != nil {
		ok, err := s.health.IsHealthy(r.Context())
		resp.LedgerHealthy = ok && err == nil
		if err != nil {
			resp.Error = err.Error()
		}
	}
	status := http.StatusOK
	if !resp.LedgerHealthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

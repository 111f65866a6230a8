package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "spendsense/internal/log"
	"spendsense/internal/middleware/ratelimit"
	"spendsense/internal/middleware/security"
	"spendsense/internal/middleware/trace"
	"spendsense/internal/services"
)

// Options configures NewServer. The zero value is usable.
type Options struct {
	RateLimit ratelimit.Config
	Logger    *applog.Logger
	// Registry receives the HTTP metrics and is served on /metrics. Nil
	// leaves the metrics unregistered and serves the default registry.
	Registry *prometheus.Registry
	// Ready reports whether dependencies can serve traffic. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	svc       *services.LedgerService
	validate  *validator.Validate
	limiter   *ratelimit.Limiter
	ready     func(ctx context.Context) error
	apiErrors *prometheus.CounterVec

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	s := &Server{
		svc:      svc,
		validate: validate,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		ready:    opts.Ready,
		apiErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendsense_api_errors_total",
				Help: "API errors by code and route",
			},
			[]string{"code", "route"},
		),
	}

	mux := http.NewServeMux()
	s.routes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	detector := security.NewDetector(reg)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(trace.Options{
		ExtractIP: detector.ExtractClientIP,
		Route: func(r *http.Request) string {
			_, pattern := mux.Handler(r)
			return pattern
		},
		Logger:     opts.Logger,
		Registerer: reg,
	})

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = tracer.Middleware(handler)
	handler = applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP))(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/groups", s.handleListGroups)
	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /api/groups/{groupID}", s.handleGetGroup)
	mux.HandleFunc("DELETE /api/groups/{groupID}", s.handleDeleteGroup)

	mux.HandleFunc("GET /api/active-group", s.handleGetActiveGroup)
	mux.HandleFunc("PUT /api/active-group", s.handleSetActiveGroup)
	mux.HandleFunc("DELETE /api/active-group", s.handleClearActiveGroup)

	mux.HandleFunc("POST /api/groups/{groupID}/members", s.handleAddMember)
	mux.HandleFunc("PATCH /api/groups/{groupID}/members/{memberID}", s.handleRenameMember)
	mux.HandleFunc("DELETE /api/groups/{groupID}/members/{memberID}", s.handleRemoveMember)

	mux.HandleFunc("GET /api/groups/{groupID}/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/groups/{groupID}/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/groups/{groupID}/expenses/{expenseID}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/groups/{groupID}/expenses/{expenseID}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/groups/{groupID}/expenses/{expenseID}/toggle-settled", s.handleToggleSettled)

	mux.HandleFunc("GET /api/groups/{groupID}/balances", s.handleBalances)
	mux.HandleFunc("GET /api/groups/{groupID}/categories", s.handleGroupCategories)
	mux.HandleFunc("POST /api/groups/{groupID}/settlements", s.handleRecordSettlement)
	mux.HandleFunc("GET /api/groups/{groupID}/settlements/suggest", s.handleSuggestSettlement)

	mux.HandleFunc("GET /api/personal-expenses", s.handleListPersonal)
	mux.HandleFunc("POST /api/personal-expenses", s.handleAddPersonal)
	mux.HandleFunc("PUT /api/personal-expenses/{expenseID}", s.handleUpdatePersonal)
	mux.HandleFunc("DELETE /api/personal-expenses/{expenseID}", s.handleDeletePersonal)

	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", s.handleSaveProfile)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/trend", s.handleTrend)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/reset", s.handleReset)
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded", "method", r.Method, "path", r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later").Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

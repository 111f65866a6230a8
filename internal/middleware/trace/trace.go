package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applog "spendsense/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader is accepted from callers and echoed on every response.
	RequestIDHeader = "X-Request-ID"
)

// Options wires the middleware to the server.
type Options struct {
	// ExtractIP resolves the client address for logs.
	ExtractIP func(*http.Request) string
	// Route names the pattern a request will be served by, for metric labels.
	Route  func(*http.Request) string
	Logger *applog.Logger
	// Registerer receives the latency histogram. Nil leaves it unregistered.
	Registerer prometheus.Registerer
}

// Middleware handles request tracing, logging and latency metrics
type Middleware struct {
	extractIP func(*http.Request) string
	route     func(*http.Request) string
	logger    *applog.StructuredLogger
	duration  *prometheus.HistogramVec
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(opts Options) *Middleware {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	return &Middleware{
		extractIP: opts.ExtractIP,
		route:     opts.Route,
		logger:    applog.NewStructuredLogger(opts.Logger),
		duration: promauto.With(opts.Registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spendsense_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		route := ""
		if m.route != nil {
			route = m.route(r)
		}
		if route == "" {
			route = "unmatched"
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.duration.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Observe(duration.Seconds())
		m.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

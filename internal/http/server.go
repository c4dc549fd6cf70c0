package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

// Ledger is the store the handlers drive.
type Ledger interface {
	Create(ctx context.Context, description, amount string, kind core.Kind) (core.Entry, error)
	Update(ctx context.Context, id, description, amount string, kind core.Kind) (core.Entry, error)
	Delete(ctx context.Context, id string) error
	Get(id string) (core.Entry, error)
	Snapshot(f core.Filter) ledger.Snapshot
	Totals() core.Totals
	Len() int
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	store  Ledger
	logger *applog.Logger

	readiness map[string]ReadinessCheck

	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// appMetrics counts applied mutations and storage warnings.
type appMetrics struct {
	uptime              time.Time
	created             int64
	updated             int64
	deleted             int64
	persistenceWarnings int64
}

func (m *appMetrics) record(op core.ChangeOp) {
	switch op {
	case core.OpCreate:
		atomic.AddInt64(&m.created, 1)
	case core.OpUpdate:
		atomic.AddInt64(&m.updated, 1)
	case core.OpDelete:
		atomic.AddInt64(&m.deleted, 1)
	}
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *applog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

// WithRateLimit replaces the default mutation rate limit.
func WithRateLimit(config ratelimit.Config) Option {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.rateLimiter = ratelimit.NewLimiter(config)
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Ledger, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64KB
		},
		store:      store,
		readiness:  make(map[string]ReadinessCheck),
		appMetrics: &appMetrics{uptime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.securityDetector = security.NewDetector(s.logger)
	s.traceMiddleware = trace.NewMiddleware(s.logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /entries", s.handleListEntries)
	mux.HandleFunc("POST /entries", s.handleCreateEntry)
	mux.HandleFunc("GET /entries/{id}", s.handleGetEntry)
	mux.HandleFunc("PUT /entries/{id}", s.handleUpdateEntry)
	mux.HandleFunc("DELETE /entries/{id}", s.handleDeleteEntry)
	mux.HandleFunc("GET /totals", s.handleTotals)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError("Too many changes, please try again later").Write(w)
	})(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

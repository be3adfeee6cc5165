package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/admin"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/records"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Records    *records.Service
	Admin      *admin.Service
	Resolver   *auth.Resolver
	Authorizer auth.Authorizer
	Store      Pinger
	Logger     *log.Logger

	// CacheStats, when set, is reported on the metrics endpoint.
	CacheStats func() cache.Stats

	RateLimitPerMinute int
	Now                func() time.Time
}

type Server struct {
	http.Server
	deps        Deps
	logger      *log.Logger
	now         func() time.Time
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger.WithComponent(log.ComponentHTTP),
		now:    deps.Now,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimitPerMinute,
		}),
		detector: security.NewDetector(security.DefaultEventCapacity),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	authed := auth.Middleware(deps.Resolver, writeError)
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return authed(auth.RequireRole(deps.Authorizer, core.RoleAdmin, writeError)(h))
	}

	mux.Handle("GET /api/dashboard", authed(http.HandlerFunc(s.handleDashboard)))

	mux.Handle("POST /api/{kind}", authed(http.HandlerFunc(s.handleCreateRecord)))
	mux.Handle("GET /api/{kind}", authed(http.HandlerFunc(s.handleListRecords)))
	mux.Handle("GET /api/{kind}/{id}", authed(http.HandlerFunc(s.handleGetRecord)))
	mux.Handle("PATCH /api/{kind}/{id}", authed(http.HandlerFunc(s.handleUpdateRecord)))
	mux.Handle("DELETE /api/{kind}/{id}", authed(http.HandlerFunc(s.handleDeleteRecord)))

	mux.Handle("GET /api/admin/users", adminOnly(s.handleListUsers))
	mux.Handle("PATCH /api/admin/users/{id}/role", adminOnly(s.handleSetUserRole))
	mux.Handle("GET /api/admin/metrics", adminOnly(s.handleMetrics))
	mux.Handle("GET /api/admin/security-events", adminOnly(s.handleSecurityEvents))

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.onRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// Shutdown gracefully shuts down the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

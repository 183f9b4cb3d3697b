// Package http exposes the JSON API: account registration and login,
// group CRUD, members, expenses, invites and the computed group view
// with balances and a settlement plan.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tricount/internal/auth"
	"tricount/internal/log"
	"tricount/internal/metrics"
	"tricount/internal/middleware/ratelimit"
	"tricount/internal/middleware/realip"
	"tricount/internal/middleware/trace"
	"tricount/internal/services"
)

type Server struct {
	http.Server

	groups *services.GroupService
	authn  *auth.PasswordAuthenticator
	tokens *auth.JWTManager
	logger *log.Logger

	limiter      *ratelimit.Limiter
	resolver     *realip.Resolver
	shutdownOnce sync.Once
}

// Config holds the server's runtime knobs.
type Config struct {
	Addr               string
	RateLimitPerMinute int
}

// NewServer wires routes and middleware, returning a ready-to-run
// server.
func NewServer(cfg Config, groups *services.GroupService, authn *auth.PasswordAuthenticator, tokens *auth.JWTManager, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		groups:   groups,
		authn:    authn,
		tokens:   tokens,
		logger:   logger.WithComponent(log.ComponentHTTP),
		resolver: realip.NewResolver(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET /api/tricounts", s.requireAuth(s.handleListGroups))
	mux.HandleFunc("POST /api/tricounts", s.requireAuth(s.handleCreateGroup))
	mux.HandleFunc("GET /api/tricounts/{id}", s.requireAuth(s.handleGetGroup))
	mux.HandleFunc("DELETE /api/tricounts/{id}", s.requireAuth(s.handleDeleteGroup))

	mux.HandleFunc("POST /api/tricounts/{id}/users", s.requireAuth(s.handleAddMember))
	mux.HandleFunc("DELETE /api/tricounts/{id}/users/{userID}", s.requireAuth(s.handleRemoveMember))

	mux.HandleFunc("POST /api/tricounts/{id}/expenses", s.requireAuth(s.handleAddExpense))
	mux.HandleFunc("DELETE /api/tricounts/{id}/expenses/{expenseID}", s.requireAuth(s.handleRemoveExpense))

	mux.HandleFunc("GET /api/tricounts/{id}/invite", s.requireAuth(s.handleInvite))
	mux.HandleFunc("POST /api/tricounts/{id}/join/{userID}", s.requireAuth(s.handleJoin))

	tracer := trace.NewMiddleware(s.resolver.ClientIP, func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           tracer.Middleware(s.withRateLimit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// withRateLimit applies the per-client limiter to API routes only;
// health and metrics endpoints stay unthrottled for probes and
// scrapers.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.resolver.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		metrics.RateLimitHit()
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.resolver.ClientIP(r),
			log.FieldPath, r.URL.Path)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the HTTP server and the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

package api

import (
    "context"
    "net/http"
    "sync"

    "golang.org/x/time/rate"

    "fleetroute/internal/config"
    "fleetroute/internal/events"
    "fleetroute/internal/fleet"
    "fleetroute/internal/store"
)

type Server struct {
    Store  store.Store
    Fleet  *fleet.Service
    Broker events.EventBroker

    limit    config.RateLimitConfig
    mu       sync.Mutex
    limiters map[string]*rate.Limiter // tenant -> optimize limiter
}

// NewServer wires handlers to an already-constructed store, service and broker.
func NewServer(st store.Store, f *fleet.Service, b events.EventBroker, limit config.RateLimitConfig) *Server {
    return &Server{Store: st, Fleet: f, Broker: b, limit: limit, limiters: map[string]*rate.Limiter{}}
}

// Routes registers every endpoint on a new mux wrapped with logging and metrics.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Routes and optimization
    mux.HandleFunc("/v1/routes", s.RoutesHandler)
    mux.HandleFunc("/v1/routes/", s.RouteByIDHandler) // includes /optimize, /optimize/apply, /optimizations, /traffic-estimate, /events/*
    mux.HandleFunc("/v1/optimize-all", s.OptimizeAllHandler)
    mux.HandleFunc("/v1/optimize-all/events/ws", s.BatchEventsWSHandler)

    // Admin
    mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)
    mux.HandleFunc("/v1/admin/optimization-stats", s.OptimizationStatsHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/version", s.VersionHandler)
    mux.Handle("/metrics", metricsHandler())

    return loggingMiddleware(metricsMiddleware(mux))
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    tenant := s.getPrincipal(r).Tenant
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// allow reports whether the tenant may start another optimization now.
func (s *Server) allow(tenant string) bool {
    if s.limit.RPS <= 0 { return true }
    s.mu.Lock()
    defer s.mu.Unlock()
    l, ok := s.limiters[tenant]
    if !ok {
        burst := s.limit.Burst
        if burst <= 0 { burst = 1 }
        l = rate.NewLimiter(rate.Limit(s.limit.RPS), burst)
        s.limiters[tenant] = l
    }
    return l.Allow()
}

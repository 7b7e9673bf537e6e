package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "fleetroute/internal/buildinfo"
    "fleetroute/internal/model"
)

// RoutesHandler handles POST /v1/routes
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/routes" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var in model.RouteIn
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateRouteIn(&in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid route", err.Error(), r.URL.Path)
        return
    }
    ctx, tenant := s.withTenant(r)
    route, err := s.Store.CreateRoute(ctx, tenant, in)
    if err != nil { writeError(w, r, "Create route failed", err); return }
    writeJSON(w, http.StatusCreated, route)
}

// RouteByIDHandler handles GET /v1/routes/{id} and its optimization subresources
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/routes/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    id := parts[0]
    sub := strings.Join(parts[1:], "/")

    switch sub {
    case "":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        ctx, tenant := s.withTenant(r)
        route, err := s.Store.GetRoute(ctx, tenant, id)
        if err != nil { writeError(w, r, "Get route failed", err); return }
        writeJSON(w, http.StatusOK, route)
    case "optimize":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.optimizeRoute(w, r, id)
    case "optimize/apply":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.applyOrder(w, r, id)
    case "optimizations":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        limit := 0
        if v := r.URL.Query().Get("limit"); v != "" {
            n, err := strconv.Atoi(v)
            if err != nil || n < 0 { writeProblem(w, 400, "Invalid limit", v, r.URL.Path); return }
            limit = n
        }
        ctx, tenant := s.withTenant(r)
        runs, err := s.Fleet.Runs(ctx, tenant, id, limit)
        if err != nil { writeError(w, r, "List optimizations failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": runs})
    case "traffic-estimate":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        dep := time.Now()
        if v := r.URL.Query().Get("departureTime"); v != "" {
            t, err := time.Parse(time.RFC3339, v)
            if err != nil { writeProblem(w, 400, "Invalid departureTime", "expected RFC3339: "+v, r.URL.Path); return }
            dep = t
        }
        ctx, tenant := s.withTenant(r)
        est, err := s.Fleet.EstimateTraffic(ctx, tenant, id, dep)
        if err != nil { writeError(w, r, "Traffic estimate failed", err); return }
        writeJSON(w, http.StatusOK, est)
    case "events/stream":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        s.routeEventsSSE(w, r, id)
    case "events/ws":
        s.RouteEventsWSHandler(w, r, id)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

func (s *Server) optimizeRoute(w http.ResponseWriter, r *http.Request, id string) {
    p := s.getPrincipal(r)
    if !p.CanOptimize() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    params, ok := s.readOptimizeParams(w, r)
    if !ok { return }
    if !s.allow(p.Tenant) { writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimization rate limit exceeded", r.URL.Path); return }
    ctx, tenant := s.withTenant(r)
    resp, err := s.Fleet.OptimizeRoute(ctx, tenant, id, params)
    if err != nil { writeError(w, r, "Optimize route failed", err); return }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) applyOrder(w http.ResponseWriter, r *http.Request, id string) {
    p := s.getPrincipal(r)
    if !p.CanOptimize() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    var req model.ApplyRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if len(req.OptimizedOrder) == 0 { writeProblem(w, 400, "Missing optimizedOrder", "", r.URL.Path); return }
    ctx, tenant := s.withTenant(r)
    route, err := s.Fleet.ApplyOrder(ctx, tenant, id, req.OptimizedOrder)
    if err != nil { writeError(w, r, "Apply order failed", err); return }
    writeJSON(w, http.StatusOK, route)
}

// readOptimizeParams decodes the optional tuning body; algorithm and autoApply query values win over it.
func (s *Server) readOptimizeParams(w http.ResponseWriter, r *http.Request) (model.OptimizeParams, bool) {
    var params model.OptimizeParams
    if err := decodeOptional(r, &params); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return params, false
    }
    q := r.URL.Query()
    if v := q.Get("algorithm"); v != "" { params.Algorithm = v }
    if v := q.Get("autoApply"); v != "" {
        b, err := strconv.ParseBool(v)
        if err != nil { writeProblem(w, 400, "Invalid autoApply", v, r.URL.Path); return params, false }
        params.AutoApply = &b
    }
    return params, true
}

// OptimizeAllHandler handles POST /v1/optimize-all
func (s *Server) OptimizeAllHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimize-all" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.CanOptimize() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    planDate := r.URL.Query().Get("planDate")
    if planDate != "" {
        if _, err := time.Parse("2006-01-02", planDate); err != nil {
            writeProblem(w, 400, "Invalid planDate", "expected YYYY-MM-DD: "+planDate, r.URL.Path)
            return
        }
    }
    params, ok := s.readOptimizeParams(w, r)
    if !ok { return }
    if !s.allow(p.Tenant) { writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimization rate limit exceeded", r.URL.Path); return }
    ctx, tenant := s.withTenant(r)
    sum, err := s.Fleet.OptimizeAll(ctx, tenant, planDate, params)
    if err != nil { writeError(w, r, "Optimize all failed", err); return }
    writeJSON(w, http.StatusOK, sum)
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    ctx, tenant := s.withTenant(r)
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Fleet.OptimizerConfig(ctx, tenant)
        if err != nil { writeError(w, r, "Load config failed", err); return }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config *model.OptimizerConfig `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := s.Fleet.SaveOptimizerConfig(ctx, tenant, *body.Config); err != nil { writeError(w, r, "Save failed", err); return }
        writeJSON(w, 200, map[string]any{"config": body.Config})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OptimizationStatsHandler reports per-algorithm totals recorded by this process.
func (s *Server) OptimizationStatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    planDate := r.URL.Query().Get("planDate")
    writeJSON(w, 200, map[string]any{"tenantId": p.Tenant, "planDate": planDate, "algorithms": s.Fleet.Stats(p.Tenant, planDate)})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB/Redis connectivity when the backends support it
    type pinger interface{ Ping(ctx context.Context) error }
    for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
        pg, ok := dep.(pinger)
        if !ok { continue }
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        err := pg.Ping(ctx)
        cancel()
        if err != nil { writeProblem(w, 503, "Not Ready", fmt.Sprintf("%s: %v", name, err), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, buildinfo.Info())
}

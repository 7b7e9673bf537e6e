package store

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "fleetroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    routes map[string]model.Route                // tenant/id -> route
    byTen  map[string][]string                   // tenant -> route ids in creation order
    runs   map[string][]model.OptimizationRun    // tenant/routeId -> runs, oldest first
    optCfg map[string]model.OptimizerConfig      // tenant -> config
}

func NewMemory() *Memory {
    return &Memory{
        routes: map[string]model.Route{},
        byTen: map[string][]string{},
        runs: map[string][]model.OptimizationRun{},
        optCfg: map[string]model.OptimizerConfig{},
    }
}

func key(tenantID, id string) string { return tenantID + "/" + id }

func (m *Memory) CreateRoute(ctx context.Context, tenantID string, in model.RouteIn) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := in.ID
    if id == "" { id = uuid.New().String() }
    if _, ok := m.routes[key(tenantID, id)]; ok {
        return model.Route{}, fmt.Errorf("route %s: %w", id, ErrConflict)
    }
    r := model.Route{
        ID: id, TenantID: tenantID, Version: 1, PlanDate: in.PlanDate, Status: model.RouteStatusPlanned,
        VehicleID: in.VehicleID, DriverID: in.DriverID,
    }
    if in.Depot != nil { r.Depot = *in.Depot }
    for i, s := range in.Stops {
        st := model.Stop{ID: s.ID, Seq: i + 1, Address: s.Address, Priority: normPriority(s.Priority), TimeWindow: s.TimeWindow}
        if st.ID == "" { st.ID = uuid.New().String() }
        if s.Location != nil { st.Location = *s.Location }
        r.Stops = append(r.Stops, st)
    }
    m.routes[key(tenantID, id)] = r
    m.byTen[tenantID] = append(m.byTen[tenantID], id)
    return cloneRoute(r), nil
}

func (m *Memory) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[key(tenantID, routeID)]
    if !ok { return model.Route{}, ErrNotFound }
    return cloneRoute(r), nil
}

func (m *Memory) ListRouteIDs(ctx context.Context, tenantID, planDate string) ([]string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []string{}
    for _, id := range m.byTen[tenantID] {
        r := m.routes[key(tenantID, id)]
        if planDate == "" || r.PlanDate == planDate { out = append(out, id) }
    }
    return out, nil
}

func (m *Memory) ApplyStopOrder(ctx context.Context, tenantID, routeID string, stopIDs []string) (model.Route, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.routes[key(tenantID, routeID)]
    if !ok { return model.Route{}, ErrNotFound }
    if !checkPermutation(r.StopIDs(), stopIDs) { return model.Route{}, ErrStopMismatch }
    byID := make(map[string]model.Stop, len(r.Stops))
    for _, s := range r.Stops { byID[s.ID] = s }
    stops := make([]model.Stop, len(stopIDs))
    for i, id := range stopIDs {
        s := byID[id]
        s.Seq = i + 1
        stops[i] = s
    }
    r.Stops = stops
    r.Version++
    r.Status = model.RouteStatusOptimized
    r.OptimizedAt = time.Now().UTC().Format(time.RFC3339)
    m.routes[key(tenantID, routeID)] = r
    return cloneRoute(r), nil
}

func (m *Memory) SaveOptimizationRun(ctx context.Context, run model.OptimizationRun) (model.OptimizationRun, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt == "" { run.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano) }
    run.OptimizedOrder = append([]string(nil), run.OptimizedOrder...)
    k := key(run.TenantID, run.RouteID)
    m.runs[k] = append(m.runs[k], run)
    return run, nil
}

// ListOptimizationRuns returns the newest runs first.
func (m *Memory) ListOptimizationRuns(ctx context.Context, tenantID, routeID string, limit int) ([]model.OptimizationRun, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = defaultLimit(limit)
    all := m.runs[key(tenantID, routeID)]
    out := []model.OptimizationRun{}
    for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
        out = append(out, all[i])
    }
    return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    cfg, ok := m.optCfg[tenantID]
    if !ok { return nil, nil }
    return &cfg, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.optCfg[tenantID] = cfg
    return nil
}

func cloneRoute(r model.Route) model.Route {
    r.Stops = append([]model.Stop(nil), r.Stops...)
    return r
}

func normPriority(p string) string {
    p = strings.ToUpper(strings.TrimSpace(p))
    if p == "" { return model.PriorityNormal }
    return p
}

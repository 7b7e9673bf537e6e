package store

import (
    "context"
    "errors"

    "fleetroute/internal/model"
)

// Store is the persistence interface used by the fleet service and API server.
type Store interface {
    // Routes
    CreateRoute(ctx context.Context, tenantID string, in model.RouteIn) (model.Route, error)
    GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error)
    ListRouteIDs(ctx context.Context, tenantID, planDate string) ([]string, error)
    // ApplyStopOrder rewrites stop sequence numbers to follow stopIDs and bumps the route version.
    ApplyStopOrder(ctx context.Context, tenantID, routeID string, stopIDs []string) (model.Route, error)

    // Optimization history
    SaveOptimizationRun(ctx context.Context, run model.OptimizationRun) (model.OptimizationRun, error)
    ListOptimizationRuns(ctx context.Context, tenantID, routeID string, limit int) ([]model.OptimizationRun, error)

    // Optimizer config per tenant; nil when the tenant has none.
    GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error)
    SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error
}

var (
    ErrNotFound = errors.New("not found")
    ErrConflict = errors.New("already exists")
    // ErrStopMismatch is returned when a stop order does not cover exactly the route's stops.
    ErrStopMismatch = errors.New("stop order does not match route stops")
)

// checkPermutation reports whether order contains each of have exactly once.
func checkPermutation(have, order []string) bool {
    if len(have) != len(order) { return false }
    want := make(map[string]int, len(have))
    for _, id := range have { want[id]++ }
    for _, id := range order {
        if want[id] == 0 { return false }
        want[id]--
    }
    return true
}

func defaultLimit(limit int) int {
    if limit <= 0 || limit > 500 { return 50 }
    return limit
}

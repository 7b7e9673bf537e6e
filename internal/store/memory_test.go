package store

import (
    "context"
    "errors"
    "testing"

    "github.com/google/go-cmp/cmp"
    "fleetroute/internal/model"
)

func seedRoute(t *testing.T, m *Memory, tenant, id, planDate string) model.Route {
    t.Helper()
    r, err := m.CreateRoute(context.Background(), tenant, model.RouteIn{
        ID: id, PlanDate: planDate, Depot: &model.GeoPoint{Lat: 48.1351, Lng: 11.5820},
        Stops: []model.StopIn{
            {ID: "s1", Location: &model.GeoPoint{Lat: 48.15, Lng: 11.60}},
            {ID: "s2", Location: &model.GeoPoint{Lat: 48.12, Lng: 11.55}, Priority: "urgent"},
            {Location: &model.GeoPoint{Lat: 48.18, Lng: 11.52}},
        },
    })
    if err != nil { t.Fatalf("CreateRoute: %v", err) }
    return r
}

func TestMemoryCreateGetRoute(t *testing.T) {
    m := NewMemory()
    r := seedRoute(t, m, "t1", "r1", "2026-01-05")
    if r.Version != 1 || r.Status != model.RouteStatusPlanned { t.Fatalf("unexpected route header: %+v", r) }
    if r.Stops[1].Priority != model.PriorityUrgent || r.Stops[0].Priority != model.PriorityNormal { t.Fatalf("priorities not normalized: %+v", r.Stops) }
    if r.Stops[2].ID == "" { t.Fatalf("missing generated stop id") }

    got, err := m.GetRoute(context.Background(), "t1", "r1")
    if err != nil { t.Fatalf("GetRoute: %v", err) }
    if diff := cmp.Diff(r, got); diff != "" { t.Fatalf("route mismatch (-want +got):\n%s", diff) }

    if _, err := m.GetRoute(context.Background(), "t2", "r1"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("other tenant must not see route, got %v", err)
    }
    if _, err := m.CreateRoute(context.Background(), "t1", model.RouteIn{ID: "r1"}); !errors.Is(err, ErrConflict) {
        t.Fatalf("duplicate id: want ErrConflict, got %v", err)
    }
}

func TestMemoryReturnsCopies(t *testing.T) {
    m := NewMemory()
    r := seedRoute(t, m, "t1", "r1", "")
    r.Stops[0].ID = "mutated"
    got, _ := m.GetRoute(context.Background(), "t1", "r1")
    if got.Stops[0].ID != "s1" { t.Fatalf("store state was mutated through a returned route") }
}

func TestMemoryListRouteIDs(t *testing.T) {
    m := NewMemory()
    seedRoute(t, m, "t1", "r1", "2026-01-05")
    seedRoute(t, m, "t1", "r2", "2026-01-06")
    seedRoute(t, m, "t1", "r3", "2026-01-05")
    seedRoute(t, m, "t2", "r4", "2026-01-05")

    ids, _ := m.ListRouteIDs(context.Background(), "t1", "2026-01-05")
    if diff := cmp.Diff([]string{"r1", "r3"}, ids); diff != "" { t.Fatalf("ids (-want +got):\n%s", diff) }
    all, _ := m.ListRouteIDs(context.Background(), "t1", "")
    if len(all) != 3 { t.Fatalf("want 3 routes, got %v", all) }
}

func TestMemoryApplyStopOrder(t *testing.T) {
    m := NewMemory()
    r := seedRoute(t, m, "t1", "r1", "")
    order := []string{r.Stops[2].ID, "s2", "s1"}
    got, err := m.ApplyStopOrder(context.Background(), "t1", "r1", order)
    if err != nil { t.Fatalf("ApplyStopOrder: %v", err) }
    if diff := cmp.Diff(order, got.StopIDs()); diff != "" { t.Fatalf("order (-want +got):\n%s", diff) }
    for i, s := range got.Stops {
        if s.Seq != i+1 { t.Fatalf("stop %s has seq %d, want %d", s.ID, s.Seq, i+1) }
    }
    if got.Version != 2 || got.Status != model.RouteStatusOptimized || got.OptimizedAt == "" { t.Fatalf("unexpected header after apply: %+v", got) }

    if _, err := m.ApplyStopOrder(context.Background(), "t1", "r1", []string{"s1", "s2"}); !errors.Is(err, ErrStopMismatch) {
        t.Fatalf("short order: want ErrStopMismatch, got %v", err)
    }
    if _, err := m.ApplyStopOrder(context.Background(), "t1", "nope", order); !errors.Is(err, ErrNotFound) {
        t.Fatalf("unknown route: want ErrNotFound, got %v", err)
    }
}

func TestMemoryOptimizationRunsNewestFirst(t *testing.T) {
    m := NewMemory()
    for _, alg := range []string{"NEAREST_NEIGHBOR_2OPT", "GENETIC", "SIMULATED_ANNEALING"} {
        if _, err := m.SaveOptimizationRun(context.Background(), model.OptimizationRun{TenantID: "t1", RouteID: "r1", Algorithm: alg}); err != nil {
            t.Fatalf("SaveOptimizationRun: %v", err)
        }
    }
    runs, _ := m.ListOptimizationRuns(context.Background(), "t1", "r1", 2)
    if len(runs) != 2 || runs[0].Algorithm != "SIMULATED_ANNEALING" || runs[1].Algorithm != "GENETIC" { t.Fatalf("unexpected runs: %+v", runs) }
    if runs[0].ID == "" || runs[0].CreatedAt == "" { t.Fatalf("run id/createdAt not assigned") }
}

func TestMemoryOptimizerConfig(t *testing.T) {
    m := NewMemory()
    cfg, err := m.GetOptimizerConfig(context.Background(), "t1")
    if err != nil || cfg != nil { t.Fatalf("unset config: want nil,nil got %v,%v", cfg, err) }
    want := model.OptimizerConfig{Algorithm: "GENETIC", AutoApply: true, Generations: 10}
    if err := m.SaveOptimizerConfig(context.Background(), "t1", want); err != nil { t.Fatalf("save: %v", err) }
    cfg, _ = m.GetOptimizerConfig(context.Background(), "t1")
    if diff := cmp.Diff(&want, cfg); diff != "" { t.Fatalf("config (-want +got):\n%s", diff) }
}

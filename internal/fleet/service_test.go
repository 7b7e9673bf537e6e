package fleet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"fleetroute/internal/events"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

// zigzagRoute alternates stops between two clusters ~30 km apart, so any optimizer beats the input order.
func zigzagRoute(id, planDate string) model.RouteIn {
	in := model.RouteIn{ID: id, PlanDate: planDate, Depot: &model.GeoPoint{Lat: 48.1351, Lng: 11.5820}}
	for i := 0; i < 6; i++ {
		lng := 11.40
		if i%2 == 1 {
			lng = 11.80
		}
		in.Stops = append(in.Stops, model.StopIn{ID: fmt.Sprintf("%s-s%d", id, i), Location: &model.GeoPoint{Lat: 48.10 + float64(i)*0.01, Lng: lng}})
	}
	return in
}

func newService(t *testing.T) (*Service, *store.Memory, *events.Broker) {
	t.Helper()
	st := store.NewMemory()
	b := events.NewBroker()
	return New(st, b, model.OptimizerConfig{Algorithm: "NEAREST_NEIGHBOR_2OPT"}, 2), st, b
}

func mustCreate(t *testing.T, st store.Store, tenant string, in model.RouteIn) model.Route {
	t.Helper()
	r, err := st.CreateRoute(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	return r
}

func TestOptimizeRouteAutoApplyPersistsOrder(t *testing.T) {
	svc, st, b := newService(t)
	mustCreate(t, st, "t1", zigzagRoute("r1", "2026-01-05"))
	ch := b.Subscribe(events.RouteTopic("t1", "r1"))
	defer b.Unsubscribe(events.RouteTopic("t1", "r1"), ch)

	on := true
	resp, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{AutoApply: &on})
	if err != nil {
		t.Fatalf("OptimizeRoute: %v", err)
	}
	if !resp.Applied || resp.State != string(opt.StateApplied) {
		t.Fatalf("expected applied result, got %+v", resp)
	}
	if resp.ImprovementPercent < opt.AutoApplyThresholdPercent {
		t.Fatalf("improvement %.2f below threshold", resp.ImprovementPercent)
	}

	got, _ := st.GetRoute(context.Background(), "t1", "r1")
	for i, s := range resp.OptimizedStops {
		if got.Stops[i].ID != s.ID {
			t.Fatalf("stored order differs at %d: %s vs %s", i, got.Stops[i].ID, s.ID)
		}
	}
	if got.Version != 2 {
		t.Fatalf("expected version bump, got %d", got.Version)
	}

	runs, err := svc.Runs(context.Background(), "t1", "r1", 10)
	if err != nil || len(runs) != 1 || runs[0].ID != resp.RunID || !runs[0].Applied {
		t.Fatalf("run history: %+v %v", runs, err)
	}

	select {
	case evt := <-ch:
		if evt.Type != events.TypeRouteOptimized || evt.Data["runId"] != resp.RunID {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no route.optimized event")
	}

	stats := svc.Stats("t1", "2026-01-05")["NEAREST_NEIGHBOR_2OPT"]
	if stats.Runs < 1 || stats.Applied < 1 {
		t.Fatalf("stats not recorded: %+v", stats)
	}
}

func TestOptimizeRouteWithoutAutoApplyKeepsOrder(t *testing.T) {
	svc, st, _ := newService(t)
	in := mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	resp, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{Algorithm: "genetic", Seed: 3, Generations: 20})
	if err != nil {
		t.Fatalf("OptimizeRoute: %v", err)
	}
	if resp.Applied || resp.Algorithm != "GENETIC" {
		t.Fatalf("unexpected result %+v", resp)
	}
	got, _ := st.GetRoute(context.Background(), "t1", "r1")
	if got.Version != 1 || got.Stops[0].ID != in.Stops[0].ID {
		t.Fatalf("route must be unchanged without auto-apply")
	}
}

func TestOptimizeRouteErrors(t *testing.T) {
	svc, st, _ := newService(t)
	if _, err := svc.OptimizeRoute(context.Background(), "t1", "missing", model.OptimizeParams{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	if _, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{Algorithm: "tabu"}); !errors.Is(err, opt.ErrInvalidOptions) {
		t.Fatalf("want ErrInvalidOptions, got %v", err)
	}
	if _, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{MutationRate: 2}); !errors.Is(err, opt.ErrInvalidOptions) {
		t.Fatalf("want ErrInvalidOptions, got %v", err)
	}
}

func TestOptimizeRouteUsesTenantConfig(t *testing.T) {
	svc, st, _ := newService(t)
	mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	if err := svc.SaveOptimizerConfig(context.Background(), "t1", model.OptimizerConfig{Algorithm: "SIMULATED_ANNEALING", CoolingRate: 0.9}); err != nil {
		t.Fatalf("SaveOptimizerConfig: %v", err)
	}
	resp, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{})
	if err != nil {
		t.Fatalf("OptimizeRoute: %v", err)
	}
	if resp.Algorithm != "SIMULATED_ANNEALING" {
		t.Fatalf("tenant config ignored: %s", resp.Algorithm)
	}
	if err := svc.SaveOptimizerConfig(context.Background(), "t1", model.OptimizerConfig{PopulationSize: -3}); !errors.Is(err, opt.ErrInvalidOptions) {
		t.Fatalf("invalid config accepted: %v", err)
	}
	cfg, _ := svc.OptimizerConfig(context.Background(), "t2")
	if cfg.Algorithm != "NEAREST_NEIGHBOR_2OPT" {
		t.Fatalf("tenant without config should get defaults, got %+v", cfg)
	}
}

func TestApplyOrder(t *testing.T) {
	svc, st, _ := newService(t)
	r := mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	ids := r.StopIDs()

	bad := [][]string{
		ids[:2],
		append(append([]string{}, ids[1:]...), ids[1]),
		append(append([]string{}, ids[1:]...), "ghost"),
	}
	for _, order := range bad {
		if _, err := svc.ApplyOrder(context.Background(), "t1", "r1", order); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("order %v: want ErrInvalidOrder, got %v", order, err)
		}
	}

	rev := make([]string, len(ids))
	for i, id := range ids {
		rev[len(ids)-1-i] = id
	}
	got, err := svc.ApplyOrder(context.Background(), "t1", "r1", rev)
	if err != nil {
		t.Fatalf("ApplyOrder: %v", err)
	}
	if got.Stops[0].ID != rev[0] || got.Version != 2 {
		t.Fatalf("unexpected route after apply: %+v", got)
	}
	if _, err := svc.ApplyOrder(context.Background(), "t1", "nope", rev); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOptimizeAllSumsPerRouteSavings(t *testing.T) {
	svc, st, b := newService(t)
	mustCreate(t, st, "t1", zigzagRoute("a", "2026-01-05"))
	mustCreate(t, st, "t1", zigzagRoute("b", "2026-01-05"))
	mustCreate(t, st, "t1", zigzagRoute("c", "2026-01-06"))
	mustCreate(t, st, "t2", zigzagRoute("d", "2026-01-05"))
	ch := b.Subscribe(events.BatchTopic("t1"))
	defer b.Unsubscribe(events.BatchTopic("t1"), ch)

	resp, err := svc.OptimizeAll(context.Background(), "t1", "2026-01-05", model.OptimizeParams{})
	if err != nil {
		t.Fatalf("OptimizeAll: %v", err)
	}
	if resp.RoutesTotal != 2 || resp.RoutesOptimized != 2 || len(resp.Failures) != 0 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	var saved, fuel float64
	for _, r := range resp.Results {
		saved += r.DistanceSavedKm
		fuel += r.FuelSavedLiters
	}
	if math.Abs(saved-resp.TotalDistanceSavedKm) > 1e-9 || math.Abs(fuel*opt.FuelPricePerLiter-resp.EstimatedCostSavings) > 1e-9 {
		t.Fatalf("totals do not match per-route results: %+v", resp)
	}
	if resp.BatchID == "" {
		t.Fatalf("missing batch id")
	}
	select {
	case evt := <-ch:
		if evt.Type != events.TypeBatchCompleted || evt.Data["batchId"] != resp.BatchID {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no batch.completed event")
	}
}

func TestEstimateTraffic(t *testing.T) {
	svc, st, _ := newService(t)
	mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	est, err := svc.EstimateTraffic(context.Background(), "t1", "r1", time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("EstimateTraffic: %v", err)
	}
	if est.TrafficMultiplier != 1.8 || est.TrafficLevel != "HEAVY" || est.ServiceMinutes != 30 {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if _, err := svc.EstimateTraffic(context.Background(), "t1", "nope", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestToRequestParsesTimeWindows(t *testing.T) {
	req := toRequest(model.Route{ID: "r", Stops: []model.Stop{
		{ID: "a", Priority: "URGENT", TimeWindow: &model.TimeWindow{Start: "2026-01-05T08:00:00Z", End: "2026-01-05T10:00:00Z"}},
		{ID: "b", TimeWindow: &model.TimeWindow{Start: "morning", End: "noon"}},
	}})
	if req.Stops[0].TimeWindow == nil || req.Stops[0].Priority != opt.PriorityUrgent {
		t.Fatalf("valid window/priority lost: %+v", req.Stops[0])
	}
	if req.Stops[1].TimeWindow != nil {
		t.Fatalf("unparseable window should be dropped")
	}
}

func TestOptimizeAllRecordsStatsUnderEachRoutesPlanDate(t *testing.T) {
	svc, st, _ := newService(t)
	mustCreate(t, st, "t_dates", zigzagRoute("a", "2026-02-01"))
	mustCreate(t, st, "t_dates", zigzagRoute("b", "2026-02-02"))

	if _, err := svc.OptimizeAll(context.Background(), "t_dates", "", model.OptimizeParams{}); err != nil {
		t.Fatalf("OptimizeAll: %v", err)
	}
	for _, date := range []string{"2026-02-01", "2026-02-02"} {
		if got := svc.Stats("t_dates", date)["NEAREST_NEIGHBOR_2OPT"]; got.Runs != 1 {
			t.Fatalf("plan date %s: want 1 run, got %+v", date, got)
		}
	}
	if got := svc.Stats("t_dates", ""); len(got) != 0 {
		t.Fatalf("no stats should be recorded under an empty plan date: %+v", got)
	}
}

func TestRouteEventsAreScopedByTenant(t *testing.T) {
	svc, st, b := newService(t)
	mustCreate(t, st, "t1", zigzagRoute("r1", ""))
	mustCreate(t, st, "t2", zigzagRoute("r1", ""))
	ch := b.Subscribe(events.RouteTopic("t2", "r1"))
	defer b.Unsubscribe(events.RouteTopic("t2", "r1"), ch)

	if _, err := svc.OptimizeRoute(context.Background(), "t1", "r1", model.OptimizeParams{}); err != nil {
		t.Fatalf("OptimizeRoute t1: %v", err)
	}
	resp, err := svc.OptimizeRoute(context.Background(), "t2", "r1", model.OptimizeParams{})
	if err != nil {
		t.Fatalf("OptimizeRoute t2: %v", err)
	}
	select {
	case evt := <-ch:
		if evt.Data["runId"] != resp.RunID {
			t.Fatalf("t2 subscriber got another tenant's event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("no route.optimized event for t2")
	}
}

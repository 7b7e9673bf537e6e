// Package fleet runs the route optimization engine against stored routes.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/config"
	"fleetroute/internal/events"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

// ErrInvalidOrder is returned when a manual stop order is not a permutation of the route's stops.
var ErrInvalidOrder = errors.New("invalid stop order")

type Service struct {
	store    store.Store
	events   events.Publisher
	defaults model.OptimizerConfig
	workers  int
}

// New builds a Service. defaults apply to tenants without a stored optimizer config;
// workers bounds batch concurrency (<= 0 uses GOMAXPROCS).
func New(st store.Store, pub events.Publisher, defaults model.OptimizerConfig, workers int) *Service {
	return &Service{store: st, events: pub, defaults: defaults, workers: workers}
}

// OptimizeRoute optimizes one stored route. With auto-apply and enough improvement the
// new order is written back through the store.
func (s *Service) OptimizeRoute(ctx context.Context, tenantID, routeID string, params model.OptimizeParams) (resp model.OptimizeResponse, err error) {
	done := timed("optimize_route", tenantID, routeID)
	defer done(&err)

	route, err := s.store.GetRoute(ctx, tenantID, routeID)
	if err != nil {
		return resp, fmt.Errorf("get route %s: %w", routeID, err)
	}
	opts, err := s.resolveOptions(ctx, tenantID, params)
	if err != nil {
		return resp, err
	}
	req := toRequest(route)
	req.Options = opts

	res, err := opt.New(s.applier(tenantID)).Optimize(ctx, req)
	if err != nil {
		metrics.OptimizationRuns.WithLabelValues(string(opts.Algorithm), "error").Inc()
		return resp, err
	}
	return s.record(ctx, tenantID, route.PlanDate, res), nil
}

// ApplyOrder writes a caller-chosen stop order, typically one previously returned by OptimizeRoute.
func (s *Service) ApplyOrder(ctx context.Context, tenantID, routeID string, stopIDs []string) (model.Route, error) {
	route, err := s.store.GetRoute(ctx, tenantID, routeID)
	if err != nil {
		return model.Route{}, fmt.Errorf("get route %s: %w", routeID, err)
	}
	if err := validateOrder(route.StopIDs(), stopIDs); err != nil {
		return model.Route{}, err
	}
	updated, err := s.store.ApplyStopOrder(ctx, tenantID, routeID, stopIDs)
	if errors.Is(err, store.ErrStopMismatch) {
		// stops changed between read and write
		return model.Route{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if err != nil {
		return model.Route{}, fmt.Errorf("apply order for route %s: %w", routeID, err)
	}
	s.events.Publish(events.RouteTopic(tenantID, routeID), events.NewEvent(events.TypeRouteApplied, map[string]any{
		"routeId": routeID, "version": updated.Version, "order": stopIDs,
	}))
	log.Printf("fleet: tenant=%s route=%s applied manual order version=%d", tenantID, routeID, updated.Version)
	return updated, nil
}

// OptimizeAll optimizes every route of the tenant for planDate (all dates when empty).
// Per-route failures are reported in the summary and never abort the batch.
func (s *Service) OptimizeAll(ctx context.Context, tenantID, planDate string, params model.OptimizeParams) (resp model.BatchResponse, err error) {
	done := timed("optimize_all", tenantID, planDate)
	defer done(&err)

	ids, err := s.store.ListRouteIDs(ctx, tenantID, planDate)
	if err != nil {
		return resp, fmt.Errorf("list routes: %w", err)
	}
	opts, err := s.resolveOptions(ctx, tenantID, params)
	if err != nil {
		return resp, err
	}
	batchSeed := opts.Seed
	opts.Seed = 0

	// stats are keyed by each route's own plan date, which may differ when planDate is empty
	var mu sync.Mutex
	routeDates := make(map[string]string, len(ids))
	load := func(ctx context.Context, routeID string) (opt.Request, error) {
		route, err := s.store.GetRoute(ctx, tenantID, routeID)
		if err != nil {
			return opt.Request{}, err
		}
		mu.Lock()
		routeDates[routeID] = route.PlanDate
		mu.Unlock()
		req := toRequest(route)
		req.Options = opts
		return req, nil
	}

	sum := opt.New(s.applier(tenantID)).OptimizeBatch(ctx, ids, load, opt.BatchOptions{Workers: s.workers, Seed: batchSeed})

	resp = model.BatchResponse{
		BatchID:               uuid.New().String(),
		TenantID:              tenantID,
		PlanDate:              planDate,
		RoutesTotal:           sum.RoutesTotal,
		RoutesOptimized:       sum.RoutesOptimized,
		RoutesApplied:         sum.RoutesApplied,
		TotalDistanceSavedKm:  sum.TotalDistanceSavedKm,
		TotalTimeSavedMinutes: sum.TotalTimeSavedMinutes,
		TotalFuelSavedLiters:  sum.TotalFuelSavedLiters,
		EstimatedCostSavings:  sum.EstimatedCostSavings,
		Results:               make([]model.OptimizeResponse, 0, len(sum.Results)),
		DurationMs:            sum.Duration.Milliseconds(),
	}
	for _, r := range sum.Results {
		resp.Results = append(resp.Results, s.record(ctx, tenantID, routeDates[r.RouteID], r))
	}
	for _, f := range sum.Failures {
		resp.Failures = append(resp.Failures, model.BatchFailure{RouteID: f.RouteID, Error: f.Error})
		log.Printf("fleet: tenant=%s route=%s batch failure: %s", tenantID, f.RouteID, f.Error)
	}
	metrics.BatchRoutes.WithLabelValues("optimized").Add(float64(sum.RoutesOptimized))
	metrics.BatchRoutes.WithLabelValues("failed").Add(float64(len(sum.Failures)))

	s.events.Publish(events.BatchTopic(tenantID), events.NewEvent(events.TypeBatchCompleted, map[string]any{
		"batchId": resp.BatchID, "planDate": planDate, "routesTotal": resp.RoutesTotal, "routesOptimized": resp.RoutesOptimized,
		"routesApplied": resp.RoutesApplied, "totalDistanceSavedKm": resp.TotalDistanceSavedKm, "estimatedCostSavings": resp.EstimatedCostSavings,
	}))
	log.Printf("fleet: tenant=%s plan_date=%s batch=%s routes=%d optimized=%d applied=%d failed=%d saved_km=%.2f cost_savings=%.2f",
		tenantID, planDate, resp.BatchID, resp.RoutesTotal, resp.RoutesOptimized, resp.RoutesApplied, len(resp.Failures),
		resp.TotalDistanceSavedKm, resp.EstimatedCostSavings)
	return resp, nil
}

// EstimateTraffic estimates the duration of the route's current stop order for a departure time.
func (s *Service) EstimateTraffic(ctx context.Context, tenantID, routeID string, departure time.Time) (model.TrafficEstimate, error) {
	route, err := s.store.GetRoute(ctx, tenantID, routeID)
	if err != nil {
		return model.TrafficEstimate{}, fmt.Errorf("get route %s: %w", routeID, err)
	}
	req := toRequest(route)
	est := opt.EstimateWithTraffic(req.Depot, req.Stops, departure)
	return model.TrafficEstimate{
		RouteID:              routeID,
		DistanceKm:           est.DistanceKm,
		BaseDurationMinutes:  est.BaseDurationMinutes,
		TrafficMultiplier:    est.TrafficMultiplier,
		ServiceMinutes:       est.ServiceMinutes,
		TotalDurationMinutes: est.TotalDurationMinutes,
		DepartureTime:        est.Departure.Format(time.RFC3339),
		EstimatedArrival:     est.EstimatedArrival.Format(time.RFC3339),
		TrafficLevel:         string(est.TrafficLevel),
	}, nil
}

// Runs lists the route's optimization history, newest first.
func (s *Service) Runs(ctx context.Context, tenantID, routeID string, limit int) ([]model.OptimizationRun, error) {
	if _, err := s.store.GetRoute(ctx, tenantID, routeID); err != nil {
		return nil, fmt.Errorf("get route %s: %w", routeID, err)
	}
	return s.store.ListOptimizationRuns(ctx, tenantID, routeID, limit)
}

// Stats aggregates the optimizations recorded by this process for a tenant and plan date.
func (s *Service) Stats(tenantID, planDate string) map[string]opt.RunStats {
	out := map[string]opt.RunStats{}
	for alg, st := range opt.GetRunStats(tenantID, planDate) {
		out[string(alg)] = st
	}
	return out
}

// OptimizerConfig returns the tenant's stored config, or the service defaults.
func (s *Service) OptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerConfig, error) {
	cfg, err := s.store.GetOptimizerConfig(ctx, tenantID)
	if err != nil {
		return model.OptimizerConfig{}, err
	}
	if cfg == nil {
		return s.defaults, nil
	}
	return *cfg, nil
}

func (s *Service) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	if err := config.OptionsFrom(cfg).Validate(); err != nil {
		return err
	}
	return s.store.SaveOptimizerConfig(ctx, tenantID, cfg)
}

func (s *Service) applier(tenantID string) opt.Applier {
	return opt.ApplyFunc(func(ctx context.Context, routeID string, stopIDs []string) error {
		_, err := s.store.ApplyStopOrder(ctx, tenantID, routeID, stopIDs)
		return err
	})
}

// resolveOptions layers request params over the tenant config over service defaults.
func (s *Service) resolveOptions(ctx context.Context, tenantID string, p model.OptimizeParams) (opt.Options, error) {
	base, err := s.OptimizerConfig(ctx, tenantID)
	if err != nil {
		return opt.Options{}, fmt.Errorf("load optimizer config: %w", err)
	}
	o := config.OptionsFrom(base)
	if p.Algorithm != "" {
		alg, err := opt.ParseAlgorithm(p.Algorithm)
		if err != nil {
			return opt.Options{}, err
		}
		o.Algorithm = alg
	}
	if p.AutoApply != nil {
		o.AutoApply = *p.AutoApply
	}
	if p.PopulationSize != 0 {
		o.PopulationSize = p.PopulationSize
	}
	if p.Generations != 0 {
		o.Generations = p.Generations
	}
	if p.MutationRate != 0 {
		o.MutationRate = p.MutationRate
	}
	if p.InitialTemperature != 0 {
		o.InitialTemperature = p.InitialTemperature
	}
	if p.CoolingRate != 0 {
		o.CoolingRate = p.CoolingRate
	}
	o.Seed = p.Seed
	if err := o.Validate(); err != nil {
		return opt.Options{}, err
	}
	if o.Algorithm == "" {
		o.Algorithm = opt.NearestNeighbor2Opt
	}
	return o, nil
}

// record persists, counts and publishes one engine result. Persistence failures are logged, the
// optimization itself already happened.
func (s *Service) record(ctx context.Context, tenantID, planDate string, res opt.Result) model.OptimizeResponse {
	alg := string(res.Algorithm)
	outcome := "returned"
	if res.Applied {
		outcome = "applied"
	}
	metrics.OptimizationRuns.WithLabelValues(alg, outcome).Inc()
	metrics.OptimizationDuration.WithLabelValues(alg).Observe(res.Duration.Seconds())
	metrics.DistanceSavedKm.WithLabelValues(alg).Add(res.DistanceSavedKm)
	metrics.ImprovementPercent.WithLabelValues(alg).Observe(res.ImprovementPercent)
	opt.RecordRun(tenantID, planDate, res)

	run, err := s.store.SaveOptimizationRun(ctx, model.OptimizationRun{
		TenantID:            tenantID,
		RouteID:             res.RouteID,
		Algorithm:           alg,
		OriginalDistanceKm:  res.OriginalDistanceKm,
		OptimizedDistanceKm: res.OptimizedDistanceKm,
		DistanceSavedKm:     res.DistanceSavedKm,
		TimeSavedMinutes:    res.TimeSavedMinutes,
		FuelSavedLiters:     res.FuelSavedLiters,
		ImprovementPercent:  res.ImprovementPercent,
		Applied:             res.Applied,
		OptimizedOrder:      res.OptimizedTour.IDs(),
		Message:             res.Message,
		DurationMs:          res.Duration.Milliseconds(),
	})
	if err != nil {
		log.Printf("fleet: tenant=%s route=%s save optimization run: %v", tenantID, res.RouteID, err)
	}
	resp := toResponse(run.ID, res)
	s.events.Publish(events.RouteTopic(tenantID, res.RouteID), events.NewEvent(events.TypeRouteOptimized, map[string]any{
		"routeId": res.RouteID, "runId": run.ID, "algorithm": alg, "distanceSavedKm": res.DistanceSavedKm,
		"improvementPercent": res.ImprovementPercent, "applied": res.Applied, "optimizedOrder": res.OptimizedTour.IDs(),
	}))
	return resp
}

func validateOrder(have, order []string) error {
	if len(have) != len(order) {
		return fmt.Errorf("%w: got %d stop ids, route has %d stops", ErrInvalidOrder, len(order), len(have))
	}
	known := make(map[string]bool, len(have))
	for _, id := range have {
		known[id] = true
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if !known[id] {
			return fmt.Errorf("%w: unknown stop id %q", ErrInvalidOrder, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate stop id %q", ErrInvalidOrder, id)
		}
		seen[id] = true
	}
	return nil
}

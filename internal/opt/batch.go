package opt

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loader resolves a route identifier into an optimization request.
type Loader func(ctx context.Context, routeID string) (Request, error)

// BatchOptions controls OptimizeBatch. Workers <= 0 uses GOMAXPROCS.
// A non-zero Seed gives every route that has no seed of its own a
// deterministic stream derived from it.
type BatchOptions struct {
	Workers int
	Seed    int64
}

type BatchFailure struct {
	RouteID string
	Error   string
}

// BatchSummary aggregates the successful routes of a batch. Failed routes only
// appear in Failures.
type BatchSummary struct {
	RoutesTotal           int
	RoutesOptimized       int
	RoutesApplied         int
	TotalDistanceSavedKm  float64
	TotalTimeSavedMinutes float64
	TotalFuelSavedLiters  float64
	EstimatedCostSavings  float64
	Results               []Result
	Failures              []BatchFailure
	Duration              time.Duration
}

// OptimizeBatch optimizes every route independently on a bounded worker pool.
// A failing route (load error, invalid options, apply error, panic) is recorded
// and never stops its siblings. Results keep the order of routeIDs.
func (o *Optimizer) OptimizeBatch(ctx context.Context, routeIDs []string, load Loader, bo BatchOptions) BatchSummary {
	start := time.Now()
	workers := bo.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(routeIDs))
	errs := make([]error, len(routeIDs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range routeIDs {
		i, id := i, id
		g.Go(func() error {
			r, err := o.optimizeOne(ctx, i, id, load, bo.Seed)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	sum := BatchSummary{RoutesTotal: len(routeIDs)}
	for i, id := range routeIDs {
		if errs[i] != nil {
			sum.Failures = append(sum.Failures, BatchFailure{RouteID: id, Error: errs[i].Error()})
			continue
		}
		r := results[i]
		sum.Results = append(sum.Results, *r)
		sum.RoutesOptimized++
		if r.Applied {
			sum.RoutesApplied++
		}
		sum.TotalDistanceSavedKm += r.DistanceSavedKm
		sum.TotalTimeSavedMinutes += r.TimeSavedMinutes
		sum.TotalFuelSavedLiters += r.FuelSavedLiters
	}
	sum.EstimatedCostSavings = sum.TotalFuelSavedLiters * FuelPricePerLiter
	sum.Duration = time.Since(start)
	return sum
}

func (o *Optimizer) optimizeOne(ctx context.Context, idx int, routeID string, load Loader, seed int64) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("route %s: panic: %v", routeID, p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	req, err := load(ctx, routeID)
	if err != nil {
		return Result{}, fmt.Errorf("load route %s: %w", routeID, err)
	}
	if req.RouteID == "" {
		req.RouteID = routeID
	}
	if req.Options.Seed == 0 && seed != 0 {
		req.Options.Seed = deriveSeed(seed, uint64(idx))
	}
	return o.Optimize(ctx, req)
}

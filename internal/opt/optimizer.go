package opt

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Business heuristics of the original van fleet. They are empirical and do not
// generalize to other vehicle profiles.
const (
	AutoApplyThresholdPercent = 5.0
	MinutesPerKm              = 2.0
	FuelLitersPerKm           = 0.12
	FuelPricePerLiter         = 7.50
	MinStopsToOptimize        = 2
)

// State is a step of a single optimization call.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateBaselineComputed State = "BASELINE_COMPUTED"
	StateOptimized        State = "OPTIMIZED"
	StatePriorityAdjusted State = "PRIORITY_ADJUSTED"
	StateEvaluated        State = "EVALUATED"
	StateApplied          State = "APPLIED"
	StateReturned         State = "RETURNED"
)

// Applier persists a final stop order for a route. The engine does not know how.
type Applier interface {
	ApplyOrder(ctx context.Context, routeID string, stopIDs []string) error
}

// ApplyFunc adapts a function to Applier.
type ApplyFunc func(ctx context.Context, routeID string, stopIDs []string) error

func (f ApplyFunc) ApplyOrder(ctx context.Context, routeID string, stopIDs []string) error {
	return f(ctx, routeID, stopIDs)
}

// Request is the input of one optimization call.
type Request struct {
	RouteID string
	Depot   Coordinate
	Stops   []Stop
	Options Options
}

// Optimizer runs single and batch optimizations. Apply may be nil, in which
// case auto-apply never fires.
type Optimizer struct {
	Apply Applier
}

func New(apply Applier) *Optimizer { return &Optimizer{Apply: apply} }

// Optimize runs one request through the optimization state machine. It blocks
// for the duration of the chosen algorithm; ctx is only handed to the Applier.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	opts, err := req.Options.withDefaults()
	if err != nil {
		return Result{}, err
	}
	if err := checkUniqueIDs(req.Stops); err != nil {
		return Result{}, err
	}
	original := Tour(req.Stops).clone()
	res := Result{RouteID: req.RouteID, OriginalTour: original, Algorithm: opts.Algorithm, State: StateReceived}

	if len(original) < MinStopsToOptimize {
		res.OptimizedTour = original.clone()
		res.OriginalDistanceKm = TourCost(req.Depot, original)
		res.OptimizedDistanceKm = res.OriginalDistanceKm
		res.Message = fmt.Sprintf("at least %d stops are required for optimization, got %d", MinStopsToOptimize, len(original))
		res.State = StateReturned
		res.Duration = time.Since(start)
		return res, nil
	}

	res.OriginalDistanceKm = TourCost(req.Depot, original)
	res.State = StateBaselineComputed

	res.OptimizedTour = run(req.Depot, original, opts)
	res.State = StateOptimized

	res.OptimizedTour = PrioritizeUrgent(res.OptimizedTour)
	res.State = StatePriorityAdjusted

	res.OptimizedDistanceKm = TourCost(req.Depot, res.OptimizedTour)
	s := evaluate(res.OriginalDistanceKm, res.OptimizedDistanceKm)
	res.DistanceSavedKm = s.distanceKm
	res.TimeSavedMinutes = s.minutes
	res.FuelSavedLiters = s.liters
	res.ImprovementPercent = s.percent
	res.State = StateEvaluated

	switch {
	case !shouldApply(opts.AutoApply, res.ImprovementPercent):
		res.Message = fmt.Sprintf("optimized: %.2f km saved (%.2f%%)", res.DistanceSavedKm, res.ImprovementPercent)
		res.State = StateReturned
	case o.Apply == nil:
		res.Message = fmt.Sprintf("optimized: %.2f km saved (%.2f%%); no applier configured", res.DistanceSavedKm, res.ImprovementPercent)
		res.State = StateReturned
	default:
		if err := o.Apply.ApplyOrder(ctx, req.RouteID, res.OptimizedTour.IDs()); err != nil {
			return res, fmt.Errorf("apply optimized order for route %s: %w", req.RouteID, err)
		}
		res.Applied = true
		res.Message = fmt.Sprintf("optimized and applied: %.2f km saved (%.2f%%)", res.DistanceSavedKm, res.ImprovementPercent)
		res.State = StateApplied
	}
	res.Duration = time.Since(start)
	return res, nil
}

func run(depot Coordinate, stops Tour, opts Options) Tour {
	switch opts.Algorithm {
	case Genetic:
		return GeneticTour(depot, stops, GeneticParams{
			PopulationSize: opts.PopulationSize,
			Generations:    opts.Generations,
			MutationRate:   opts.MutationRate,
		}, newRand(opts.Seed))
	case SimulatedAnnealing:
		return AnnealTour(depot, stops, AnnealParams{
			InitialTemperature: opts.InitialTemperature,
			CoolingRate:        opts.CoolingRate,
		}, newRand(opts.Seed))
	default:
		return ImproveTwoOpt(depot, NearestNeighborTour(depot, stops))
	}
}

type savings struct {
	distanceKm, minutes, liters, percent float64
}

func evaluate(originalKm, optimizedKm float64) savings {
	saved := math.Max(0, originalKm-optimizedKm)
	s := savings{distanceKm: saved, minutes: saved * MinutesPerKm, liters: saved * FuelLitersPerKm}
	if originalKm > 0 {
		s.percent = saved * 100 / originalKm
	}
	return s
}

func shouldApply(autoApply bool, improvementPercent float64) bool {
	return autoApply && improvementPercent >= AutoApplyThresholdPercent
}

func checkUniqueIDs(stops []Stop) error {
	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate stop id %q", ErrInvalidOptions, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

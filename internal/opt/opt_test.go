package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var munichCenter = Coordinate{Lat: 48.1351, Lng: 11.5820}

// randomStops scatters n stops within roughly 15 km of the Munich center.
func randomStops(n int, seed int64) []Stop {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Stop, n)
	for i := range out {
		out[i] = Stop{
			ID:       fmt.Sprintf("s%02d", i),
			Location: Coordinate{Lat: munichCenter.Lat + (rng.Float64()-0.5)*0.25, Lng: munichCenter.Lng + (rng.Float64()-0.5)*0.35},
			Priority: PriorityNormal,
		}
	}
	return out
}

func requirePermutation(t *testing.T, in []Stop, out Tour) {
	t.Helper()
	want := Tour(in).IDs()
	got := out.IDs()
	require.Len(t, got, len(want))
	sort.Strings(want)
	sort.Strings(got)
	require.Equal(t, want, got)
}

func allAlgorithms() []Algorithm {
	return []Algorithm{NearestNeighbor2Opt, Genetic, SimulatedAnnealing}
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	stops := randomStops(12, 1)
	for _, a := range stops {
		require.Zero(t, DistanceKm(a.Location, a.Location))
		for _, b := range stops {
			require.Equal(t, DistanceKm(a.Location, b.Location), DistanceKm(b.Location, a.Location))
			if a.ID != b.ID {
				require.Greater(t, DistanceKm(a.Location, b.Location), 0.0)
			}
		}
	}
}

func TestTourCost_MunichAirportRoundTrip(t *testing.T) {
	airport := Stop{ID: "muc", Location: Coordinate{Lat: 48.3538, Lng: 11.7861}}
	cost := TourCost(munichCenter, Tour{airport})
	require.Greater(t, cost, 50.0)
	require.Less(t, cost, 80.0)
	require.InDelta(t, 2*DistanceKm(munichCenter, airport.Location), cost, 1e-9)
}

func TestTourCost_Empty(t *testing.T) {
	require.Zero(t, TourCost(munichCenter, nil))
}

func TestNearestNeighbor_GreedyOrderAndTieBreak(t *testing.T) {
	depot := Coordinate{Lat: 0, Lng: 0}
	stops := []Stop{
		{ID: "far", Location: Coordinate{Lat: 0, Lng: 3}},
		{ID: "east", Location: Coordinate{Lat: 0, Lng: 1}},
		{ID: "west", Location: Coordinate{Lat: 0, Lng: -1}},
	}
	tour := NearestNeighborTour(depot, stops)
	// east and west tie from the depot; east comes first in the input.
	require.Equal(t, []string{"east", "far", "west"}, tour.IDs())
}

func TestTwoOpt_NeverIncreasesCost(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		stops := randomStops(15, seed)
		rng := rand.New(rand.NewSource(seed))
		start := make(Tour, len(stops))
		for i, j := range rng.Perm(len(stops)) {
			start[i] = stops[j]
		}
		before := TourCost(munichCenter, start)
		improved := ImproveTwoOpt(munichCenter, start)
		require.LessOrEqual(t, TourCost(munichCenter, improved), before)
		requirePermutation(t, stops, improved)
	}
}

func TestTwoOpt_UncrossesSquare(t *testing.T) {
	depot := Coordinate{Lat: 0, Lng: 0}
	crossed := Tour{
		{ID: "a", Location: Coordinate{Lat: 0, Lng: 0.1}},
		{ID: "c", Location: Coordinate{Lat: 0.1, Lng: 0}},
		{ID: "b", Location: Coordinate{Lat: 0.1, Lng: 0.1}},
	}
	got := ImproveTwoOpt(depot, crossed)
	require.Less(t, TourCost(depot, got), TourCost(depot, crossed))
	require.Equal(t, "b", got[1].ID)
}

func TestTwoOptSwap_DoesNotAliasInput(t *testing.T) {
	in := Tour{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	out := twoOptSwap(in, 1, 3)
	require.Equal(t, []string{"a", "d", "c", "b"}, out.IDs())
	require.Equal(t, []string{"a", "b", "c", "d"}, in.IDs())
}

func TestMetaheuristics_NoWorseThanNearestNeighbor(t *testing.T) {
	stops := randomStops(20, 42)
	baseline := TourCost(munichCenter, NearestNeighborTour(munichCenter, stops))

	ga := GeneticTour(munichCenter, stops, GeneticParams{PopulationSize: 30, Generations: 40, MutationRate: 0.2}, rand.New(rand.NewSource(3)))
	requirePermutation(t, stops, ga)
	require.LessOrEqual(t, TourCost(munichCenter, ga), baseline)

	sa := AnnealTour(munichCenter, stops, AnnealParams{InitialTemperature: 1000, CoolingRate: 0.99}, rand.New(rand.NewSource(3)))
	requirePermutation(t, stops, sa)
	require.LessOrEqual(t, TourCost(munichCenter, sa), baseline)
}

func TestGenetic_SameSeedSameTour(t *testing.T) {
	stops := randomStops(10, 9)
	p := GeneticParams{PopulationSize: 20, Generations: 25, MutationRate: 0.1}
	a := GeneticTour(munichCenter, stops, p, rand.New(rand.NewSource(11)))
	b := GeneticTour(munichCenter, stops, p, rand.New(rand.NewSource(11)))
	require.Equal(t, a.IDs(), b.IDs())
}

func TestOrderCrossover_KeepsPermutation(t *testing.T) {
	stops := randomStops(9, 5)
	rng := rand.New(rand.NewSource(1))
	a := Tour(stops).clone()
	b := Tour(stops).clone()
	rng.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })
	for i := 0; i < 50; i++ {
		requirePermutation(t, stops, orderCrossover(a, b, rng))
	}
}

func TestPrioritizeUrgent_StablePartition(t *testing.T) {
	in := Tour{
		{ID: "n1", Priority: PriorityNormal},
		{ID: "u1", Priority: PriorityUrgent},
		{ID: "h1", Priority: PriorityHigh},
		{ID: "u2", Priority: PriorityUrgent},
		{ID: "n2"},
	}
	require.Equal(t, []string{"u1", "u2", "n1", "h1", "n2"}, PrioritizeUrgent(in).IDs())
}

func TestOptimize_PermutationAndUrgentFirst(t *testing.T) {
	stops := randomStops(14, 21)
	stops[5].Priority = PriorityUrgent
	stops[11].Priority = PriorityUrgent
	stops[3].Priority = PriorityHigh
	o := New(nil)
	for _, alg := range allAlgorithms() {
		t.Run(string(alg), func(t *testing.T) {
			res, err := o.Optimize(context.Background(), Request{RouteID: "r1", Depot: munichCenter, Stops: stops,
				Options: Options{Algorithm: alg, Seed: 7, Generations: 30}})
			require.NoError(t, err)
			requirePermutation(t, stops, res.OptimizedTour)
			require.Equal(t, PriorityUrgent, res.OptimizedTour[0].Priority)
			require.Equal(t, PriorityUrgent, res.OptimizedTour[1].Priority)
			for _, s := range res.OptimizedTour[2:] {
				require.NotEqual(t, PriorityUrgent, s.Priority)
			}
			require.Equal(t, alg, res.Algorithm)
			require.Equal(t, StateReturned, res.State)
			require.GreaterOrEqual(t, res.DistanceSavedKm, 0.0)
		})
	}
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	stops := randomStops(8, 2)
	before := Tour(stops).IDs()
	_, err := New(nil).Optimize(context.Background(), Request{Depot: munichCenter, Stops: stops})
	require.NoError(t, err)
	require.Equal(t, before, Tour(stops).IDs())
}

func TestOptimize_DegenerateInput(t *testing.T) {
	for _, n := range []int{0, 1} {
		stops := randomStops(n, 4)
		res, err := New(nil).Optimize(context.Background(), Request{RouteID: "tiny", Depot: munichCenter, Stops: stops,
			Options: Options{AutoApply: true}})
		require.NoError(t, err)
		require.Equal(t, Tour(stops).IDs(), res.OptimizedTour.IDs())
		require.Zero(t, res.DistanceSavedKm)
		require.Zero(t, res.ImprovementPercent)
		require.False(t, res.Applied)
		require.NotEmpty(t, res.Message)
		require.Equal(t, StateReturned, res.State)
	}
}

func TestEvaluate_DerivedSavings(t *testing.T) {
	s := evaluate(100, 90)
	require.InDelta(t, 10, s.distanceKm, 1e-9)
	require.InDelta(t, 20, s.minutes, 1e-9)
	require.InDelta(t, 1.2, s.liters, 1e-9)
	require.InDelta(t, 10, s.percent, 1e-9)

	require.Zero(t, evaluate(0, 0).percent)
	require.Zero(t, evaluate(10, 12).distanceKm)
}

func TestAutoApplyThreshold(t *testing.T) {
	exact := evaluate(100, 95)
	require.Equal(t, 5.0, exact.percent)
	require.True(t, shouldApply(true, exact.percent))
	require.False(t, shouldApply(false, exact.percent))

	below := evaluate(100, 95.01)
	require.InDelta(t, 4.99, below.percent, 1e-9)
	require.False(t, shouldApply(true, below.percent))
	require.False(t, shouldApply(true, 4.99))
}

type recordingApplier struct {
	calls [][]string
	err   error
}

func (r *recordingApplier) ApplyOrder(_ context.Context, _ string, ids []string) error {
	r.calls = append(r.calls, ids)
	return r.err
}

// zigzag alternates between two far apart clusters so any optimizer beats the input order.
func zigzag() []Stop {
	var out []Stop
	for i := 0; i < 6; i++ {
		lng := 11.40
		if i%2 == 1 {
			lng = 11.80
		}
		out = append(out, Stop{ID: fmt.Sprintf("z%d", i), Location: Coordinate{Lat: 48.10 + float64(i)*0.01, Lng: lng}})
	}
	return out
}

func TestOptimize_AutoApplyInvokesApplier(t *testing.T) {
	app := &recordingApplier{}
	res, err := New(app).Optimize(context.Background(), Request{RouteID: "r7", Depot: munichCenter, Stops: zigzag(), Options: Options{AutoApply: true}})
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.ImprovementPercent, AutoApplyThresholdPercent)
	require.True(t, res.Applied)
	require.Equal(t, StateApplied, res.State)
	require.Len(t, app.calls, 1)
	require.Equal(t, res.OptimizedTour.IDs(), app.calls[0])
}

func TestOptimize_NoAutoApplyLeavesApplierAlone(t *testing.T) {
	app := &recordingApplier{}
	res, err := New(app).Optimize(context.Background(), Request{RouteID: "r7", Depot: munichCenter, Stops: zigzag()})
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Empty(t, app.calls)
}

func TestOptimize_ApplyErrorIsReturned(t *testing.T) {
	boom := errors.New("db down")
	_, err := New(&recordingApplier{err: boom}).Optimize(context.Background(), Request{RouteID: "r7", Depot: munichCenter, Stops: zigzag(), Options: Options{AutoApply: true}})
	require.ErrorIs(t, err, boom)
}

func TestOptimize_InvalidOptionsFailFast(t *testing.T) {
	bad := []Options{
		{PopulationSize: -1},
		{PopulationSize: 1},
		{Generations: -5},
		{MutationRate: 1.5},
		{InitialTemperature: -1},
		{CoolingRate: 1},
		{Algorithm: "tabu"},
	}
	for _, o := range bad {
		_, err := New(nil).Optimize(context.Background(), Request{Depot: munichCenter, Stops: randomStops(3, 1), Options: o})
		require.ErrorIs(t, err, ErrInvalidOptions, "%+v", o)
	}
	dup := []Stop{{ID: "x"}, {ID: "x"}}
	_, err := New(nil).Optimize(context.Background(), Request{Depot: munichCenter, Stops: dup})
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("simulated_annealing")
	require.NoError(t, err)
	require.Equal(t, SimulatedAnnealing, a)
	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	require.Equal(t, NearestNeighbor2Opt, a)
}

func TestOptimizeBatch_AggregatesAndIsolatesFailures(t *testing.T) {
	routes := map[string]Request{
		"a": {Depot: munichCenter, Stops: zigzag()},
		"b": {Depot: munichCenter, Stops: randomStops(9, 77)},
	}
	load := func(_ context.Context, id string) (Request, error) {
		r, ok := routes[id]
		if !ok {
			return Request{}, errors.New("not found")
		}
		return r, nil
	}
	o := New(nil)
	x, err := o.Optimize(context.Background(), routes["a"])
	require.NoError(t, err)
	y, err := o.Optimize(context.Background(), routes["b"])
	require.NoError(t, err)

	sum := o.OptimizeBatch(context.Background(), []string{"a", "missing", "b"}, load, BatchOptions{Workers: 2})
	require.Equal(t, 3, sum.RoutesTotal)
	require.Equal(t, 2, sum.RoutesOptimized)
	require.Len(t, sum.Failures, 1)
	require.Equal(t, "missing", sum.Failures[0].RouteID)
	require.InDelta(t, x.DistanceSavedKm+y.DistanceSavedKm, sum.TotalDistanceSavedKm, 1e-6)
	require.InDelta(t, x.FuelSavedLiters+y.FuelSavedLiters, sum.TotalFuelSavedLiters, 1e-6)
	require.InDelta(t, sum.TotalFuelSavedLiters*FuelPricePerLiter, sum.EstimatedCostSavings, 1e-9)
	require.Equal(t, "a", sum.Results[0].RouteID)
	require.Equal(t, "b", sum.Results[1].RouteID)
}

func TestOptimizeBatch_PanicIsRecorded(t *testing.T) {
	load := func(_ context.Context, id string) (Request, error) {
		if id == "bad" {
			panic("corrupt route")
		}
		return Request{Depot: munichCenter, Stops: randomStops(4, 1)}, nil
	}
	sum := New(nil).OptimizeBatch(context.Background(), []string{"ok", "bad"}, load, BatchOptions{Workers: 1, Seed: 99})
	require.Equal(t, 1, sum.RoutesOptimized)
	require.Len(t, sum.Failures, 1)
	require.Contains(t, sum.Failures[0].Error, "corrupt route")
}

func TestEstimateWithTraffic(t *testing.T) {
	tour := Tour{{ID: "muc", Location: Coordinate{Lat: 48.3538, Lng: 11.7861}}}

	rush := EstimateWithTraffic(munichCenter, tour, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	require.Equal(t, 1.8, rush.TrafficMultiplier)
	require.Equal(t, TrafficHeavy, rush.TrafficLevel)

	midday := EstimateWithTraffic(munichCenter, tour, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	require.Equal(t, 1.0, midday.TrafficMultiplier)
	require.Equal(t, TrafficLight, midday.TrafficLevel)
	require.InDelta(t, midday.DistanceKm/UrbanSpeedKph*60+ServiceMinutesPerStop, midday.TotalDurationMinutes, 1e-9)
	require.True(t, midday.EstimatedArrival.After(midday.Departure))

	require.Equal(t, TrafficModerate, trafficLevel(TrafficMultiplier(16)))
}

func TestRecordRun_AggregatesPerAlgorithm(t *testing.T) {
	RecordRun("t_stats", "2026-01-05", Result{Algorithm: Genetic, DistanceSavedKm: 2, ImprovementPercent: 4})
	RecordRun("t_stats", "2026-01-05", Result{Algorithm: Genetic, DistanceSavedKm: 3, ImprovementPercent: 9, Applied: true})
	got := GetRunStats("t_stats", "2026-01-05")[Genetic]
	require.Equal(t, 2, got.Runs)
	require.Equal(t, 1, got.Applied)
	require.InDelta(t, 5, got.DistanceSavedKm, 1e-9)
	require.Equal(t, 9.0, got.BestImprovementPercent)
}

func TestOptions_ZeroTuningFieldsUseDefaults(t *testing.T) {
	o, err := Options{MutationRate: 0, CoolingRate: 0}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, DefaultMutationRate, o.MutationRate)
	require.Equal(t, DefaultCoolingRate, o.CoolingRate)
	require.Equal(t, DefaultPopulationSize, o.PopulationSize)

	o, err = Options{MutationRate: 1e-9}.withDefaults()
	require.NoError(t, err)
	require.Equal(t, 1e-9, o.MutationRate)
}

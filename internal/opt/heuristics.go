package opt

import "math"

// MaxTwoOptPasses bounds 2-opt against pathological inputs.
const MaxTwoOptPasses = 1000

// NearestNeighborTour builds a tour greedily from the depot. Ties go to the stop
// that comes first in the input order.
func NearestNeighborTour(depot Coordinate, stops []Stop) Tour {
	n := len(stops)
	used := make([]bool, n)
	tour := make(Tour, 0, n)
	cur := depot
	for len(tour) < n {
		best, bestDist := -1, math.MaxFloat64
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			if d := DistanceKm(cur, stops[i].Location); d < bestDist {
				best, bestDist = i, d
			}
		}
		used[best] = true
		tour = append(tour, stops[best])
		cur = stops[best].Location
	}
	return tour
}

// ImproveTwoOpt applies 2-opt passes to tour against the depot-closed loop.
// A reversal is kept only if it strictly lowers TourCost. The input is not modified.
func ImproveTwoOpt(depot Coordinate, tour Tour) Tour {
	best := tour.clone()
	bestDist := TourCost(depot, best)
	n := len(best)
	for pass := 0; pass < MaxTwoOptPasses; pass++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := TourCost(depot, cand); d < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// twoOptSwap returns a copy of ord with ord[i..k] reversed.
func twoOptSwap(ord Tour, i, k int) Tour {
	out := make(Tour, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

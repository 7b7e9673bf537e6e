package opt

import (
	"math"
	"math/rand"
)

// AnnealParams tunes AnnealTour.
type AnnealParams struct {
	InitialTemperature float64
	CoolingRate        float64
}

// AnnealTour runs simulated annealing from the nearest-neighbor tour. The
// temperature cools multiplicatively until it drops below 1; the best tour
// seen is returned.
func AnnealTour(depot Coordinate, stops []Stop, p AnnealParams, rng *rand.Rand) Tour {
	curr := NearestNeighborTour(depot, stops)
	n := len(curr)
	if n < 2 {
		return curr
	}
	temp := p.InitialTemperature
	if temp <= 0 {
		temp = DefaultInitialTemperature
	}
	cool := DefaultCoolingRate
	if p.CoolingRate > 0 && p.CoolingRate < 1 {
		cool = p.CoolingRate
	}

	currCost := TourCost(depot, curr)
	best, bestCost := curr.clone(), currCost
	for temp >= 1 {
		i, j := rng.Intn(n), rng.Intn(n)
		for j == i {
			j = rng.Intn(n)
		}
		cand := curr.clone()
		cand[i], cand[j] = cand[j], cand[i]
		candCost := TourCost(depot, cand)
		delta := candCost - currCost
		if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
			curr, currCost = cand, candCost
			if currCost < bestCost {
				best, bestCost = curr.clone(), currCost
			}
		}
		temp *= cool
	}
	return best
}

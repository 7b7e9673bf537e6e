package opt

import (
	"math/rand"
	"sort"
)

// GeneticParams tunes GeneticTour.
type GeneticParams struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
}

type individual struct {
	tour Tour
	cost float64
}

// GeneticTour evolves a population of tours and returns the cheapest member of
// the final population. The population is seeded with the nearest-neighbor tour,
// and elitism keeps the best individual alive, so the result never costs more
// than the greedy baseline.
func GeneticTour(depot Coordinate, stops []Stop, p GeneticParams, rng *rand.Rand) Tour {
	n := len(stops)
	if n < 2 {
		return Tour(stops).clone()
	}
	size := p.PopulationSize
	if size < 2 {
		size = DefaultPopulationSize
	}

	pop := make([]individual, 0, size)
	nn := NearestNeighborTour(depot, stops)
	pop = append(pop, individual{tour: nn, cost: TourCost(depot, nn)})
	for len(pop) < size {
		t := make(Tour, n)
		for i, j := range rng.Perm(n) {
			t[i] = stops[j]
		}
		pop = append(pop, individual{tour: t, cost: TourCost(depot, t)})
	}

	for gen := 0; gen < p.Generations; gen++ {
		// Fitness is 1/cost, so ranking by ascending cost is ranking by fitness.
		sort.SliceStable(pop, func(a, b int) bool { return pop[a].cost < pop[b].cost })
		elite := size / 2
		next := make([]individual, elite, size)
		copy(next, pop[:elite])
		for len(next) < size {
			a := next[rng.Intn(elite)].tour
			b := next[rng.Intn(elite)].tour
			child := orderCrossover(a, b, rng)
			if rng.Float64() < p.MutationRate {
				swapMutation(child, rng)
			}
			next = append(next, individual{tour: child, cost: TourCost(depot, child)})
		}
		pop = next
	}

	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.cost < best.cost {
			best = ind
		}
	}
	return best.tour
}

// orderCrossover copies a random contiguous slice of a into the child and fills
// the remaining positions, left to right, with b's stops in b's order.
func orderCrossover(a, b Tour, rng *rand.Rand) Tour {
	n := len(a)
	i, j := rng.Intn(n), rng.Intn(n)
	if i > j {
		i, j = j, i
	}
	child := make(Tour, n)
	placed := make(map[string]bool, j-i+1)
	for k := i; k <= j; k++ {
		child[k] = a[k]
		placed[a[k].ID] = true
	}
	pos := 0
	for _, s := range b {
		if placed[s.ID] {
			continue
		}
		for pos >= i && pos <= j {
			pos++
		}
		child[pos] = s
		pos++
	}
	return child
}

// swapMutation exchanges two randomly chosen positions in place.
func swapMutation(t Tour, rng *rand.Rand) {
	i, j := rng.Intn(len(t)), rng.Intn(len(t))
	t[i], t[j] = t[j], t[i]
}

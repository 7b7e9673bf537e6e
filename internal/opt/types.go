package opt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidOptions is wrapped by every option/input validation failure.
var ErrInvalidOptions = errors.New("invalid optimization options")

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type TimeWindow struct{ Start, End time.Time }

// Stop is a delivery stop as handed in by the caller. The engine only reorders copies.
type Stop struct {
	ID         string
	Location   Coordinate
	Priority   Priority
	TimeWindow *TimeWindow
}

// Tour is an ordered visiting sequence. The depot is implicit at both ends.
type Tour []Stop

// IDs returns the stop identifiers in visiting order.
func (t Tour) IDs() []string {
	out := make([]string, len(t))
	for i, s := range t {
		out[i] = s.ID
	}
	return out
}

func (t Tour) clone() Tour { return append(Tour(nil), t...) }

type Algorithm string

const (
	NearestNeighbor2Opt Algorithm = "NEAREST_NEIGHBOR_2OPT"
	Genetic             Algorithm = "GENETIC"
	SimulatedAnnealing  Algorithm = "SIMULATED_ANNEALING"
)

// ParseAlgorithm accepts the canonical names as well as their lower-case forms
// (nearest_neighbor_2opt, genetic, simulated_annealing). Empty selects the default.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return NearestNeighbor2Opt, nil
	case NearestNeighbor2Opt:
		return NearestNeighbor2Opt, nil
	case Genetic:
		return Genetic, nil
	case SimulatedAnnealing:
		return SimulatedAnnealing, nil
	}
	return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidOptions, s)
}

// Defaults for the tuning parameters. A zero value in Options selects the default.
const (
	DefaultPopulationSize     = 50
	DefaultGenerations        = 100
	DefaultMutationRate       = 0.1
	DefaultInitialTemperature = 10000.0
	DefaultCoolingRate        = 0.995
)

// Options controls a single optimization call. Every tuning field treats its zero
// value as "use the default", so MutationRate 0 means DefaultMutationRate, not "never
// mutate"; pass a tiny positive rate such as 1e-9 to effectively disable mutation.
type Options struct {
	Algorithm Algorithm
	AutoApply bool

	// genetic
	PopulationSize int
	Generations    int
	MutationRate   float64

	// simulated annealing
	InitialTemperature float64
	CoolingRate        float64

	// Seed feeds the metaheuristics' random source; 0 means time based.
	Seed int64
}

// withDefaults validates o and fills zero-valued tuning fields.
func (o Options) withDefaults() (Options, error) {
	alg, err := ParseAlgorithm(string(o.Algorithm))
	if err != nil {
		return o, err
	}
	o.Algorithm = alg
	switch {
	case o.PopulationSize < 0:
		return o, fmt.Errorf("%w: populationSize must be >= 0, got %d", ErrInvalidOptions, o.PopulationSize)
	case o.PopulationSize == 1:
		return o, fmt.Errorf("%w: populationSize must be at least 2", ErrInvalidOptions)
	case o.Generations < 0:
		return o, fmt.Errorf("%w: generations must be >= 0, got %d", ErrInvalidOptions, o.Generations)
	case o.MutationRate < 0 || o.MutationRate > 1:
		return o, fmt.Errorf("%w: mutationRate must be in [0,1], got %g", ErrInvalidOptions, o.MutationRate)
	case o.InitialTemperature < 0:
		return o, fmt.Errorf("%w: initialTemperature must be >= 0, got %g", ErrInvalidOptions, o.InitialTemperature)
	case o.CoolingRate < 0 || o.CoolingRate >= 1:
		return o, fmt.Errorf("%w: coolingRate must be in (0,1), got %g", ErrInvalidOptions, o.CoolingRate)
	}
	if o.PopulationSize == 0 {
		o.PopulationSize = DefaultPopulationSize
	}
	if o.Generations == 0 {
		o.Generations = DefaultGenerations
	}
	if o.MutationRate == 0 {
		o.MutationRate = DefaultMutationRate
	}
	if o.InitialTemperature == 0 {
		o.InitialTemperature = DefaultInitialTemperature
	}
	if o.CoolingRate == 0 {
		o.CoolingRate = DefaultCoolingRate
	}
	return o, nil
}

// Validate reports whether o is acceptable without running anything.
func (o Options) Validate() error {
	_, err := o.withDefaults()
	return err
}

// Result is produced once per Optimize call and owned by the caller afterwards.
type Result struct {
	RouteID             string
	OriginalTour        Tour
	OptimizedTour       Tour
	OriginalDistanceKm  float64
	OptimizedDistanceKm float64
	DistanceSavedKm     float64
	TimeSavedMinutes    float64
	FuelSavedLiters     float64
	ImprovementPercent  float64
	Algorithm           Algorithm
	Applied             bool
	Message             string
	State               State
	Duration            time.Duration
}

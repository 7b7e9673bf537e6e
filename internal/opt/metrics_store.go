package opt

import "sync"

// RunStats aggregates the optimizations of one tenant, plan date and algorithm
// since process start.
type RunStats struct {
	Runs                   int     `json:"runs"`
	Applied                int     `json:"applied"`
	DistanceSavedKm        float64 `json:"distanceSavedKm"`
	BestImprovementPercent float64 `json:"bestImprovementPercent"`
}

type statsKey struct {
	Tenant   string
	PlanDate string
	Algo     Algorithm
}

var (
	mu    sync.Mutex
	stats = map[statsKey]RunStats{}
)

func RecordRun(tenant, planDate string, r Result) {
	mu.Lock()
	defer mu.Unlock()
	k := statsKey{Tenant: tenant, PlanDate: planDate, Algo: r.Algorithm}
	s := stats[k]
	s.Runs++
	if r.Applied {
		s.Applied++
	}
	s.DistanceSavedKm += r.DistanceSavedKm
	if r.ImprovementPercent > s.BestImprovementPercent {
		s.BestImprovementPercent = r.ImprovementPercent
	}
	stats[k] = s
}

func GetRunStats(tenant, planDate string) map[Algorithm]RunStats {
	mu.Lock()
	defer mu.Unlock()
	out := map[Algorithm]RunStats{}
	for k, v := range stats {
		if k.Tenant == tenant && k.PlanDate == planDate {
			out[k.Algo] = v
		}
	}
	return out
}

package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // OptimizationRuns counts single-route optimizations by algorithm and outcome (applied, returned, error)
    OptimizationRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimizations by algorithm and outcome."},
        []string{"algorithm", "outcome"},
    )
    OptimizationDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "route_optimization_duration_seconds", Help: "Route optimization duration in seconds.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}},
        []string{"algorithm"},
    )
    DistanceSavedKm = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_distance_saved_km_total", Help: "Kilometres saved by optimization."},
        []string{"algorithm"},
    )
    ImprovementPercent = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "route_improvement_percent", Help: "Improvement percent per optimization.", Buckets: []float64{0, 1, 2.5, 5, 10, 20, 40}},
        []string{"algorithm"},
    )

    // BatchRoutes counts routes processed by fleet-wide runs by status (optimized, failed)
    BatchRoutes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "batch_routes_total", Help: "Routes processed by batch optimization."},
        []string{"status"},
    )
    // NotifyDeliveries counts batch summary notifications by status
    NotifyDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "batch_notify_deliveries_total", Help: "Batch summary notifications by status."},
        []string{"status"},
    )
)

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(OptimizationRuns)
        Registry.MustRegister(OptimizationDuration)
        Registry.MustRegister(DistanceSavedKm)
        Registry.MustRegister(ImprovementPercent)
        Registry.MustRegister(BatchRoutes)
        Registry.MustRegister(NotifyDeliveries)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

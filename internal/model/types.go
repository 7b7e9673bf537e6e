package model

// API and persistence shapes for routes, stops and optimization runs.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type TimeWindow struct {
    Start string `json:"start"`
    End   string `json:"end"`
}

// Stop priorities accepted on input. Empty means NORMAL.
const (
    PriorityNormal = "NORMAL"
    PriorityHigh   = "HIGH"
    PriorityUrgent = "URGENT"
)

type StopIn struct {
    ID         string      `json:"id,omitempty"`
    Address    string      `json:"address,omitempty"`
    Location   *GeoPoint   `json:"location"`
    Priority   string      `json:"priority,omitempty"`
    TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
}

type RouteIn struct {
    ID        string    `json:"id,omitempty"`
    PlanDate  string    `json:"planDate"`
    VehicleID string    `json:"vehicleId,omitempty"`
    DriverID  string    `json:"driverId,omitempty"`
    Depot     *GeoPoint `json:"depot"`
    Stops     []StopIn  `json:"stops"`
}

type Stop struct {
    ID         string      `json:"id"`
    Seq        int         `json:"seq"`
    Address    string      `json:"address,omitempty"`
    Location   GeoPoint    `json:"location"`
    Priority   string      `json:"priority"`
    TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
}

// Route is a single vehicle tour. Stops are ordered by Seq.
type Route struct {
    ID          string   `json:"id"`
    TenantID    string   `json:"tenantId"`
    Version     int      `json:"version"`
    PlanDate    string   `json:"planDate"`
    Status      string   `json:"status"`
    VehicleID   string   `json:"vehicleId,omitempty"`
    DriverID    string   `json:"driverId,omitempty"`
    Depot       GeoPoint `json:"depot"`
    Stops       []Stop   `json:"stops"`
    OptimizedAt string   `json:"optimizedAt,omitempty"`
}

// StopIDs returns the stop identifiers in visiting order.
func (r Route) StopIDs() []string {
    ids := make([]string, len(r.Stops))
    for i, s := range r.Stops { ids[i] = s.ID }
    return ids
}

const (
    RouteStatusPlanned   = "planned"
    RouteStatusOptimized = "optimized"
)

// OptimizeParams is the optional body of POST /v1/routes/{id}/optimize.
// Zero fields fall back to the tenant config, then to engine defaults.
type OptimizeParams struct {
    Algorithm          string  `json:"algorithm,omitempty"`
    AutoApply          *bool   `json:"autoApply,omitempty"`
    PopulationSize     int     `json:"populationSize,omitempty"`
    Generations        int     `json:"generations,omitempty"`
    MutationRate       float64 `json:"mutationRate,omitempty"`
    InitialTemperature float64 `json:"initialTemperature,omitempty"`
    CoolingRate        float64 `json:"coolingRate,omitempty"`
    Seed               int64   `json:"seed,omitempty"`
}

type ApplyRequest struct {
    OptimizedOrder []string `json:"optimizedOrder"`
}

// OptimizationRun is the persisted outcome of one optimization call.
type OptimizationRun struct {
    ID                  string   `json:"id"`
    TenantID            string   `json:"tenantId"`
    RouteID             string   `json:"routeId"`
    Algorithm           string   `json:"algorithm"`
    OriginalDistanceKm  float64  `json:"originalDistanceKm"`
    OptimizedDistanceKm float64  `json:"optimizedDistanceKm"`
    DistanceSavedKm     float64  `json:"distanceSavedKm"`
    TimeSavedMinutes    float64  `json:"timeSavedMinutes"`
    FuelSavedLiters     float64  `json:"fuelSavedLiters"`
    ImprovementPercent  float64  `json:"improvementPercent"`
    Applied             bool     `json:"applied"`
    OptimizedOrder      []string `json:"optimizedOrder"`
    Message             string   `json:"message,omitempty"`
    DurationMs          int64    `json:"durationMs"`
    CreatedAt           string   `json:"createdAt"`
}

// OptimizerConfig holds per-tenant defaults for optimization calls.
type OptimizerConfig struct {
    Algorithm          string  `json:"algorithm,omitempty" yaml:"algorithm"`
    AutoApply          bool    `json:"autoApply" yaml:"autoApply"`
    PopulationSize     int     `json:"populationSize,omitempty" yaml:"populationSize"`
    Generations        int     `json:"generations,omitempty" yaml:"generations"`
    MutationRate       float64 `json:"mutationRate,omitempty" yaml:"mutationRate"`
    InitialTemperature float64 `json:"initialTemperature,omitempty" yaml:"initialTemperature"`
    CoolingRate        float64 `json:"coolingRate,omitempty" yaml:"coolingRate"`
}

// OptimizedStop is one entry of an optimization response, in the new visiting order.
type OptimizedStop struct {
    ID       string   `json:"id"`
    Seq      int      `json:"seq"`
    Location GeoPoint `json:"location"`
    Priority string   `json:"priority"`
}

// OptimizeResponse mirrors the engine result for API callers.
type OptimizeResponse struct {
    RunID               string          `json:"runId"`
    RouteID             string          `json:"routeId"`
    Algorithm           string          `json:"algorithm"`
    OriginalOrder       []string        `json:"originalOrder"`
    OptimizedStops      []OptimizedStop `json:"optimizedStops"`
    OriginalDistanceKm  float64         `json:"originalDistanceKm"`
    OptimizedDistanceKm float64         `json:"optimizedDistanceKm"`
    DistanceSavedKm     float64         `json:"distanceSavedKm"`
    TimeSavedMinutes    float64         `json:"timeSavedMinutes"`
    FuelSavedLiters     float64         `json:"fuelSavedLiters"`
    ImprovementPercent  float64         `json:"improvementPercent"`
    Applied             bool            `json:"applied"`
    Message             string          `json:"message"`
    State               string          `json:"state"`
    DurationMs          int64           `json:"durationMs"`
}

type BatchFailure struct {
    RouteID string `json:"routeId"`
    Error   string `json:"error"`
}

// BatchResponse is the fleet-wide optimization summary.
type BatchResponse struct {
    BatchID               string             `json:"batchId"`
    TenantID              string             `json:"tenantId"`
    PlanDate              string             `json:"planDate"`
    RoutesTotal           int                `json:"routesTotal"`
    RoutesOptimized       int                `json:"routesOptimized"`
    RoutesApplied         int                `json:"routesApplied"`
    TotalDistanceSavedKm  float64            `json:"totalDistanceSavedKm"`
    TotalTimeSavedMinutes float64            `json:"totalTimeSavedMinutes"`
    TotalFuelSavedLiters  float64            `json:"totalFuelSavedLiters"`
    EstimatedCostSavings  float64            `json:"estimatedCostSavings"`
    Results               []OptimizeResponse `json:"results"`
    Failures              []BatchFailure     `json:"failures,omitempty"`
    DurationMs            int64              `json:"durationMs"`
}

type TrafficEstimate struct {
    RouteID              string  `json:"routeId"`
    DistanceKm           float64 `json:"distanceKm"`
    BaseDurationMinutes  float64 `json:"baseDurationMinutes"`
    TrafficMultiplier    float64 `json:"trafficMultiplier"`
    ServiceMinutes       float64 `json:"serviceMinutes"`
    TotalDurationMinutes float64 `json:"totalDurationMinutes"`
    DepartureTime        string  `json:"departureTime"`
    EstimatedArrival     string  `json:"estimatedArrival"`
    TrafficLevel         string  `json:"trafficLevel"`
}

package opt

import "time"

const (
	UrbanSpeedKph         = 30.0
	ServiceMinutesPerStop = 5.0
)

type TrafficLevel string

const (
	TrafficHeavy    TrafficLevel = "HEAVY"
	TrafficModerate TrafficLevel = "MODERATE"
	TrafficLight    TrafficLevel = "LIGHT"
)

// hourlyTraffic maps departure hour to a duration multiplier. Hours not listed use 1.0.
var hourlyTraffic = map[int]float64{
	0: 0.8, 1: 0.8, 2: 0.8, 3: 0.8, 4: 0.8, 5: 0.8,
	7: 1.5, 8: 1.8, 9: 1.4,
	16: 1.3, 17: 1.6, 18: 1.7, 19: 1.3,
	22: 0.8, 23: 0.8,
}

// TrafficMultiplier returns the multiplier for an hour of day (0-23).
func TrafficMultiplier(hour int) float64 {
	if m, ok := hourlyTraffic[hour]; ok {
		return m
	}
	return 1.0
}

func trafficLevel(m float64) TrafficLevel {
	switch {
	case m >= 1.5:
		return TrafficHeavy
	case m >= 1.2:
		return TrafficModerate
	}
	return TrafficLight
}

type TrafficEstimate struct {
	DistanceKm           float64
	BaseDurationMinutes  float64
	TrafficMultiplier    float64
	ServiceMinutes       float64
	TotalDurationMinutes float64
	Departure            time.Time
	EstimatedArrival     time.Time
	TrafficLevel         TrafficLevel
}

// EstimateWithTraffic converts the tour length into a duration at urban speed,
// scaled by the departure hour's traffic multiplier plus a fixed service time per stop.
// The hour is taken in departure's own location.
func EstimateWithTraffic(depot Coordinate, tour Tour, departure time.Time) TrafficEstimate {
	dist := TourCost(depot, tour)
	base := dist / UrbanSpeedKph * 60
	mult := TrafficMultiplier(departure.Hour())
	service := float64(len(tour)) * ServiceMinutesPerStop
	total := base*mult + service
	return TrafficEstimate{
		DistanceKm:           dist,
		BaseDurationMinutes:  base,
		TrafficMultiplier:    mult,
		ServiceMinutes:       service,
		TotalDurationMinutes: total,
		Departure:            departure,
		EstimatedArrival:     departure.Add(time.Duration(total * float64(time.Minute))),
		TrafficLevel:         trafficLevel(mult),
	}
}

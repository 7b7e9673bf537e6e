package opt

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine model.
const EarthRadiusKm = 6371.0

// Coordinate is a (latitude, longitude) pair in decimal degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// TourCost is the length of the closed loop depot -> tour... -> depot.
// An empty tour costs nothing.
func TourCost(depot Coordinate, tour Tour) float64 {
	if len(tour) == 0 {
		return 0
	}
	total := 0.0
	cur := depot
	for _, s := range tour {
		total += DistanceKm(cur, s.Location)
		cur = s.Location
	}
	return total + DistanceKm(cur, depot)
}

package resolver

import "math"

const earthRadiusKm = 6371.0

// Distance thresholds in kilometres.
const (
	ConfirmedKm = 0.5
	CloseKm     = 2.0
	FarKm       = 50.0
)

// HaversineKm returns the great-circle distance between two points in degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

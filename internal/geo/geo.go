// Package geo provides great-circle distance math for geofence checks.
package geo

import "math"

// EarthRadiusM is the mean Earth radius used for the spherical model.
const EarthRadiusM = 6371000.0

// DistanceMeters returns the Haversine distance between two coordinates in
// meters. Inputs are degrees. The function is pure; callers are expected to
// validate that inputs are finite and within latitude/longitude ranges.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	latARad := latA * math.Pi / 180
	latBRad := latB * math.Pi / 180
	dLat := (latB - latA) * math.Pi / 180
	dLon := (lonB - lonA) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latARad)*math.Cos(latBRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// ValidCoordinate reports whether lat/lon form a usable coordinate pair.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

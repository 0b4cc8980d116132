// Package geo provides the navigation math used by location-based pages:
// great-circle distance, initial bearing, compass labels and travel estimates.
// All inputs are WGS-84 decimal degrees.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6_371_000.0

	// WalkingSpeedMetersPerSecond is the canonical walking speed (about 5 km/h).
	// Every travel estimate in the platform derives from this value.
	WalkingSpeedMetersPerSecond = 1.4

	// WalkingSpeedMetersPerMinute is WalkingSpeedMetersPerSecond expressed per minute.
	WalkingSpeedMetersPerMinute = WalkingSpeedMetersPerSecond * 60

	fullCircle    = 360.0
	compassSector = 45.0
)

// directions are the eight compass labels, clockwise from north.
var directions = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Coordinate is a WGS-84 position.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Guidance describes how to get from one coordinate to another on foot.
type Guidance struct {
	DistanceMeters float64 `json:"distance_meters"`
	Bearing        float64 `json:"bearing"`
	Direction      string  `json:"direction"`
	ETASeconds     int     `json:"eta_seconds"`
}

// DistanceMeters returns the haversine great-circle distance in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a slightly past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// BearingDegrees returns the initial bearing from point 1 to point 2,
// normalized to [0, 360).
func BearingDegrees(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lng2 - lng1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return normalizeBearing(toDegrees(math.Atan2(y, x)))
}

// BearingToDirection maps a bearing to one of the eight compass labels
// using round(bearing/45) mod 8. 360 maps to "N", same as 0.
func BearingToDirection(bearing float64) string {
	if math.IsNaN(bearing) || math.IsInf(bearing, 0) {
		return directions[0]
	}
	idx := int(math.Round(normalizeBearing(bearing)/compassSector)) % len(directions)
	return directions[idx]
}

// EstimatedTravelSeconds returns ceil(distance/speed). A non-positive speed
// falls back to WalkingSpeedMetersPerSecond.
func EstimatedTravelSeconds(distanceMeters, speedMetersPerSecond float64) int {
	if speedMetersPerSecond <= 0 {
		speedMetersPerSecond = WalkingSpeedMetersPerSecond
	}
	if distanceMeters <= 0 {
		return 0
	}
	return int(math.Ceil(distanceMeters / speedMetersPerSecond))
}

// Navigate computes walking guidance between two coordinates.
func Navigate(from, to Coordinate) Guidance {
	dist := DistanceMeters(from.Lat, from.Lng, to.Lat, to.Lng)
	bearing := BearingDegrees(from.Lat, from.Lng, to.Lat, to.Lng)
	return Guidance{
		DistanceMeters: dist,
		Bearing:        bearing,
		Direction:      BearingToDirection(bearing),
		ETASeconds:     EstimatedTravelSeconds(dist, WalkingSpeedMetersPerSecond),
	}
}

// WithinRadius reports whether pos lies within radiusMeters of target.
func WithinRadius(pos, target Coordinate, radiusMeters float64) bool {
	return DistanceMeters(pos.Lat, pos.Lng, target.Lat, target.Lng) <= radiusMeters
}

// ValidateCoordinate checks that lat/lng are finite and within WGS-84 ranges.
// The math functions never validate; callers that accept user input do.
func ValidateCoordinate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("coordinate must be finite: (%v, %v)", c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lng)
	}
	return nil
}

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, fullCircle)
	if b < 0 {
		b += fullCircle
	}
	// math.Mod of a tiny negative value can round back up to exactly 360.
	if b >= fullCircle {
		b = 0
	}
	return b
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

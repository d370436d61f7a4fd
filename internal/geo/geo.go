// Package geo associates coordinates with the nearest registered sensor.
package geo

import (
	"math"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// DefaultThresholdKm is the maximum distance for associating a location with a sensor.
const DefaultThresholdKm = 3.0

// Distance returns the haversine great-circle distance between a and b in kilometres.
func Distance(a, b models.Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Assign returns the id of the registered sensor closest to c, provided it
// lies within thresholdKm. Equidistant sensors resolve to the smaller id.
func Assign(c models.Coordinate, reg *registry.Registry, thresholdKm float64) (string, bool) {
	best := ""
	bestDist := math.Inf(1)
	for _, s := range reg.Sensors() {
		d := Distance(c, s.Location)
		if d > thresholdKm {
			continue
		}
		if d < bestDist || (d == bestDist && s.ID < best) {
			best, bestDist = s.ID, d
		}
	}
	return best, best != ""
}

// Package impact implements the proximity heuristic that estimates how
// placed cycling interventions change road traffic levels and the readings
// of nearby air-quality and noise sensors.
//
// Distances are planar Euclidean on raw degrees, which is only meaningful
// across an area of a few kilometres.
package impact

import (
	"math"

	"github.com/bikehood/twin/internal/domain"
)

const (
	// DefaultScale multiplies every proximity value.
	DefaultScale = 1.5
	// DefaultRoadThreshold is the proximity at or under which a marker affects a road vertex.
	DefaultRoadThreshold = 0.001
	// DefaultSensorThreshold is the proximity at or under which a marker affects a sensor.
	DefaultSensorThreshold = 0.002
	MinTrafficLevel        = 0
	MaxTrafficLevel        = 100
)

// Params tunes the accumulator
type Params struct {
	Scale           float64
	RoadThreshold   float64
	SensorThreshold float64
	MinLevel        float64
	MaxLevel        float64
}

// DefaultParams returns the thresholds used by the twin
func DefaultParams() Params {
	return Params{
		Scale:           DefaultScale,
		RoadThreshold:   DefaultRoadThreshold,
		SensorThreshold: DefaultSensorThreshold,
		MinLevel:        MinTrafficLevel,
		MaxLevel:        MaxTrafficLevel,
	}
}

// Proximity returns the scaled planar distance between two points in degrees
func Proximity(a, b domain.GeoPoint, scale float64) float64 {
	return scale * math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

package domain

import (
	"context"
	"time"
)

// DashboardData aggregates all live monitoring data
type DashboardData struct {
	Traffic     TrafficSnapshot    `json:"traffic"`
	Environment EnvironmentReading `json:"environment"`
	Noise       []NoiseReading     `json:"noise"`
	HourlyPM25  float64            `json:"hourly_avg_pm25"`
	DailyPM25   float64            `json:"daily_avg_pm25"`
	Timestamp   time.Time          `json:"timestamp"`
}

// DataRepository defines the interface for data persistence
// This follows the Dependency Inversion Principle - domain defines the interface
type DataRepository interface {
	// SaveTrafficSnapshot persists one level per road
	SaveTrafficSnapshot(ctx context.Context, snap TrafficSnapshot) error

	// SaveEnvironmentReading persists an air-quality observation
	SaveEnvironmentReading(ctx context.Context, reading EnvironmentReading) error

	// SaveNoiseReadings persists LAeq observations
	SaveNoiseReadings(ctx context.Context, readings []NoiseReading) error

	// LatestTraffic returns the most recent level of every road
	LatestTraffic(ctx context.Context) (TrafficSnapshot, error)

	// LatestEnvironment returns the most recent air-quality observation
	LatestEnvironment(ctx context.Context) (EnvironmentReading, error)

	// LatestNoise returns the most recent reading per location
	LatestNoise(ctx context.Context) ([]NoiseReading, error)

	// GetHistoricalTraffic retrieves traffic snapshots within a range
	GetHistoricalTraffic(ctx context.Context, from, to time.Time) ([]TrafficSnapshot, error)

	// GetHistoricalEnvironment retrieves air-quality history within a range
	GetHistoricalEnvironment(ctx context.Context, from, to time.Time) ([]EnvironmentReading, error)

	// AveragePM25 averages PM2.5 observations since the given time
	AveragePM25(ctx context.Context, since time.Time) (float64, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}

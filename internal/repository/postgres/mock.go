package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bikehood/twin/internal/domain"
)

// mockRetention bounds how long saved observations are kept in memory. It
// matches the longest historical range the API serves.
const mockRetention = 30 * 24 * time.Hour

// MockRepository implements domain.DataRepository in memory for testing/demo mode
type MockRepository struct {
	mu          sync.RWMutex
	traffic     []domain.TrafficSnapshot
	environment []domain.EnvironmentReading
	noise       []domain.NoiseReading
}

// NewMockRepository creates a mock repository seeded with one demo observation
// of each kind, dated a minute in the past.
func NewMockRepository() *MockRepository {
	ts := time.Now().Add(-time.Minute)

	levels := make(map[string]float64, len(domain.Roads))
	for _, r := range domain.Roads {
		levels[r.ID] = r.TrafficLevel
	}

	var noise []domain.NoiseReading
	for _, s := range domain.SensorsOfType(domain.SensorNoise) {
		noise = append(noise, domain.NoiseReading{Timestamp: ts, Location: s.ID, LAeq: 52, IsMock: true})
	}

	return &MockRepository{
		traffic: []domain.TrafficSnapshot{{Timestamp: ts, Levels: levels, IsMock: true}},
		environment: []domain.EnvironmentReading{{
			Timestamp:   ts,
			Location:    "Ongar",
			PM25:        45,
			Temperature: 9,
			Weather:     "overcast clouds",
			WindSpeed:   4.1,
			IsMock:      true,
		}},
		noise: noise,
	}
}

// NewEmptyMockRepository creates a mock repository with no data
func NewEmptyMockRepository() *MockRepository {
	return &MockRepository{}
}

// SaveTrafficSnapshot stores the snapshot in memory
func (r *MockRepository) SaveTrafficSnapshot(ctx context.Context, snap domain.TrafficSnapshot) error {
	levels := make(map[string]float64, len(snap.Levels))
	for k, v := range snap.Levels {
		levels[k] = v
	}
	snap.Levels = levels

	r.mu.Lock()
	r.traffic = append(trimBefore(r.traffic, snap.Timestamp.Add(-mockRetention), trafficTime), snap)
	r.mu.Unlock()
	return nil
}

// SaveEnvironmentReading stores the reading in memory
func (r *MockRepository) SaveEnvironmentReading(ctx context.Context, reading domain.EnvironmentReading) error {
	r.mu.Lock()
	r.environment = append(trimBefore(r.environment, reading.Timestamp.Add(-mockRetention), environmentTime), reading)
	r.mu.Unlock()
	return nil
}

// SaveNoiseReadings stores the readings in memory
func (r *MockRepository) SaveNoiseReadings(ctx context.Context, readings []domain.NoiseReading) error {
	var newest time.Time
	for _, n := range readings {
		if n.Timestamp.After(newest) {
			newest = n.Timestamp
		}
	}

	r.mu.Lock()
	r.noise = append(trimBefore(r.noise, newest.Add(-mockRetention), noiseTime), readings...)
	r.mu.Unlock()
	return nil
}

// LatestTraffic merges snapshots so every road reports its most recent level
func (r *MockRepository) LatestTraffic(ctx context.Context) (domain.TrafficSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := append([]domain.TrafficSnapshot(nil), r.traffic...)
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Timestamp.Before(snaps[j].Timestamp) })

	latest := domain.TrafficSnapshot{Levels: map[string]float64{}}
	for _, s := range snaps {
		for id, level := range s.Levels {
			latest.Levels[id] = level
		}
		latest.Timestamp = s.Timestamp
		latest.IsMock = s.IsMock
	}
	return latest, nil
}

// LatestEnvironment returns the newest reading, or a zero reading when empty
func (r *MockRepository) LatestEnvironment(ctx context.Context) (domain.EnvironmentReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest domain.EnvironmentReading
	for _, e := range r.environment {
		if !e.Timestamp.Before(latest.Timestamp) {
			latest = e
		}
	}
	return latest, nil
}

// LatestNoise returns the newest reading per location
func (r *MockRepository) LatestNoise(ctx context.Context) ([]domain.NoiseReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byLocation := make(map[string]domain.NoiseReading)
	for _, n := range r.noise {
		if cur, ok := byLocation[n.Location]; !ok || !n.Timestamp.Before(cur.Timestamp) {
			byLocation[n.Location] = n
		}
	}

	out := make([]domain.NoiseReading, 0, len(byLocation))
	for _, n := range byLocation {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// GetHistoricalTraffic returns stored snapshots within the range, newest first
func (r *MockRepository) GetHistoricalTraffic(ctx context.Context, from, to time.Time) ([]domain.TrafficSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.TrafficSnapshot
	for _, s := range r.traffic {
		if inRange(s.Timestamp, from, to) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// GetHistoricalEnvironment returns stored readings within the range, newest first
func (r *MockRepository) GetHistoricalEnvironment(ctx context.Context, from, to time.Time) ([]domain.EnvironmentReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.EnvironmentReading
	for _, e := range r.environment {
		if inRange(e.Timestamp, from, to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// AveragePM25 averages readings since the given time, zero when none
func (r *MockRepository) AveragePM25(ctx context.Context, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum float64
	var n int
	for _, e := range r.environment {
		if !e.Timestamp.Before(since) {
			sum += e.PM25
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

// trimBefore drops items older than cutoff, reusing the backing array
func trimBefore[T any](items []T, cutoff time.Time, at func(T) time.Time) []T {
	kept := items[:0]
	for _, item := range items {
		if !at(item).Before(cutoff) {
			kept = append(kept, item)
		}
	}
	clear(items[len(kept):])
	return kept
}

func trafficTime(s domain.TrafficSnapshot) time.Time        { return s.Timestamp }
func environmentTime(e domain.EnvironmentReading) time.Time { return e.Timestamp }
func noiseTime(n domain.NoiseReading) time.Time             { return n.Timestamp }

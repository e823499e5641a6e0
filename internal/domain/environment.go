package domain

import (
	"encoding/json"
	"time"
)

// EnvironmentReading represents a weather and air-quality observation
type EnvironmentReading struct {
	Timestamp   time.Time `json:"-"`
	Location    string    `json:"location"`
	PM25        float64   `json:"pm2_5"`
	Temperature float64   `json:"temperature"`
	Weather     string    `json:"weather"`
	WindSpeed   float64   `json:"wind_speed"`
	Rain        float64   `json:"rain"`
	IsMock      bool      `json:"is_mock"`
}

// NoiseReading represents an LAeq observation at a named location
type NoiseReading struct {
	Timestamp time.Time `json:"-"`
	Location  string    `json:"location"`
	LAeq      float64   `json:"laeq"`
	IsMock    bool      `json:"is_mock"`
}

// Baseline is the set of latest observations a simulation starts from
type Baseline struct {
	Traffic     TrafficSnapshot    `json:"traffic"`
	Environment EnvironmentReading `json:"environment"`
	Noise       []NoiseReading     `json:"noise"`
	LoadedAt    time.Time          `json:"loaded_at"`
}

// SensorReading resolves the baseline reading for a sensor. Air-quality
// sensors all read the area-wide PM2.5. Noise sensors use the reading whose
// location matches the sensor id, else the mean LAeq.
func (b Baseline) SensorReading(s SensorMarker) float64 {
	switch s.Type {
	case SensorAirQuality:
		return b.Environment.PM25
	case SensorNoise:
		var sum float64
		for _, n := range b.Noise {
			if n.Location == s.ID {
				return n.LAeq
			}
			sum += n.LAeq
		}
		if len(b.Noise) == 0 {
			return 0
		}
		return sum / float64(len(b.Noise))
	}
	return 0
}

// MarshalJSON emits the timestamp as unix seconds, matching the stored format
func (e EnvironmentReading) MarshalJSON() ([]byte, error) {
	type alias EnvironmentReading
	return json.Marshal(struct {
		alias
		Timestamp int64 `json:"timestamp"`
	}{alias: alias(e), Timestamp: e.Timestamp.Unix()})
}

// MarshalJSON emits the timestamp as unix seconds, matching the stored format
func (n NoiseReading) MarshalJSON() ([]byte, error) {
	type alias NoiseReading
	return json.Marshal(struct {
		alias
		Timestamp int64 `json:"timestamp"`
	}{alias: alias(n), Timestamp: n.Timestamp.Unix()})
}

package domain

import "time"

// TrafficSnapshot holds per-road traffic levels at a point in time
type TrafficSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Levels    map[string]float64 `json:"levels"`
	IsMock    bool               `json:"is_mock"`
}

// Flatten renders the snapshot the way the map client consumes it:
// a unix timestamp plus one key per road id.
func (s TrafficSnapshot) Flatten() map[string]any {
	out := make(map[string]any, len(s.Levels)+1)
	out["timestamp"] = s.Timestamp.Unix()
	for id, level := range s.Levels {
		out[id] = level
	}
	return out
}

// Level returns the traffic level for a road, zero when unknown
func (s TrafficSnapshot) Level(roadID string) float64 {
	if s.Levels == nil {
		return 0
	}
	return s.Levels[roadID]
}

// CongestionLevel returns a human-readable congestion label for a 0-100 level
func CongestionLevel(level float64) string {
	switch {
	case level >= 80:
		return "Severe"
	case level >= 60:
		return "Heavy"
	case level >= 40:
		return "Moderate"
	case level >= 20:
		return "Light"
	default:
		return "Free Flow"
	}
}

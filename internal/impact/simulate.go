package impact

import (
	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/pkg/utils"
)

// Mode selects how repeated simulation runs interact
type Mode string

const (
	// ModeBaseline resets every target and the ledger before each run, so
	// running twice without moving markers yields the same state.
	ModeBaseline Mode = "baseline"
	// ModeCumulative keeps the ledger between runs until an explicit reset.
	ModeCumulative Mode = "cumulative"
)

// ParseMode returns the mode for a config value, defaulting to ModeBaseline
func ParseMode(s string) Mode {
	if Mode(s) == ModeCumulative {
		return ModeCumulative
	}
	return ModeBaseline
}

// Input is the state one simulation pass reads
type Input struct {
	Markers []domain.InterventionMarker
	Roads   []domain.RoadSegment
	Sensors []domain.SensorMarker
}

// Application records one delta applied to one target
type Application struct {
	MarkerID string  `json:"marker_id"`
	TargetID string  `json:"target_id"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
}

// Result is the updated targets of a simulation pass
type Result struct {
	Roads   []domain.RoadSegment  `json:"roads"`
	Sensors []domain.SensorMarker `json:"sensors"`
	Applied []Application         `json:"applied"`
}

// Simulate applies every marker's impact to the roads and sensors within
// range. The input slices are not modified; the ledger is updated with each
// key that was applied.
func Simulate(in Input, ledger *Ledger, p Params) Result {
	roads := make([]domain.RoadSegment, len(in.Roads))
	copy(roads, in.Roads)
	sensors := make([]domain.SensorMarker, len(in.Sensors))
	copy(sensors, in.Sensors)

	var applied []Application

	for _, m := range in.Markers {
		for i := range roads {
			road := &roads[i]
			if !nearPolyline(m.Position, road.Geometry, p) {
				continue
			}
			key := NewKey(m.Position, road.ID)
			if ledger.Has(key) {
				continue
			}
			before := road.TrafficLevel
			road.TrafficLevel = utils.Clamp(before+m.Impact, p.MinLevel, p.MaxLevel)
			ledger.Record(key)
			applied = append(applied, Application{
				MarkerID: m.ID,
				TargetID: road.ID,
				Before:   before,
				After:    road.TrafficLevel,
			})
		}
	}

	for _, m := range in.Markers {
		for i := range sensors {
			s := &sensors[i]
			if Proximity(m.Position, s.Position, p.Scale) > p.SensorThreshold {
				continue
			}
			key := NewKey(m.Position, s.ID)
			if ledger.Has(key) {
				continue
			}
			before := s.Reading
			s.Reading = utils.ClampMin(before+sensorDelta(m, s.Type), 0)
			s.Icon = SensorIcon(*s)
			ledger.Record(key)
			applied = append(applied, Application{
				MarkerID: m.ID,
				TargetID: s.ID,
				Before:   before,
				After:    s.Reading,
			})
		}
	}

	return Result{Roads: roads, Sensors: sensors, Applied: applied}
}

// nearPolyline checks both ends of every consecutive vertex pair
func nearPolyline(pos domain.GeoPoint, geometry []domain.GeoPoint, p Params) bool {
	if len(geometry) == 1 {
		return Proximity(pos, geometry[0], p.Scale) <= p.RoadThreshold
	}
	for i := 0; i+1 < len(geometry); i++ {
		if Proximity(pos, geometry[i], p.Scale) <= p.RoadThreshold ||
			Proximity(pos, geometry[i+1], p.Scale) <= p.RoadThreshold {
			return true
		}
	}
	return false
}

func sensorDelta(m domain.InterventionMarker, t domain.SensorType) float64 {
	if t == domain.SensorNoise {
		return m.NoiseDelta
	}
	return m.PM25Delta
}

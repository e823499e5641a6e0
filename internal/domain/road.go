package domain

// RoadSpec is the static description of a monitored road
type RoadSpec struct {
	ID           string   `json:"id"`
	Start        GeoPoint `json:"start"`
	End          GeoPoint `json:"end"`
	TrafficLevel float64  `json:"traffic_level"`
}

// RoadSegment is a road with its routed geometry and current traffic level.
// TrafficLevel is kept within [0,100] by the impact accumulator; Baseline is
// the observed level a reset restores.
type RoadSegment struct {
	ID           string     `json:"id"`
	Start        GeoPoint   `json:"start"`
	End          GeoPoint   `json:"end"`
	Geometry     []GeoPoint `json:"geometry"`
	TrafficLevel float64    `json:"traffic_level"`
	Baseline     float64    `json:"baseline"`
	Routed       bool       `json:"routed"`
}

// StraightLine returns the two-vertex geometry used when routing fails
func (r RoadSpec) StraightLine() []GeoPoint {
	return []GeoPoint{r.Start, r.End}
}

// Roads is the road catalog for the Ongar twin
var Roads = []RoadSpec{
	{
		ID:           "littleplace_castleheaney_distributor_road_north",
		Start:        GeoPoint{Lat: 53.396809, Lng: -6.442519},
		End:          GeoPoint{Lat: 53.394976, Lng: -6.444193},
		TrafficLevel: 5,
	},
	{
		ID:           "littleplace_castleheaney_distributor_road_south",
		Start:        GeoPoint{Lat: 53.394976, Lng: -6.444193},
		End:          GeoPoint{Lat: 53.396809, Lng: -6.442519},
		TrafficLevel: 5,
	},
	{
		ID:           "main_street",
		Start:        GeoPoint{Lat: 53.395972, Lng: -6.442814},
		End:          GeoPoint{Lat: 53.395146, Lng: -6.438787},
		TrafficLevel: 5,
	},
	{
		ID:           "ongar_barnhill_distributor_road",
		Start:        GeoPoint{Lat: 53.392969, Lng: -6.445409},
		End:          GeoPoint{Lat: 53.394976, Lng: -6.444193},
		TrafficLevel: 5,
	},
	{
		ID:           "ongar_distributor_road",
		Start:        GeoPoint{Lat: 53.39398, Lng: -6.444686},
		End:          GeoPoint{Lat: 53.391576, Lng: -6.436851},
		TrafficLevel: 0,
	},
	{
		ID:           "the_mall",
		Start:        GeoPoint{Lat: 53.395146, Lng: -6.438787},
		End:          GeoPoint{Lat: 53.392384, Lng: -6.439096},
		TrafficLevel: 0,
	},
}

// RoadIDs returns the catalog road identifiers in catalog order
func RoadIDs() []string {
	ids := make([]string, 0, len(Roads))
	for _, r := range Roads {
		ids = append(ids, r.ID)
	}
	return ids
}

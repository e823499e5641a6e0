package domain

// InterventionKind describes a piece of cycling infrastructure a user can place
type InterventionKind struct {
	Name       string  `json:"name"`
	Icon       string  `json:"icon"`
	Impact     float64 `json:"impact"`
	NoiseDelta float64 `json:"noise_delta"`
	PM25Delta  float64 `json:"pm25_delta"`
}

// InterventionMarker is a user-placed intervention on the map
type InterventionMarker struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Icon       string   `json:"icon"`
	Position   GeoPoint `json:"position"`
	Impact     float64  `json:"impact"`
	NoiseDelta float64  `json:"noise_delta"`
	PM25Delta  float64  `json:"pm25_delta"`
}

// InterventionKinds is the toolbox catalog
var InterventionKinds = []InterventionKind{
	{Name: "Bike", Icon: "/bike.png", Impact: 2, NoiseDelta: -1, PM25Delta: -1},
	{Name: "Bike Pump", Icon: "/bikepump.png", Impact: 1, NoiseDelta: -1, PM25Delta: -0.5},
	{Name: "Bike Rack", Icon: "/Bikerack.png", Impact: 1.5, NoiseDelta: -1.5, PM25Delta: -1},
	{Name: "Bike Repair Wall Mount", Icon: "/bikerepairwallmount.png", Impact: 1, NoiseDelta: -1, PM25Delta: -0.75},
	{Name: "Bike Shed", Icon: "/bikeshed.png", Impact: 2, NoiseDelta: -2, PM25Delta: -1.5},
}

// FindKind looks up an intervention kind by name or icon path
func FindKind(name string) (InterventionKind, bool) {
	for _, k := range InterventionKinds {
		if k.Name == name || k.Icon == name {
			return k, true
		}
	}
	return InterventionKind{}, false
}

// NewMarker places an intervention of the given kind at a position
func NewMarker(id string, kind InterventionKind, pos GeoPoint) InterventionMarker {
	return InterventionMarker{
		ID:         id,
		Kind:       kind.Name,
		Icon:       kind.Icon,
		Position:   pos,
		Impact:     kind.Impact,
		NoiseDelta: kind.NoiseDelta,
		PM25Delta:  kind.PM25Delta,
	}
}

package domain

// GeoPoint is a latitude/longitude pair in decimal degrees
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the WGS84 coordinate range
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Midpoint returns the planar midpoint between two points
func Midpoint(a, b GeoPoint) GeoPoint {
	return GeoPoint{
		Lat: (a.Lat + b.Lat) / 2,
		Lng: (a.Lng + b.Lng) / 2,
	}
}

// OngarCenter coordinates
const (
	OngarCenterLat = 53.392862
	OngarCenterLng = -6.441783
)

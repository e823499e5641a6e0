package domain

// SensorType tags an environmental sensor
type SensorType string

const (
	SensorAirQuality SensorType = "air_quality"
	SensorNoise      SensorType = "noise_pollution"
)

// SensorMarker is a fixed-location environmental sensor.
// Reading is PM2.5 for air-quality sensors and LAeq for noise sensors.
type SensorMarker struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     SensorType `json:"type"`
	Position GeoPoint   `json:"position"`
	Reading  float64    `json:"reading"`
	Baseline float64    `json:"baseline"`
	Icon     string     `json:"icon"`
}

// Sensors is the static sensor catalog
var Sensors = []SensorMarker{
	{ID: "roundabout_1", Name: "Roundabout 1", Type: SensorAirQuality, Position: GeoPoint{Lat: 53.392255, Lng: -6.439375}, Icon: "/AqMarkerRed.png"},
	{ID: "roundabout_2", Name: "Roundabout 2", Type: SensorAirQuality, Position: GeoPoint{Lat: 53.393649, Lng: -6.444996}, Icon: "/AqMarkerRed.png"},
	{ID: "school", Name: "School", Type: SensorAirQuality, Position: GeoPoint{Lat: 53.393612, Lng: -6.441539}, Icon: "/AqMarkerRed.png"},
	{ID: "shopping_district_aq", Name: "Shopping District AQ", Type: SensorAirQuality, Position: GeoPoint{Lat: 53.39531, Lng: -6.439754}, Icon: "/AqMarkerRed.png"},
	{ID: "playground_np", Name: "Playground NP", Type: SensorNoise, Position: GeoPoint{Lat: 53.392754, Lng: -6.439675}, Icon: "/NpMarkerRed.png"},
	{ID: "ongar_west_np", Name: "Ongar West NP", Type: SensorNoise, Position: GeoPoint{Lat: 53.395396, Lng: -6.44467}, Icon: "/NpMarkerRed.png"},
	{ID: "shopping_district_np", Name: "Shopping District NP", Type: SensorNoise, Position: GeoPoint{Lat: 53.39551, Lng: -6.438324}, Icon: "/NpMarkerRed.png"},
}

// SensorsOfType filters the sensor catalog
func SensorsOfType(t SensorType) []SensorMarker {
	var out []SensorMarker
	for _, s := range Sensors {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

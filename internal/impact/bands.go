package impact

import "github.com/bikehood/twin/internal/domain"

// AirQualityIcon picks the sensor icon for a PM2.5 concentration
func AirQualityIcon(pm25 float64) string {
	switch {
	case pm25 <= 40:
		return "/AqMarkerGreen.png"
	case pm25 <= 47:
		return "/AqMarkerYellow.png"
	case pm25 <= 51:
		return "/AqMarkerOrange.png"
	default:
		return "/AqMarkerRed.png"
	}
}

// NoiseIcon picks the sensor icon for an LAeq level
func NoiseIcon(laeq float64) string {
	switch {
	case laeq <= 45:
		return "/NpMarkerGreen.png"
	case laeq <= 50:
		return "/NpMarkerYellow.png"
	case laeq <= 55:
		return "/NpMarkerOrange.png"
	default:
		return "/NpMarkerRed.png"
	}
}

// SensorIcon picks the icon for a sensor's current reading
func SensorIcon(s domain.SensorMarker) string {
	if s.Type == domain.SensorNoise {
		return NoiseIcon(s.Reading)
	}
	return AirQualityIcon(s.Reading)
}

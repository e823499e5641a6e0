package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
)

// WeatherService fetches weather and air-quality observations for Ongar
type WeatherService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	now        func() time.Time
}

// NewWeatherService creates a new weather service
func NewWeatherService(apiKey, baseURL string, log zerolog.Logger) *WeatherService {
	return &WeatherService{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

// OpenWeatherResponse represents the OpenWeatherMap current weather response
type OpenWeatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Name string `json:"name"`
}

// AirPollutionResponse represents the OpenWeatherMap air pollution response
type AirPollutionResponse struct {
	List []struct {
		Components struct {
			PM25 float64 `json:"pm2_5"`
		} `json:"components"`
	} `json:"list"`
}

// CurrentEnvironment fetches current weather and PM2.5 at the Ongar centre.
// Any upstream failure yields the seasonal mock reading.
func (s *WeatherService) CurrentEnvironment(ctx context.Context) (domain.EnvironmentReading, error) {
	// Return mock data if no API key
	if s.apiKey == "" {
		return s.mockReading(), nil
	}

	var weather OpenWeatherResponse
	if err := s.get(ctx, "/data/2.5/weather", true, &weather); err != nil {
		s.log.Warn().Err(err).Msg("weather fetch failed, using mock reading")
		return s.mockReading(), nil
	}

	var air AirPollutionResponse
	if err := s.get(ctx, "/data/2.5/air_pollution", false, &air); err != nil {
		s.log.Warn().Err(err).Msg("air pollution fetch failed, using mock reading")
		return s.mockReading(), nil
	}

	reading := domain.EnvironmentReading{
		Timestamp:   s.now(),
		Location:    "Ongar",
		Temperature: weather.Main.Temp,
		WindSpeed:   weather.Wind.Speed,
		Rain:        weather.Rain.OneHour,
	}
	if weather.Name != "" {
		reading.Location = weather.Name
	}
	if len(weather.Weather) > 0 {
		reading.Weather = weather.Weather[0].Description
	}
	if len(air.List) > 0 {
		reading.PM25 = air.List[0].Components.PM25
	}

	return reading, nil
}

func (s *WeatherService) get(ctx context.Context, path string, metric bool, out any) error {
	q := url.Values{}
	q.Set("lat", formatCoord(domain.OngarCenterLat))
	q.Set("lon", formatCoord(domain.OngarCenterLng))
	q.Set("appid", s.apiKey)
	if metric {
		q.Set("units", "metric")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weather: failed to decode response: %w", err)
	}
	return nil
}

// mockReading returns simulated seasonal conditions for Ongar
func (s *WeatherService) mockReading() domain.EnvironmentReading {
	now := s.now()
	var temp, pm25, wind, rain float64
	var description string

	switch month := now.Month(); {
	case month >= 12 || month <= 2: // Winter, solid fuel heating
		temp, pm25, wind, rain = 5, 52, 6.2, 0.8
		description = "light rain"
	case month >= 3 && month <= 5:
		temp, pm25, wind, rain = 10, 41, 5.1, 0.3
		description = "broken clouds"
	case month >= 6 && month <= 8:
		temp, pm25, wind, rain = 17, 35, 3.9, 0
		description = "scattered clouds"
	default:
		temp, pm25, wind, rain = 11, 46, 5.6, 0.5
		description = "overcast clouds"
	}

	return domain.EnvironmentReading{
		Timestamp:   now,
		Location:    "Ongar",
		PM25:        pm25,
		Temperature: temp,
		Weather:     description,
		WindSpeed:   wind,
		Rain:        rain,
		IsMock:      true,
	}
}

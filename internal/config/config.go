// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	CORSOrigins string

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	TomTomAPIKey      string
	OpenWeatherAPIKey string
	TomTomBaseURL     string
	OpenWeatherURL    string

	SUMOBaseURL      string
	SUMOWebSocketURL string
	SimulatorLogSize int

	SimulationMode  string
	ProximityScale  float64
	RouteFetchDelay time.Duration
	RouteCacheSize  int
	BaselineRefresh time.Duration
	CollectInterval time.Duration
	SessionTTL      time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "bikehood.db")

	v.SetDefault("TOMTOM_API_KEY", "")
	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("TOMTOM_BASE_URL", "https://api.tomtom.com")
	v.SetDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org")

	v.SetDefault("SUMO_BASE_URL", "http://localhost:5000")
	v.SetDefault("SUMO_WS_URL", "ws://localhost:5678")
	v.SetDefault("SIMULATOR_LOG_SIZE", 500)

	v.SetDefault("SIMULATION_MODE", "baseline")
	v.SetDefault("SIMULATION_PROXIMITY_SCALE", 1.5)
	v.SetDefault("ROUTE_FETCH_DELAY", "500ms")
	v.SetDefault("ROUTE_CACHE_SIZE", 1024)
	v.SetDefault("BASELINE_REFRESH_INTERVAL", "60s")
	v.SetDefault("COLLECT_INTERVAL", "15m")
	v.SetDefault("SESSION_TTL", "2h")
}

// Load reads the given .env files (missing files are ignored) and then the
// process environment. It reports whether any .env file was loaded.
func Load(envFiles ...string) (*Config, bool) {
	loaded := false
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			loaded = true
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return FromViper(v), loaded
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:        v.GetString("PORT"),
		Env:         v.GetString("GO_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		CORSOrigins: v.GetString("CORS_ORIGINS"),

		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseURL: v.GetString("DATABASE_URL"),
		SQLitePath:  v.GetString("SQLITE_PATH"),

		TomTomAPIKey:      v.GetString("TOMTOM_API_KEY"),
		OpenWeatherAPIKey: v.GetString("OPENWEATHER_API_KEY"),
		TomTomBaseURL:     strings.TrimRight(v.GetString("TOMTOM_BASE_URL"), "/"),
		OpenWeatherURL:    strings.TrimRight(v.GetString("OPENWEATHER_BASE_URL"), "/"),

		SUMOBaseURL:      strings.TrimRight(v.GetString("SUMO_BASE_URL"), "/"),
		SUMOWebSocketURL: v.GetString("SUMO_WS_URL"),
		SimulatorLogSize: v.GetInt("SIMULATOR_LOG_SIZE"),

		SimulationMode:  v.GetString("SIMULATION_MODE"),
		ProximityScale:  v.GetFloat64("SIMULATION_PROXIMITY_SCALE"),
		RouteFetchDelay: v.GetDuration("ROUTE_FETCH_DELAY"),
		RouteCacheSize:  v.GetInt("ROUTE_CACHE_SIZE"),
		BaselineRefresh: v.GetDuration("BASELINE_REFRESH_INTERVAL"),
		CollectInterval: v.GetDuration("COLLECT_INTERVAL"),
		SessionTTL:      v.GetDuration("SESSION_TTL"),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

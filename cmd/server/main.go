package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/config"
	"github.com/bikehood/twin/internal/delivery/http"
	"github.com/bikehood/twin/internal/impact"
	"github.com/bikehood/twin/internal/logging"
	"github.com/bikehood/twin/internal/repository/postgres"
	"github.com/bikehood/twin/internal/repository/sqlite"
	"github.com/bikehood/twin/internal/service"
	"github.com/bikehood/twin/internal/telemetry"
)

func main() {
	// Configuration
	cfg, envLoaded := config.Load(".env")
	log := logging.New(os.Stdout, cfg.LogLevel, !cfg.IsProduction())
	if !envLoaded {
		log.Info().Msg("No .env file found, using system environment")
	}

	// Dependency Injection: Repositories
	dataRepo, closeRepo := openRepository(cfg, log)
	defer closeRepo()

	metrics := telemetry.Noop()

	params := impact.DefaultParams()
	if cfg.ProximityScale > 0 {
		params.Scale = cfg.ProximityScale
	}
	mode := impact.ParseMode(cfg.SimulationMode)

	// Dependency Injection: Services
	routeSvc, err := service.NewRouteService(
		cfg.TomTomAPIKey, cfg.TomTomBaseURL, cfg.RouteCacheSize, cfg.RouteFetchDelay,
		logging.Component(log, "route"), metrics,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create route service")
	}
	trafficSvc := service.NewTrafficService(cfg.TomTomAPIKey, cfg.TomTomBaseURL, logging.Component(log, "traffic"))
	weatherSvc := service.NewWeatherService(cfg.OpenWeatherAPIKey, cfg.OpenWeatherURL, logging.Component(log, "weather"))
	collectorSvc := service.NewCollectorService(
		trafficSvc, weatherSvc, dataRepo, cfg.CollectInterval,
		logging.Component(log, "collector"), metrics,
	)
	dashboardSvc := service.NewDashboardService(dataRepo, logging.Component(log, "dashboard"))
	twinSvc := service.NewTwinService(
		dataRepo, routeSvc, mode, params, cfg.SessionTTL,
		logging.Component(log, "twin"), metrics,
	)
	simulator := service.NewSimulatorBridge(
		cfg.SUMOBaseURL, cfg.SUMOWebSocketURL, cfg.SimulatorLogSize,
		logging.Component(log, "simulator"),
	)

	// Background workers
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wgBg sync.WaitGroup
	background := func(fn func(context.Context)) {
		wgBg.Add(1)
		go func() {
			defer wgBg.Done()
			fn(bgCtx)
		}()
	}
	background(func(ctx context.Context) {
		if err := twinSvc.RefreshBaseline(ctx); err != nil {
			log.Warn().Err(err).Msg("initial baseline load incomplete")
		}
		twinSvc.Run(ctx, cfg.BaselineRefresh)
	})
	background(collectorSvc.Run)
	background(simulator.Run)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "BikeHood Twin API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	handler := http.NewHandler(dashboardSvc, twinSvc, simulator, dataRepo, logging.Component(log, "http"))
	http.SetupRoutes(app, handler)

	// Graceful shutdown
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("mode", string(mode)).
			Float64("proximity_scale", params.Scale).
			Msg("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stopBackground()
	wgBg.Wait()
	log.Info().Msg("Server exited gracefully")
}

// openRepository picks the storage backend from DB_DRIVER and falls back to
// the in-memory mock when it cannot be reached
func openRepository(cfg *config.Config, log zerolog.Logger) (service.DataRepository, func()) {
	noop := func() {}

	switch cfg.DBDriver {
	case "mock":
		log.Info().Msg("Running with mock data only")
		return postgres.NewMockRepository(), noop

	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("Could not open SQLite database, running with mock data only")
			return postgres.NewMockRepository(), noop
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Using local SQLite DB")
		return repo, func() {
			if err := repo.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close SQLite database")
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err == nil {
		err = pool.Ping(ctx)
		if err != nil {
			pool.Close()
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("Could not connect to database, running with mock data only")
		return postgres.NewMockRepository(), noop
	}

	repo := postgres.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Warn().Err(err).Msg("schema migration failed")
	}
	log.Info().Msg("Connected to PostgreSQL")
	return repo, pool.Close
}

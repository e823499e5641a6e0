package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check
	app.Get("/health", handler.HealthCheck)

	api := app.Group("/api")
	{
		api.Get("/ping", handler.Ping)
		api.Get("/dashboard", handler.GetDashboard)

		api.Get("/traffic/latest", handler.GetLatestTraffic)
		api.Get("/traffic/historical", handler.GetHistoricalTraffic)

		api.Get("/environment/latest", handler.GetLatestEnvironment)
		api.Get("/environment/historical", handler.GetHistoricalEnvironment)
		api.Get("/environment/hourly-average-pm25", handler.GetHourlyAveragePM25)
		api.Get("/environment/daily-average-pm25", handler.GetDailyAveragePM25)
		api.Post("/environment/updateTraffic", handler.UpdateTraffic)

		api.Get("/noise/latest", handler.GetLatestNoise)
	}

	twin := api.Group("/twin")
	{
		twin.Get("/catalog", handler.GetCatalog)
		twin.Post("/sessions", handler.CreateSession)
		twin.Get("/sessions/:id", handler.GetSession)
		twin.Delete("/sessions/:id", handler.DeleteSession)
		twin.Post("/sessions/:id/markers", handler.AddMarker)
		twin.Patch("/sessions/:id/markers/:markerId", handler.MoveMarker)
		twin.Delete("/sessions/:id/markers/:markerId", handler.RemoveMarker)
		twin.Post("/sessions/:id/simulate", handler.Simulate)
		twin.Post("/sessions/:id/reset", handler.Reset)
		twin.Get("/sessions/:id/routes", handler.GetRoutes)
	}

	sim := api.Group("/simulator")
	{
		sim.Get("/scenario", handler.GetScenario)
		sim.Get("/health", handler.SimulatorHealth)
		sim.Get("/messages", handler.GetSimulatorMessages)
	}

	app.Use("/ws", RequireUpgrade)
	app.Get("/ws/simulator", websocket.New(handler.SimulatorStream))
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/internal/service"
)

// maxHistorySpan bounds historical queries
const maxHistorySpan = 30 * 24 * time.Hour

// Handler contains all HTTP handlers
type Handler struct {
	dashboardSvc *service.DashboardService
	twinSvc      *service.TwinService
	simulator    *service.SimulatorBridge
	repo         service.DataRepository
	log          zerolog.Logger
}

// NewHandler creates a new handler
func NewHandler(
	dashboardSvc *service.DashboardService,
	twinSvc *service.TwinService,
	simulator *service.SimulatorBridge,
	repo service.DataRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		dashboardSvc: dashboardSvc,
		twinSvc:      twinSvc,
		simulator:    simulator,
		repo:         repo,
		log:          log,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status, database := "ok", "ok"
	if err := h.repo.Health(c.Context()); err != nil {
		h.log.Warn().Err(err).Msg("database health check failed")
		status, database = "degraded", "unavailable"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"service":   "bikehood-twin",
		"version":   "1.0.0",
		"database":  database,
		"sessions":  h.twinSvc.SessionCount(),
		"simulator": h.simulator.Connected(),
	})
}

// Ping answers liveness checks
func (h *Handler) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "pong"})
}

// GetDashboard returns aggregated live data
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	data, err := h.dashboardSvc.GetDashboardData(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch dashboard data")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// GetLatestTraffic returns the newest level per road as a flat object
func (h *Handler) GetLatestTraffic(c *fiber.Ctx) error {
	snap, err := h.dashboardSvc.LatestTraffic(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("latest traffic query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch traffic data")
	}
	return c.JSON(snap.Flatten())
}

// GetHistoricalTraffic returns traffic history within a time range
func (h *Handler) GetHistoricalTraffic(c *fiber.Ctx) error {
	from, to, err := parseTimeRange(c)
	if err != nil {
		return err
	}

	snaps, err := h.dashboardSvc.HistoricalTraffic(c.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("traffic history query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch traffic history")
	}

	data := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		data = append(data, s.Flatten())
	}

	return c.JSON(fiber.Map{
		"data":  data,
		"count": len(data),
	})
}

// GetLatestEnvironment returns the newest air-quality observation
func (h *Handler) GetLatestEnvironment(c *fiber.Ctx) error {
	reading, err := h.dashboardSvc.LatestEnvironment(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("latest environment query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch environment data")
	}
	return c.JSON(reading)
}

// GetHistoricalEnvironment returns environment history within a time range
func (h *Handler) GetHistoricalEnvironment(c *fiber.Ctx) error {
	from, to, err := parseTimeRange(c)
	if err != nil {
		return err
	}

	data, err := h.dashboardSvc.HistoricalEnvironment(c.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("environment history query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch environment history")
	}
	if data == nil {
		data = []domain.EnvironmentReading{}
	}

	return c.JSON(fiber.Map{
		"data":  data,
		"count": len(data),
	})
}

// GetHourlyAveragePM25 averages PM2.5 over the last hour
func (h *Handler) GetHourlyAveragePM25(c *fiber.Ctx) error {
	avg, err := h.dashboardSvc.HourlyAveragePM25(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("hourly pm2.5 query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to average PM2.5")
	}
	return c.JSON(fiber.Map{"avg_pm25": avg})
}

// GetDailyAveragePM25 averages PM2.5 over the last 24 hours
func (h *Handler) GetDailyAveragePM25(c *fiber.Ctx) error {
	avg, err := h.dashboardSvc.DailyAveragePM25(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("daily pm2.5 query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to average PM2.5")
	}
	return c.JSON(fiber.Map{"avg_pm25": avg})
}

// GetLatestNoise returns the newest reading per noise sensor
func (h *Handler) GetLatestNoise(c *fiber.Ctx) error {
	data, err := h.dashboardSvc.LatestNoise(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("latest noise query failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch noise data")
	}
	if data == nil {
		data = []domain.NoiseReading{}
	}
	return c.JSON(fiber.Map{"data": data})
}

type updateTrafficRequest struct {
	MarkerPosition *domain.GeoPoint `json:"markerPosition"`
}

// UpdateTraffic previews the effect of one bike marker on current traffic
func (h *Handler) UpdateTraffic(c *fiber.Ctx) error {
	var req updateTrafficRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.MarkerPosition == nil {
		return fiber.NewError(fiber.StatusBadRequest, "markerPosition is required")
	}

	snap, err := h.twinSvc.UpdateTraffic(c.Context(), *req.MarkerPosition)
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(snap.Flatten())
}

// parseTimeRange reads start_time/end_time as unix seconds, defaulting to
// the last 24 hours
func parseTimeRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now()
	end, err := unixQuery(c, "end_time", now.Unix())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := unixQuery(c, "start_time", now.Add(-24*time.Hour).Unix())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	from, to := time.Unix(start, 0), time.Unix(end, 0)
	if from.After(to) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "start_time must not be after end_time")
	}
	if to.Sub(from) > maxHistorySpan {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "time range must not exceed 30 days")
	}
	return from, to, nil
}

// unixQuery reads a unix-seconds query parameter, def when it is absent
func unixQuery(c *fiber.Ctx, key string, def int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, key+" must be unix seconds")
	}
	return v, nil
}

// serviceError maps service sentinels to HTTP errors
func (h *Handler) serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrMarkerNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownKind), errors.Is(err, service.ErrInvalidPosition):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Internal Server Error")
	}
}

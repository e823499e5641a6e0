package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bikehood/twin/internal/domain"
)

type addMarkerRequest struct {
	Kind string   `json:"kind"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

type moveMarkerRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func position(lat, lng *float64) (domain.GeoPoint, error) {
	if lat == nil || lng == nil {
		return domain.GeoPoint{}, fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
	}
	return domain.GeoPoint{Lat: *lat, Lng: *lng}, nil
}

// GetCatalog lists intervention kinds, roads and sensors
func (h *Handler) GetCatalog(c *fiber.Ctx) error {
	return c.JSON(h.twinSvc.Catalog())
}

// CreateSession starts a new twin session
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	state := h.twinSvc.CreateSession(c.Context())
	return c.Status(fiber.StatusCreated).JSON(state)
}

// GetSession returns a session's markers, roads and sensors
func (h *Handler) GetSession(c *fiber.Ctx) error {
	state, err := h.twinSvc.GetSession(c.Params("id"))
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(state)
}

// DeleteSession discards a session
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	if err := h.twinSvc.DeleteSession(c.Params("id")); err != nil {
		return h.serviceError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddMarker drops an intervention onto the map
func (h *Handler) AddMarker(c *fiber.Ctx) error {
	var req addMarkerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	pos, err := position(req.Lat, req.Lng)
	if err != nil {
		return err
	}

	marker, err := h.twinSvc.AddMarker(c.Params("id"), req.Kind, pos)
	if err != nil {
		return h.serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(marker)
}

// MoveMarker drags a marker to a new position
func (h *Handler) MoveMarker(c *fiber.Ctx) error {
	var req moveMarkerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	pos, err := position(req.Lat, req.Lng)
	if err != nil {
		return err
	}

	marker, err := h.twinSvc.MoveMarker(c.Params("id"), c.Params("markerId"), pos)
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(marker)
}

// RemoveMarker deletes a marker
func (h *Handler) RemoveMarker(c *fiber.Ctx) error {
	if err := h.twinSvc.RemoveMarker(c.Params("id"), c.Params("markerId")); err != nil {
		return h.serviceError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Simulate applies the session's markers
func (h *Handler) Simulate(c *fiber.Ctx) error {
	out, err := h.twinSvc.Simulate(c.Context(), c.Params("id"))
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(out)
}

// Reset restores a session to the latest observations
func (h *Handler) Reset(c *fiber.Ctx) error {
	state, err := h.twinSvc.Reset(c.Context(), c.Params("id"))
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(state)
}

// GetRoutes returns the session's roads as GeoJSON
func (h *Handler) GetRoutes(c *fiber.Ctx) error {
	fc, err := h.twinSvc.Routes(c.Params("id"))
	if err != nil {
		return h.serviceError(err)
	}
	return c.JSON(fc)
}

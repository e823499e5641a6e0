package service

import (
	"errors"

	"github.com/bikehood/twin/internal/domain"
)

// DataRepository is re-exported from domain for convenience
type DataRepository = domain.DataRepository

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMarkerNotFound   = errors.New("marker not found")
	ErrUnknownKind      = errors.New("unknown intervention kind")
	ErrInvalidPosition  = errors.New("invalid position")
	ErrRateLimited      = errors.New("route provider rate limit exceeded")
	ErrRouteUnavailable = errors.New("route unavailable")
)

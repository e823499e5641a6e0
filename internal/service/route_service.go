package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/internal/telemetry"
)

// RouteService resolves road geometry through the TomTom routing API
type RouteService struct {
	apiKey     string
	baseURL    string
	delay      time.Duration
	httpClient *http.Client
	cache      *lru.Cache[string, []domain.GeoPoint]
	log        zerolog.Logger
	metrics    *telemetry.Metrics
}

// NewRouteService creates a route service with a bounded geometry cache
func NewRouteService(
	apiKey, baseURL string,
	cacheSize int,
	delay time.Duration,
	log zerolog.Logger,
	metrics *telemetry.Metrics,
) (*RouteService, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, []domain.GeoPoint](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("route: failed to create cache: %w", err)
	}

	return &RouteService{
		apiKey:  apiKey,
		baseURL: baseURL,
		delay:   delay,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:   cache,
		log:     log,
		metrics: metrics,
	}, nil
}

// calculateRouteResponse is the subset of the TomTom response we read
type calculateRouteResponse struct {
	Routes []struct {
		Legs []struct {
			Points []struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"points"`
		} `json:"legs"`
	} `json:"routes"`
}

// RouteKey identifies a start/end pair in the cache
func RouteKey(start, end domain.GeoPoint) string {
	return formatCoord(start.Lat) + "," + formatCoord(start.Lng) + "-" +
		formatCoord(end.Lat) + "," + formatCoord(end.Lng)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Cached returns the cached geometry for a pair, if any
func (s *RouteService) Cached(start, end domain.GeoPoint) ([]domain.GeoPoint, bool) {
	return s.cache.Get(RouteKey(start, end))
}

// Route fetches the geometry between two points, serving from the cache
// when possible. Only successful responses are cached.
func (s *RouteService) Route(ctx context.Context, start, end domain.GeoPoint) ([]domain.GeoPoint, error) {
	key := RouteKey(start, end)
	if points, ok := s.cache.Get(key); ok {
		return points, nil
	}
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: no routing api key", ErrRouteUnavailable)
	}

	endpoint := fmt.Sprintf("%s/routing/1/calculateRoute/%s,%s:%s,%s/json?key=%s&traffic=true",
		s.baseURL,
		formatCoord(start.Lat), formatCoord(start.Lng),
		formatCoord(end.Lat), formatCoord(end.Lng),
		url.QueryEscape(s.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("route: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrRouteUnavailable, resp.StatusCode)
	}

	var body calculateRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("route: failed to decode response: %w", err)
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 || len(body.Routes[0].Legs[0].Points) == 0 {
		return nil, fmt.Errorf("%w: empty route", ErrRouteUnavailable)
	}

	raw := body.Routes[0].Legs[0].Points
	points := make([]domain.GeoPoint, 0, len(raw))
	for _, p := range raw {
		points = append(points, domain.GeoPoint{Lat: p.Latitude, Lng: p.Longitude})
	}

	s.cache.Add(key, points)
	return points, nil
}

// ResolveAll builds road segments for the catalog entries in order. Uncached
// routes are fetched one at a time with the configured delay between
// requests; any road whose route cannot be fetched gets straight-line
// geometry. When ctx is cancelled the remaining roads fall back to straight
// lines and ctx.Err() is returned alongside the segments.
func (s *RouteService) ResolveAll(ctx context.Context, roads []domain.RoadSpec) ([]domain.RoadSegment, error) {
	segments := make([]domain.RoadSegment, 0, len(roads))
	fetched := 0
	var ctxErr error

	for _, road := range roads {
		seg := domain.RoadSegment{
			ID:           road.ID,
			Start:        road.Start,
			End:          road.End,
			Geometry:     road.StraightLine(),
			TrafficLevel: road.TrafficLevel,
			Baseline:     road.TrafficLevel,
		}

		if points, ok := s.Cached(road.Start, road.End); ok {
			seg.Geometry, seg.Routed = points, true
			segments = append(segments, seg)
			continue
		}
		if s.apiKey == "" || ctxErr != nil {
			segments = append(segments, seg)
			continue
		}

		if fetched > 0 && s.delay > 0 {
			if err := sleepCtx(ctx, s.delay); err != nil {
				ctxErr = err
				segments = append(segments, seg)
				continue
			}
		}
		fetched++

		points, err := s.Route(ctx, road.Start, road.End)
		if err != nil {
			if ctx.Err() != nil {
				ctxErr = ctx.Err()
			}
			s.recordFailure(ctx, road.ID, err)
			segments = append(segments, seg)
			continue
		}
		seg.Geometry, seg.Routed = points, true
		segments = append(segments, seg)
	}

	return segments, ctxErr
}

func (s *RouteService) recordFailure(ctx context.Context, roadID string, err error) {
	reason := "unavailable"
	if errors.Is(err, ErrRateLimited) {
		reason = "rate_limited"
	}
	s.metrics.RouteFailure(ctx, reason)
	s.log.Warn().Err(err).Str("road", roadID).Msg("route fetch failed, using straight line")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

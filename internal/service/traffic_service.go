package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/pkg/utils"
)

// TrafficService samples per-road congestion from TomTom traffic flow
type TrafficService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	now  func() time.Time
	mu   sync.Mutex
	rand *rand.Rand
}

// NewTrafficService creates a new traffic service
func NewTrafficService(apiKey, baseURL string, log zerolog.Logger) *TrafficService {
	return &TrafficService{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:  log,
		now:  time.Now,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// flowSegmentResponse is the subset of the TomTom flow response we read
type flowSegmentResponse struct {
	FlowSegmentData struct {
		CurrentSpeed  float64 `json:"currentSpeed"`
		FreeFlowSpeed float64 `json:"freeFlowSpeed"`
	} `json:"flowSegmentData"`
}

// CurrentTraffic returns one congestion level per catalog road. Roads whose
// flow cannot be fetched get a synthetic level and mark the snapshot as mock.
func (s *TrafficService) CurrentTraffic(ctx context.Context) (domain.TrafficSnapshot, error) {
	now := s.now()
	snap := domain.TrafficSnapshot{
		Timestamp: now,
		Levels:    make(map[string]float64, len(domain.Roads)),
	}

	for _, road := range domain.Roads {
		if s.apiKey == "" {
			snap.Levels[road.ID] = s.syntheticLevel(now)
			snap.IsMock = true
			continue
		}

		level, err := s.flowLevel(ctx, domain.Midpoint(road.Start, road.End))
		if err != nil {
			s.log.Warn().Err(err).Str("road", road.ID).Msg("traffic flow fetch failed, using synthetic level")
			snap.Levels[road.ID] = s.syntheticLevel(now)
			snap.IsMock = true
			continue
		}
		snap.Levels[road.ID] = level
	}

	return snap, nil
}

// flowLevel converts the speed ratio at a point into a 0-100 congestion level
func (s *TrafficService) flowLevel(ctx context.Context, p domain.GeoPoint) (float64, error) {
	endpoint := fmt.Sprintf("%s/traffic/services/4/flowSegmentData/absolute/10/json?point=%s,%s&key=%s",
		s.baseURL, formatCoord(p.Lat), formatCoord(p.Lng), url.QueryEscape(s.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("traffic: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("traffic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("traffic: unexpected status %d", resp.StatusCode)
	}

	var body flowSegmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("traffic: failed to decode response: %w", err)
	}

	return FlowLevel(body.FlowSegmentData.CurrentSpeed, body.FlowSegmentData.FreeFlowSpeed), nil
}

// FlowLevel maps a current/free-flow speed pair to a 0-100 congestion level
func FlowLevel(currentSpeed, freeFlowSpeed float64) float64 {
	if freeFlowSpeed <= 0 {
		return 0
	}
	level := (1 - currentSpeed/freeFlowSpeed) * 100
	return utils.RoundTo(utils.Clamp(level, 0, 100), 1)
}

func (s *TrafficService) syntheticLevel(now time.Time) float64 {
	s.mu.Lock()
	jitter := s.rand.Float64()
	s.mu.Unlock()
	return CongestionIndex(now.Hour(), now.Weekday(), jitter)
}

// CongestionIndex returns a 0-100 level from the time-of-day pattern. jitter
// in [0,1) picks a value inside the band for that hour.
func CongestionIndex(hour int, weekday time.Weekday, jitter float64) float64 {
	var low, width float64

	// Weekend: less traffic
	if weekday == time.Saturday || weekday == time.Sunday {
		low, width = 15, 15
	} else {
		switch {
		case hour >= 7 && hour <= 9: // School run
			low, width = 45, 25
		case hour >= 16 && hour <= 18: // Evening commute
			low, width = 50, 25
		case hour >= 12 && hour <= 14:
			low, width = 25, 15
		case hour >= 22 || hour <= 5: // Night
			low, width = 0, 8
		default:
			low, width = 15, 20
		}
	}

	return utils.RoundTo(low+jitter*width, 1)
}

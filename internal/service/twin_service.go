package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/internal/impact"
	"github.com/bikehood/twin/internal/telemetry"
	"github.com/bikehood/twin/pkg/utils"
)

// DefaultKind is the intervention applied by the stateless traffic update
const DefaultKind = "Bike"

// Session is one user's digital-twin workspace. All fields are guarded by mu.
type Session struct {
	mu         sync.Mutex
	id         string
	markers    []domain.InterventionMarker
	roads      []domain.RoadSegment
	sensors    []domain.SensorMarker
	ledger     *impact.Ledger
	baselineAt time.Time
	createdAt  time.Time
	updatedAt  time.Time
	touchedAt  time.Time
}

// SessionState is a point-in-time copy of a session
type SessionState struct {
	ID             string                      `json:"id"`
	Mode           impact.Mode                 `json:"mode"`
	Markers        []domain.InterventionMarker `json:"markers"`
	Roads          []domain.RoadSegment        `json:"roads"`
	Sensors        []domain.SensorMarker       `json:"sensors"`
	AppliedImpacts int                         `json:"applied_impacts"`
	BaselineAt     time.Time                   `json:"baseline_at"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// SimulationOutcome is the result of one simulate call
type SimulationOutcome struct {
	Applied []impact.Application `json:"applied"`
	Session SessionState         `json:"session"`
}

// Catalog lists what a client can place and what it affects
type Catalog struct {
	Kinds   []domain.InterventionKind `json:"kinds"`
	Roads   []domain.RoadSpec         `json:"roads"`
	Sensors []domain.SensorMarker     `json:"sensors"`
	Mode    impact.Mode               `json:"mode"`
}

// TwinService owns the shared baseline and the simulation sessions
type TwinService struct {
	repo    DataRepository
	routes  *RouteService
	mode    impact.Mode
	params  impact.Params
	ttl     time.Duration
	log     zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	baselineMu sync.RWMutex
	baseline   domain.Baseline
	roads      []domain.RoadSegment
	loaded     bool

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
}

// NewTwinService creates the twin service. A zero ttl keeps sessions until
// they are deleted.
func NewTwinService(
	repo DataRepository,
	routes *RouteService,
	mode impact.Mode,
	params impact.Params,
	ttl time.Duration,
	log zerolog.Logger,
	metrics *telemetry.Metrics,
) *TwinService {
	return &TwinService{
		repo:     repo,
		routes:   routes,
		mode:     mode,
		params:   params,
		ttl:      ttl,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Mode returns the configured simulation mode
func (s *TwinService) Mode() impact.Mode {
	return s.mode
}

// Catalog returns the intervention kinds, roads and sensors
func (s *TwinService) Catalog() Catalog {
	return Catalog{
		Kinds:   domain.InterventionKinds,
		Roads:   domain.Roads,
		Sensors: domain.Sensors,
		Mode:    s.mode,
	}
}

// RefreshBaseline reloads the latest observations and road geometry. A
// failed query keeps the previously loaded value, or the zero value on the
// first load.
func (s *TwinService) RefreshBaseline(ctx context.Context) error {
	s.baselineMu.RLock()
	b := s.baseline
	s.baselineMu.RUnlock()

	if traffic, err := s.repo.LatestTraffic(ctx); err != nil {
		s.log.Warn().Err(err).Msg("baseline traffic unavailable")
	} else {
		b.Traffic = traffic
	}
	if env, err := s.repo.LatestEnvironment(ctx); err != nil {
		s.log.Warn().Err(err).Msg("baseline environment unavailable")
	} else {
		b.Environment = env
	}
	if noise, err := s.repo.LatestNoise(ctx); err != nil {
		s.log.Warn().Err(err).Msg("baseline noise unavailable")
	} else {
		b.Noise = noise
	}
	b.LoadedAt = s.now()

	roads, err := s.routes.ResolveAll(ctx, domain.Roads)
	for i := range roads {
		level := roads[i].TrafficLevel
		if observed, ok := b.Traffic.Levels[roads[i].ID]; ok {
			level = observed
		}
		level = utils.Clamp(level, s.params.MinLevel, s.params.MaxLevel)
		roads[i].TrafficLevel = level
		roads[i].Baseline = level
	}

	s.baselineMu.Lock()
	s.baseline = b
	s.roads = roads
	s.loaded = true
	s.baselineMu.Unlock()

	if err != nil {
		return fmt.Errorf("twin: baseline refresh interrupted: %w", err)
	}
	return nil
}

// Baseline returns the shared baseline snapshot
func (s *TwinService) Baseline() domain.Baseline {
	s.baselineMu.RLock()
	defer s.baselineMu.RUnlock()
	return s.baseline
}

// Run refreshes the baseline and expires idle sessions on every tick until
// ctx is done
func (s *TwinService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshBaseline(ctx); err != nil {
				s.log.Warn().Err(err).Msg("baseline refresh failed")
			}
			if n := s.ExpireSessions(); n > 0 {
				s.log.Info().Int("expired", n).Msg("expired idle sessions")
			}
		}
	}
}

func (s *TwinService) ensureBaseline(ctx context.Context) {
	s.baselineMu.RLock()
	loaded := s.loaded
	s.baselineMu.RUnlock()
	if loaded {
		return
	}
	if err := s.RefreshBaseline(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial baseline load incomplete")
	}
}

// snapshot returns fresh copies of the baseline roads and sensors
func (s *TwinService) snapshot() ([]domain.RoadSegment, []domain.SensorMarker, time.Time) {
	s.baselineMu.RLock()
	defer s.baselineMu.RUnlock()

	roads := make([]domain.RoadSegment, len(s.roads))
	copy(roads, s.roads)

	sensors := make([]domain.SensorMarker, len(domain.Sensors))
	for i, sensor := range domain.Sensors {
		reading := s.baseline.SensorReading(sensor)
		sensor.Reading = reading
		sensor.Baseline = reading
		sensor.Icon = impact.SensorIcon(sensor)
		sensors[i] = sensor
	}

	return roads, sensors, s.baseline.LoadedAt
}

// CreateSession starts a session on the current baseline
func (s *TwinService) CreateSession(ctx context.Context) SessionState {
	s.ensureBaseline(ctx)
	roads, sensors, loadedAt := s.snapshot()

	now := s.now()
	sess := &Session{
		id:         uuid.NewString(),
		roads:      roads,
		sensors:    sensors,
		ledger:     impact.NewLedger(),
		baselineAt: loadedAt,
		createdAt:  now,
		updatedAt:  now,
		touchedAt:  now,
	}

	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()

	s.log.Debug().Str("session", sess.id).Msg("session created")
	return s.state(sess)
}

func (s *TwinService) lookup(id string) (*Session, error) {
	s.sessionsMu.RLock()
	sess, ok := s.sessions[id]
	s.sessionsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// withSession runs fn with the session locked
func (s *TwinService) withSession(id string, fn func(*Session) error) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touchedAt = s.now()
	return fn(sess)
}

// GetSession returns the current state of a session
func (s *TwinService) GetSession(id string) (SessionState, error) {
	var state SessionState
	err := s.withSession(id, func(sess *Session) error {
		state = s.state(sess)
		return nil
	})
	return state, err
}

// DeleteSession discards a session
func (s *TwinService) DeleteSession(id string) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// SessionCount returns the number of live sessions
func (s *TwinService) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// ExpireSessions drops sessions idle for longer than the ttl
func (s *TwinService) ExpireSessions() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	expired := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.touchedAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			expired++
		}
	}
	return expired
}

// AddMarker drops an intervention of the named kind at pos
func (s *TwinService) AddMarker(sessionID, kind string, pos domain.GeoPoint) (domain.InterventionMarker, error) {
	k, ok := domain.FindKind(kind)
	if !ok {
		return domain.InterventionMarker{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !pos.Valid() {
		return domain.InterventionMarker{}, ErrInvalidPosition
	}

	marker := domain.NewMarker(uuid.NewString(), k, pos)
	err := s.withSession(sessionID, func(sess *Session) error {
		sess.markers = append(sess.markers, marker)
		sess.updatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.InterventionMarker{}, err
	}
	return marker, nil
}

// MoveMarker drags an existing marker to pos
func (s *TwinService) MoveMarker(sessionID, markerID string, pos domain.GeoPoint) (domain.InterventionMarker, error) {
	if !pos.Valid() {
		return domain.InterventionMarker{}, ErrInvalidPosition
	}

	var moved domain.InterventionMarker
	err := s.withSession(sessionID, func(sess *Session) error {
		i := markerIndex(sess.markers, markerID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMarkerNotFound, markerID)
		}
		sess.markers[i].Position = pos
		sess.updatedAt = s.now()
		moved = sess.markers[i]
		return nil
	})
	return moved, err
}

// RemoveMarker deletes a marker from the session
func (s *TwinService) RemoveMarker(sessionID, markerID string) error {
	return s.withSession(sessionID, func(sess *Session) error {
		i := markerIndex(sess.markers, markerID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMarkerNotFound, markerID)
		}
		sess.markers = append(sess.markers[:i], sess.markers[i+1:]...)
		sess.updatedAt = s.now()
		return nil
	})
}

func markerIndex(markers []domain.InterventionMarker, id string) int {
	for i, m := range markers {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Simulate applies the session's markers to its roads and sensors. In
// baseline mode targets and ledger restart from the shared baseline first.
func (s *TwinService) Simulate(ctx context.Context, sessionID string) (SimulationOutcome, error) {
	var out SimulationOutcome
	err := s.withSession(sessionID, func(sess *Session) error {
		if s.mode == impact.ModeCumulative {
			s.syncGeometry(sess)
		} else {
			sess.roads, sess.sensors, sess.baselineAt = s.snapshot()
			sess.ledger.Reset()
		}

		res := impact.Simulate(impact.Input{
			Markers: sess.markers,
			Roads:   sess.roads,
			Sensors: sess.sensors,
		}, sess.ledger, s.params)

		sess.roads = res.Roads
		sess.sensors = res.Sensors
		sess.updatedAt = s.now()

		out = SimulationOutcome{Applied: res.Applied, Session: s.state(sess)}
		return nil
	})
	if err != nil {
		return SimulationOutcome{}, err
	}

	s.metrics.Simulation(ctx, string(s.mode), len(out.Applied))
	s.log.Debug().
		Str("session", sessionID).
		Int("markers", len(out.Session.Markers)).
		Int("applied", len(out.Applied)).
		Msg("simulation complete")
	return out, nil
}

// syncGeometry picks up routes resolved after the session was created
// without touching its accumulated levels
func (s *TwinService) syncGeometry(sess *Session) {
	s.baselineMu.RLock()
	defer s.baselineMu.RUnlock()
	for i := range sess.roads {
		if sess.roads[i].Routed || i >= len(s.roads) || s.roads[i].ID != sess.roads[i].ID {
			continue
		}
		if s.roads[i].Routed {
			sess.roads[i].Geometry = s.roads[i].Geometry
			sess.roads[i].Routed = true
		}
	}
}

// Reset clears markers and ledger and restores every target from the
// latest stored observations
func (s *TwinService) Reset(ctx context.Context, sessionID string) (SessionState, error) {
	if _, err := s.lookup(sessionID); err != nil {
		return SessionState{}, err
	}
	if err := s.RefreshBaseline(ctx); err != nil {
		s.log.Warn().Err(err).Msg("baseline reload incomplete")
	}

	var state SessionState
	err := s.withSession(sessionID, func(sess *Session) error {
		sess.markers = nil
		sess.ledger.Reset()
		sess.roads, sess.sensors, sess.baselineAt = s.snapshot()
		sess.updatedAt = s.now()
		state = s.state(sess)
		return nil
	})
	return state, err
}

// Routes returns the session's roads as a GeoJSON FeatureCollection
func (s *TwinService) Routes(sessionID string) (*geojson.FeatureCollection, error) {
	var roads []domain.RoadSegment
	err := s.withSession(sessionID, func(sess *Session) error {
		roads = append(roads, sess.roads...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return RoadsGeoJSON(roads), nil
}

// UpdateTraffic applies a single default marker at pos to the shared
// baseline and returns the resulting levels. No session state changes.
func (s *TwinService) UpdateTraffic(ctx context.Context, pos domain.GeoPoint) (domain.TrafficSnapshot, error) {
	if !pos.Valid() {
		return domain.TrafficSnapshot{}, ErrInvalidPosition
	}
	s.ensureBaseline(ctx)

	kind, ok := domain.FindKind(DefaultKind)
	if !ok {
		return domain.TrafficSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownKind, DefaultKind)
	}

	roads, sensors, _ := s.snapshot()
	res := impact.Simulate(impact.Input{
		Markers: []domain.InterventionMarker{domain.NewMarker(uuid.NewString(), kind, pos)},
		Roads:   roads,
		Sensors: sensors,
	}, impact.NewLedger(), s.params)
	s.metrics.Simulation(ctx, "stateless", len(res.Applied))

	snap := domain.TrafficSnapshot{
		Timestamp: s.now(),
		Levels:    make(map[string]float64, len(res.Roads)),
	}
	for _, r := range res.Roads {
		snap.Levels[r.ID] = r.TrafficLevel
	}
	return snap, nil
}

// state copies the session for use outside its lock. Callers hold sess.mu.
func (s *TwinService) state(sess *Session) SessionState {
	return SessionState{
		ID:             sess.id,
		Mode:           s.mode,
		Markers:        append([]domain.InterventionMarker{}, sess.markers...),
		Roads:          append([]domain.RoadSegment{}, sess.roads...),
		Sensors:        append([]domain.SensorMarker{}, sess.sensors...),
		AppliedImpacts: sess.ledger.Len(),
		BaselineAt:     sess.baselineAt,
		CreatedAt:      sess.createdAt,
		UpdatedAt:      sess.updatedAt,
	}
}

// RoadsGeoJSON renders roads as LineString features carrying the traffic
// level the map colours them by
func RoadsGeoJSON(roads []domain.RoadSegment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range roads {
		line := make(orb.LineString, 0, len(r.Geometry))
		for _, p := range r.Geometry {
			line = append(line, orb.Point{p.Lng, p.Lat})
		}

		f := geojson.NewFeature(line)
		f.ID = r.ID
		f.Properties["id"] = r.ID
		f.Properties["trafficLevel"] = r.TrafficLevel
		f.Properties["baseline"] = r.Baseline
		f.Properties["congestion"] = domain.CongestionLevel(r.TrafficLevel)
		f.Properties["routed"] = r.Routed
		f.Properties["lengthKm"] = utils.RoundTo(PolylineLengthKm(r.Geometry), 3)
		fc.Append(f)
	}
	return fc
}

// PolylineLengthKm sums the great-circle length of consecutive vertices
func PolylineLengthKm(points []domain.GeoPoint) float64 {
	var km float64
	for i := 0; i+1 < len(points); i++ {
		km += utils.Haversine(points[i].Lat, points[i].Lng, points[i+1].Lat, points[i+1].Lng)
	}
	return km
}

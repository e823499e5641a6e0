package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/internal/impact"
	"github.com/bikehood/twin/internal/repository/postgres"
)

var (
	// start vertex of main_street
	mainStreetStart = domain.GeoPoint{Lat: 53.395972, Lng: -6.442814}
	// end vertex of the_mall, next to the roundabout_1 and playground_np sensors
	theMallEnd = domain.GeoPoint{Lat: 53.392384, Lng: -6.439096}
)

func newTestTwin(t *testing.T, mode impact.Mode) (*TwinService, *postgres.MockRepository) {
	t.Helper()
	repo := postgres.NewMockRepository()
	routes, err := NewRouteService("", "http://127.0.0.1:0", 16, 0, zerolog.Nop(), nil)
	require.NoError(t, err)
	svc := NewTwinService(repo, routes, mode, impact.DefaultParams(), time.Hour, zerolog.Nop(), nil)
	return svc, repo
}

func roadLevel(roads []domain.RoadSegment, id string) float64 {
	for _, r := range roads {
		if r.ID == id {
			return r.TrafficLevel
		}
	}
	return -1
}

func sensorByID(sensors []domain.SensorMarker, id string) domain.SensorMarker {
	for _, s := range sensors {
		if s.ID == id {
			return s
		}
	}
	return domain.SensorMarker{}
}

func TestTwinService_CreateSessionUsesBaseline(t *testing.T) {
	svc, _ := newTestTwin(t, impact.ModeBaseline)

	state := svc.CreateSession(context.Background())
	assert.NotEmpty(t, state.ID)
	assert.Len(t, state.Roads, len(domain.Roads))
	assert.Len(t, state.Sensors, len(domain.Sensors))
	assert.Equal(t, 5.0, roadLevel(state.Roads, "main_street"))

	school := sensorByID(state.Sensors, "school")
	assert.Equal(t, 45.0, school.Reading)
	assert.Equal(t, 45.0, school.Baseline)
	assert.Equal(t, "/AqMarkerYellow.png", school.Icon)

	playground := sensorByID(state.Sensors, "playground_np")
	assert.Equal(t, 52.0, playground.Reading)
	assert.Equal(t, "/NpMarkerOrange.png", playground.Icon)

	assert.Equal(t, 1, svc.SessionCount())
}

func TestTwinService_SimulateBaselineModeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)
	state := svc.CreateSession(ctx)

	_, err := svc.AddMarker(state.ID, "Bike", theMallEnd)
	require.NoError(t, err)

	first, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, first.Applied, 3)
	assert.Equal(t, 2.0, roadLevel(first.Session.Roads, "the_mall"))

	roundabout := sensorByID(first.Session.Sensors, "roundabout_1")
	assert.Equal(t, 44.0, roundabout.Reading)
	assert.Equal(t, "/AqMarkerYellow.png", roundabout.Icon)
	assert.Equal(t, 51.0, sensorByID(first.Session.Sensors, "playground_np").Reading)

	second, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, second.Applied, 3)
	assert.Equal(t, first.Session.Roads, second.Session.Roads)
	assert.Equal(t, first.Session.Sensors, second.Session.Sensors)
}

func TestTwinService_SimulateCumulativeMode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeCumulative)
	state := svc.CreateSession(ctx)

	marker, err := svc.AddMarker(state.ID, "Bike", theMallEnd)
	require.NoError(t, err)

	first, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, roadLevel(first.Session.Roads, "the_mall"))

	second, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Equal(t, 2.0, roadLevel(second.Session.Roads, "the_mall"))

	_, err = svc.MoveMarker(state.ID, marker.ID, mainStreetStart)
	require.NoError(t, err)

	third, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	require.Len(t, third.Applied, 1)
	assert.Equal(t, 7.0, roadLevel(third.Session.Roads, "main_street"))
	assert.Equal(t, 2.0, roadLevel(third.Session.Roads, "the_mall"))
	assert.Equal(t, 4, third.Session.AppliedImpacts)
}

func TestTwinService_Reset(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestTwin(t, impact.ModeCumulative)
	state := svc.CreateSession(ctx)

	_, err := svc.AddMarker(state.ID, "Bike Shed", theMallEnd)
	require.NoError(t, err)
	_, err = svc.Simulate(ctx, state.ID)
	require.NoError(t, err)

	require.NoError(t, repo.SaveEnvironmentReading(ctx, domain.EnvironmentReading{
		Timestamp: time.Now(),
		Location:  "Ongar",
		PM25:      38,
	}))

	reset, err := svc.Reset(ctx, state.ID)
	require.NoError(t, err)
	assert.Empty(t, reset.Markers)
	assert.Zero(t, reset.AppliedImpacts)
	assert.Equal(t, 0.0, roadLevel(reset.Roads, "the_mall"))

	roundabout := sensorByID(reset.Sensors, "roundabout_1")
	assert.Equal(t, 38.0, roundabout.Reading)
	assert.Equal(t, "/AqMarkerGreen.png", roundabout.Icon)
}

func TestTwinService_MarkerErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)
	state := svc.CreateSession(ctx)

	_, err := svc.AddMarker(state.ID, "Unicycle", theMallEnd)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = svc.AddMarker(state.ID, "Bike", domain.GeoPoint{Lat: 91, Lng: 0})
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = svc.AddMarker("missing", "Bike", theMallEnd)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.MoveMarker(state.ID, "missing", theMallEnd)
	assert.ErrorIs(t, err, ErrMarkerNotFound)

	assert.ErrorIs(t, svc.RemoveMarker(state.ID, "missing"), ErrMarkerNotFound)

	_, err = svc.Simulate(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTwinService_RemoveMarker(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)
	state := svc.CreateSession(ctx)

	bike, err := svc.AddMarker(state.ID, "/bike.png", theMallEnd)
	require.NoError(t, err)
	assert.Equal(t, "Bike", bike.Kind)
	_, err = svc.AddMarker(state.ID, "Bike Pump", mainStreetStart)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMarker(state.ID, bike.ID))

	got, err := svc.GetSession(state.ID)
	require.NoError(t, err)
	require.Len(t, got.Markers, 1)
	assert.Equal(t, "Bike Pump", got.Markers[0].Kind)

	out, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, roadLevel(out.Session.Roads, "the_mall"))
	assert.Equal(t, 6.0, roadLevel(out.Session.Roads, "main_street"))
}

func TestTwinService_DeleteAndExpire(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)

	a := svc.CreateSession(ctx)
	require.NoError(t, svc.DeleteSession(a.ID))
	assert.ErrorIs(t, svc.DeleteSession(a.ID), ErrSessionNotFound)

	svc.CreateSession(ctx)
	assert.Zero(t, svc.ExpireSessions())

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, svc.ExpireSessions())
	assert.Zero(t, svc.SessionCount())
}

func TestTwinService_UpdateTraffic(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)

	snap, err := svc.UpdateTraffic(ctx, mainStreetStart)
	require.NoError(t, err)
	assert.Equal(t, 7.0, snap.Level("main_street"))
	assert.Equal(t, 0.0, snap.Level("the_mall"))
	assert.Len(t, snap.Levels, len(domain.Roads))

	// stateless: a second call starts from the baseline again
	again, err := svc.UpdateTraffic(ctx, mainStreetStart)
	require.NoError(t, err)
	assert.Equal(t, 7.0, again.Level("main_street"))

	_, err = svc.UpdateTraffic(ctx, domain.GeoPoint{Lat: 0, Lng: 200})
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestTwinService_Routes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)
	state := svc.CreateSession(ctx)

	fc, err := svc.Routes(state.ID)
	require.NoError(t, err)
	require.Len(t, fc.Features, len(domain.Roads))

	f := fc.Features[2]
	assert.Equal(t, "main_street", f.Properties["id"])
	assert.Equal(t, 5.0, f.Properties["trafficLevel"])
	line, ok := f.Geometry.(orb.LineString)
	require.True(t, ok)
	require.Len(t, line, 2)
	assert.Equal(t, orb.Point{mainStreetStart.Lng, mainStreetStart.Lat}, line[0])
	assert.Greater(t, f.Properties["lengthKm"], 0.2)

	_, err = svc.Routes("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPolylineLengthKm(t *testing.T) {
	assert.Zero(t, PolylineLengthKm(nil))
	assert.Zero(t, PolylineLengthKm([]domain.GeoPoint{mainStreetStart}))
	assert.InDelta(t, 111.19, PolylineLengthKm([]domain.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 0}}), 0.01)
}

func TestTwinService_ConcurrentSessionOperationsStayConsistent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTwin(t, impact.ModeBaseline)
	state := svc.CreateSession(ctx)

	marker, err := svc.AddMarker(state.ID, "Bike", theMallEnd)
	require.NoError(t, err)

	const rounds = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []SimulationOutcome
	)
	run := func(fn func(i int)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				fn(i)
			}
		}()
	}

	for g := 0; g < 3; g++ {
		run(func(int) {
			out, err := svc.Simulate(ctx, state.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		})
	}

	markerID := marker.ID
	run(func(i int) {
		pos := theMallEnd
		if i%2 == 1 {
			pos = mainStreetStart
		}
		_, err := svc.MoveMarker(state.ID, markerID, pos)
		if errors.Is(err, ErrMarkerNotFound) {
			// a concurrent reset cleared the markers
			m, err := svc.AddMarker(state.ID, "Bike", pos)
			if assert.NoError(t, err) {
				markerID = m.ID
			}
			return
		}
		assert.NoError(t, err)
	})
	run(func(i int) {
		if i%10 == 0 {
			_, err := svc.Reset(ctx, state.ID)
			assert.NoError(t, err)
		}
	})
	run(func(int) {
		assert.Zero(t, svc.ExpireSessions())
	})
	run(func(int) {
		_, err := svc.GetSession(state.ID)
		assert.NoError(t, err)
	})
	wg.Wait()

	// Every run must match a clean single run over the markers it saw.
	roads, sensors, _ := svc.snapshot()
	require.Len(t, outcomes, 3*rounds)
	for _, out := range outcomes {
		want := impact.Simulate(impact.Input{
			Markers: out.Session.Markers,
			Roads:   roads,
			Sensors: sensors,
		}, impact.NewLedger(), impact.DefaultParams())

		assert.Equal(t, want.Roads, out.Session.Roads)
		assert.Equal(t, want.Sensors, out.Session.Sensors)
		assert.Equal(t, len(want.Applied), out.Session.AppliedImpacts)
		assert.Len(t, out.Applied, out.Session.AppliedImpacts)
	}

	_, err = svc.Reset(ctx, state.ID)
	require.NoError(t, err)
	_, err = svc.AddMarker(state.ID, "Bike", theMallEnd)
	require.NoError(t, err)

	final, err := svc.Simulate(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, final.Session.Markers, 1)
	assert.Equal(t, 2.0, roadLevel(final.Session.Roads, "the_mall"))
	assert.Equal(t, 44.0, sensorByID(final.Session.Sensors, "roundabout_1").Reading)
	assert.Equal(t, 51.0, sensorByID(final.Session.Sensors, "playground_np").Reading)
	assert.Equal(t, 1, svc.SessionCount())
}

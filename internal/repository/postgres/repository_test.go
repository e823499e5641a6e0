package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikehood/twin/internal/domain"
)

func TestGroupTrafficRows(t *testing.T) {
	rows := []trafficRow{
		{ts: 200, roadID: "main_street", level: 12},
		{ts: 200, roadID: "the_mall", level: 4},
		{ts: 100, roadID: "main_street", level: 9},
	}

	snaps := groupTrafficRows(rows)

	require.Len(t, snaps, 2)
	assert.Equal(t, int64(200), snaps[0].Timestamp.Unix())
	assert.Equal(t, map[string]float64{"main_street": 12, "the_mall": 4}, snaps[0].Levels)
	assert.Equal(t, int64(100), snaps[1].Timestamp.Unix())
	assert.Equal(t, map[string]float64{"main_street": 9}, snaps[1].Levels)
}

func TestGroupTrafficRows_Empty(t *testing.T) {
	assert.Empty(t, groupTrafficRows(nil))
}

func TestMockRepository_Seeded(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	traffic, err := repo.LatestTraffic(ctx)
	require.NoError(t, err)
	assert.Len(t, traffic.Levels, len(domain.Roads))
	assert.Equal(t, 5.0, traffic.Level("main_street"))
	assert.True(t, traffic.IsMock)

	env, err := repo.LatestEnvironment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45.0, env.PM25)

	noise, err := repo.LatestNoise(ctx)
	require.NoError(t, err)
	assert.Len(t, noise, len(domain.SensorsOfType(domain.SensorNoise)))

	require.NoError(t, repo.Health(ctx))
}

func TestMockRepository_LatestTrafficMergesNewest(t *testing.T) {
	ctx := context.Background()
	repo := NewEmptyMockRepository()
	now := time.Now()

	require.NoError(t, repo.SaveTrafficSnapshot(ctx, domain.TrafficSnapshot{
		Timestamp: now.Add(-time.Hour),
		Levels:    map[string]float64{"main_street": 10, "the_mall": 3},
	}))
	require.NoError(t, repo.SaveTrafficSnapshot(ctx, domain.TrafficSnapshot{
		Timestamp: now,
		Levels:    map[string]float64{"main_street": 20},
	}))

	latest, err := repo.LatestTraffic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, latest.Level("main_street"))
	assert.Equal(t, 3.0, latest.Level("the_mall"))
	assert.Equal(t, now.Unix(), latest.Timestamp.Unix())
}

func TestMockRepository_HistoryAndAverages(t *testing.T) {
	ctx := context.Background()
	repo := NewEmptyMockRepository()
	now := time.Now()

	for i, pm := range []float64{30, 40, 50} {
		require.NoError(t, repo.SaveEnvironmentReading(ctx, domain.EnvironmentReading{
			Timestamp: now.Add(-time.Duration(i) * 2 * time.Hour),
			Location:  "Ongar",
			PM25:      pm,
		}))
	}

	history, err := repo.GetHistoricalEnvironment(ctx, now.Add(-3*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 30.0, history[0].PM25)
	assert.Equal(t, 40.0, history[1].PM25)

	hourly, err := repo.AveragePM25(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 30.0, hourly)

	daily, err := repo.AveragePM25(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 40.0, daily)

	none, err := repo.AveragePM25(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)
}

func TestMockRepository_LatestNoisePerLocation(t *testing.T) {
	ctx := context.Background()
	repo := NewEmptyMockRepository()
	now := time.Now()

	require.NoError(t, repo.SaveNoiseReadings(ctx, []domain.NoiseReading{
		{Timestamp: now.Add(-time.Minute), Location: "playground_np", LAeq: 60},
		{Timestamp: now, Location: "playground_np", LAeq: 48},
		{Timestamp: now, Location: "ongar_west_np", LAeq: 51},
	}))

	latest, err := repo.LatestNoise(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "ongar_west_np", latest[0].Location)
	assert.Equal(t, 48.0, latest[1].LAeq)
}

func TestMockRepository_DropsObservationsPastRetention(t *testing.T) {
	ctx := context.Background()
	repo := NewEmptyMockRepository()
	now := time.Now()
	old := now.Add(-mockRetention - time.Hour)
	edge := now.Add(-mockRetention)

	for _, ts := range []time.Time{old, edge, now} {
		require.NoError(t, repo.SaveTrafficSnapshot(ctx, domain.TrafficSnapshot{
			Timestamp: ts,
			Levels:    map[string]float64{"main_street": 5},
		}))
		require.NoError(t, repo.SaveEnvironmentReading(ctx, domain.EnvironmentReading{Timestamp: ts, PM25: 20}))
		require.NoError(t, repo.SaveNoiseReadings(ctx, []domain.NoiseReading{
			{Timestamp: ts, Location: "playground_np", LAeq: 50},
		}))
	}

	from, to := old.Add(-time.Hour), now.Add(time.Hour)

	traffic, err := repo.GetHistoricalTraffic(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, traffic, 2)
	assert.Equal(t, edge, traffic[1].Timestamp)

	env, err := repo.GetHistoricalEnvironment(ctx, from, to)
	require.NoError(t, err)
	assert.Len(t, env, 2)

	repo.mu.RLock()
	assert.Len(t, repo.noise, 2)
	repo.mu.RUnlock()
}

func TestMockRepository_BackfillKeepsNewerObservations(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	require.NoError(t, repo.SaveEnvironmentReading(ctx, domain.EnvironmentReading{
		Timestamp: time.Now().Add(-2 * mockRetention),
		PM25:      10,
	}))

	latest, err := repo.LatestEnvironment(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45.0, latest.PM25)
}

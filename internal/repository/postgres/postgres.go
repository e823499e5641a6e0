package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bikehood/twin/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS traffic_data (
		id            BIGSERIAL PRIMARY KEY,
		timestamp     BIGINT NOT NULL,
		road_id       TEXT NOT NULL,
		traffic_level DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS traffic_data_road_ts ON traffic_data (road_id, timestamp DESC);

	CREATE TABLE IF NOT EXISTS environment (
		id          BIGSERIAL PRIMARY KEY,
		timestamp   BIGINT NOT NULL,
		location    TEXT NOT NULL,
		pm2_5       DOUBLE PRECISION,
		temperature DOUBLE PRECISION,
		weather     TEXT,
		wind_speed  DOUBLE PRECISION,
		rain        DOUBLE PRECISION
	);
	CREATE INDEX IF NOT EXISTS environment_ts ON environment (timestamp DESC);

	CREATE TABLE IF NOT EXISTS noise_data (
		id        BIGSERIAL PRIMARY KEY,
		timestamp BIGINT NOT NULL,
		location  TEXT NOT NULL,
		laeq      DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS noise_data_location_ts ON noise_data (location, timestamp DESC);
`

// historyLimit caps the snapshots returned by historical queries. It covers
// the longest servable span at a 15 minute collection interval.
const historyLimit = 30 * 24 * 4

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the tables when they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to migrate schema: %w", err)
	}
	return nil
}

// SaveTrafficSnapshot persists one row per road in a single batch
func (r *PostgresRepository) SaveTrafficSnapshot(ctx context.Context, snap domain.TrafficSnapshot) error {
	batch := &pgx.Batch{}
	for roadID, level := range snap.Levels {
		batch.Queue(
			`INSERT INTO traffic_data (timestamp, road_id, traffic_level) VALUES ($1, $2, $3)`,
			snap.Timestamp.Unix(), roadID, level,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: failed to save traffic snapshot: %w", err)
	}
	return nil
}

// SaveEnvironmentReading persists an air-quality observation
func (r *PostgresRepository) SaveEnvironmentReading(ctx context.Context, e domain.EnvironmentReading) error {
	query := `
		INSERT INTO environment (
			timestamp, location, pm2_5, temperature, weather, wind_speed, rain
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		e.Timestamp.Unix(), e.Location, e.PM25, e.Temperature, e.Weather, e.WindSpeed, e.Rain,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save environment reading: %w", err)
	}

	return nil
}

// SaveNoiseReadings persists LAeq observations in a single batch
func (r *PostgresRepository) SaveNoiseReadings(ctx context.Context, readings []domain.NoiseReading) error {
	if len(readings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range readings {
		batch.Queue(
			`INSERT INTO noise_data (timestamp, location, laeq) VALUES ($1, $2, $3)`,
			n.Timestamp.Unix(), n.Location, n.LAeq,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: failed to save noise readings: %w", err)
	}
	return nil
}

// LatestTraffic returns the newest level of every road
func (r *PostgresRepository) LatestTraffic(ctx context.Context) (domain.TrafficSnapshot, error) {
	query := `
		SELECT DISTINCT ON (road_id) timestamp, road_id, traffic_level
		FROM traffic_data
		ORDER BY road_id, timestamp DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return domain.TrafficSnapshot{}, fmt.Errorf("postgres: failed to query latest traffic: %w", err)
	}
	defer rows.Close()

	latest := domain.TrafficSnapshot{Levels: map[string]float64{}}
	for rows.Next() {
		var row trafficRow
		if err := rows.Scan(&row.ts, &row.roadID, &row.level); err != nil {
			return domain.TrafficSnapshot{}, fmt.Errorf("postgres: failed to scan traffic row: %w", err)
		}
		latest.Levels[row.roadID] = row.level
		if t := time.Unix(row.ts, 0); t.After(latest.Timestamp) {
			latest.Timestamp = t
		}
	}

	return latest, rows.Err()
}

// LatestEnvironment returns the newest air-quality observation
func (r *PostgresRepository) LatestEnvironment(ctx context.Context) (domain.EnvironmentReading, error) {
	query := `
		SELECT timestamp, location, pm2_5, temperature, weather, wind_speed, rain
		FROM environment
		ORDER BY timestamp DESC
		LIMIT 1
	`

	e, err := scanEnvironment(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EnvironmentReading{}, nil
	}
	if err != nil {
		return domain.EnvironmentReading{}, fmt.Errorf("postgres: failed to query latest environment: %w", err)
	}
	return e, nil
}

// LatestNoise returns the newest reading per location
func (r *PostgresRepository) LatestNoise(ctx context.Context) ([]domain.NoiseReading, error) {
	query := `
		SELECT DISTINCT ON (location) timestamp, location, laeq
		FROM noise_data
		ORDER BY location, timestamp DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query latest noise: %w", err)
	}
	defer rows.Close()

	var results []domain.NoiseReading
	for rows.Next() {
		var ts int64
		var n domain.NoiseReading
		if err := rows.Scan(&ts, &n.Location, &n.LAeq); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan noise row: %w", err)
		}
		n.Timestamp = time.Unix(ts, 0)
		results = append(results, n)
	}

	return results, rows.Err()
}

// GetHistoricalTraffic retrieves traffic history, newest snapshot first
func (r *PostgresRepository) GetHistoricalTraffic(ctx context.Context, from, to time.Time) ([]domain.TrafficSnapshot, error) {
	query := `
		SELECT timestamp, road_id, traffic_level
		FROM traffic_data
		WHERE timestamp IN (
			SELECT DISTINCT timestamp
			FROM traffic_data
			WHERE timestamp BETWEEN $1 AND $2
			ORDER BY timestamp DESC
			LIMIT $3
		)
		ORDER BY timestamp DESC, road_id
	`

	rows, err := r.pool.Query(ctx, query, from.Unix(), to.Unix(), historyLimit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query traffic data: %w", err)
	}
	defer rows.Close()

	var flat []trafficRow
	for rows.Next() {
		var row trafficRow
		if err := rows.Scan(&row.ts, &row.roadID, &row.level); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan traffic row: %w", err)
		}
		flat = append(flat, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read traffic rows: %w", err)
	}

	return groupTrafficRows(flat), nil
}

// GetHistoricalEnvironment retrieves air-quality history, newest first
func (r *PostgresRepository) GetHistoricalEnvironment(ctx context.Context, from, to time.Time) ([]domain.EnvironmentReading, error) {
	query := `
		SELECT timestamp, location, pm2_5, temperature, weather, wind_speed, rain
		FROM environment
		WHERE timestamp BETWEEN $1 AND $2
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, from.Unix(), to.Unix(), historyLimit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query environment data: %w", err)
	}
	defer rows.Close()

	var results []domain.EnvironmentReading
	for rows.Next() {
		e, err := scanEnvironment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan environment row: %w", err)
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// AveragePM25 averages PM2.5 since the given time
func (r *PostgresRepository) AveragePM25(ctx context.Context, since time.Time) (float64, error) {
	query := `SELECT COALESCE(AVG(pm2_5), 0) FROM environment WHERE timestamp >= $1`

	var avg float64
	if err := r.pool.QueryRow(ctx, query, since.Unix()).Scan(&avg); err != nil {
		return 0, fmt.Errorf("postgres: failed to average pm2.5: %w", err)
	}
	return avg, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

type trafficRow struct {
	ts     int64
	roadID string
	level  float64
}

// groupTrafficRows folds rows sharing a timestamp into one snapshot,
// preserving the row order of timestamps.
func groupTrafficRows(rows []trafficRow) []domain.TrafficSnapshot {
	var out []domain.TrafficSnapshot
	index := make(map[int64]int)
	for _, row := range rows {
		i, ok := index[row.ts]
		if !ok {
			i = len(out)
			index[row.ts] = i
			out = append(out, domain.TrafficSnapshot{
				Timestamp: time.Unix(row.ts, 0),
				Levels:    map[string]float64{},
			})
		}
		out[i].Levels[row.roadID] = row.level
	}
	return out
}

func scanEnvironment(row pgx.Row) (domain.EnvironmentReading, error) {
	var ts int64
	var e domain.EnvironmentReading
	var pm25, temp, wind, rain *float64
	var weather *string
	if err := row.Scan(&ts, &e.Location, &pm25, &temp, &weather, &wind, &rain); err != nil {
		return domain.EnvironmentReading{}, err
	}
	e.Timestamp = time.Unix(ts, 0)
	e.PM25 = deref(pm25)
	e.Temperature = deref(temp)
	e.WindSpeed = deref(wind)
	e.Rain = deref(rain)
	if weather != nil {
		e.Weather = *weather
	}
	return e, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

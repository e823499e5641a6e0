// Package sqlite stores observations in a local SQLite file through gorm.
// It is the single-node alternative to the PostgreSQL repository.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bikehood/twin/internal/domain"
)

// historyLimit caps the snapshots returned by historical queries. It covers
// the longest servable span at a 15 minute collection interval.
const historyLimit = 30 * 24 * 4

type trafficRow struct {
	ID           uint    `gorm:"primarykey"`
	Timestamp    int64   `gorm:"index:idx_traffic_road_ts,priority:2;not null"`
	RoadID       string  `gorm:"index:idx_traffic_road_ts,priority:1;size:127;not null"`
	TrafficLevel float64 `gorm:"not null"`
}

func (trafficRow) TableName() string { return "traffic_data" }

type environmentRow struct {
	ID          uint    `gorm:"primarykey"`
	Timestamp   int64   `gorm:"index;not null"`
	Location    string  `gorm:"size:127;not null"`
	PM25        float64 `gorm:"column:pm2_5"`
	Temperature float64
	Weather     string `gorm:"size:127"`
	WindSpeed   float64
	Rain        float64
}

func (environmentRow) TableName() string { return "environment" }

type noiseRow struct {
	ID        uint    `gorm:"primarykey"`
	Timestamp int64   `gorm:"index:idx_noise_location_ts,priority:2;not null"`
	Location  string  `gorm:"index:idx_noise_location_ts,priority:1;size:127;not null"`
	LAeq      float64 `gorm:"column:laeq;not null"`
}

func (noiseRow) TableName() string { return "noise_data" }

var models = []any{
	&trafficRow{},
	&environmentRow{},
	&noiseRow{},
}

// Repository implements domain.DataRepository on SQLite
type Repository struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// An empty path uses a shared in-memory database.
func Open(path string) (*Repository, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %q: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("sqlite: failed to set pragma: %w", err)
		}
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("sqlite: failed to migrate schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTrafficSnapshot persists one row per road
func (r *Repository) SaveTrafficSnapshot(ctx context.Context, snap domain.TrafficSnapshot) error {
	if len(snap.Levels) == 0 {
		return nil
	}
	rows := make([]trafficRow, 0, len(snap.Levels))
	for roadID, level := range snap.Levels {
		rows = append(rows, trafficRow{Timestamp: snap.Timestamp.Unix(), RoadID: roadID, TrafficLevel: level})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("sqlite: failed to save traffic snapshot: %w", err)
	}
	return nil
}

// SaveEnvironmentReading persists an air-quality observation
func (r *Repository) SaveEnvironmentReading(ctx context.Context, e domain.EnvironmentReading) error {
	row := environmentRow{
		Timestamp:   e.Timestamp.Unix(),
		Location:    e.Location,
		PM25:        e.PM25,
		Temperature: e.Temperature,
		Weather:     e.Weather,
		WindSpeed:   e.WindSpeed,
		Rain:        e.Rain,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("sqlite: failed to save environment reading: %w", err)
	}
	return nil
}

// SaveNoiseReadings persists LAeq observations
func (r *Repository) SaveNoiseReadings(ctx context.Context, readings []domain.NoiseReading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]noiseRow, 0, len(readings))
	for _, n := range readings {
		rows = append(rows, noiseRow{Timestamp: n.Timestamp.Unix(), Location: n.Location, LAeq: n.LAeq})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("sqlite: failed to save noise readings: %w", err)
	}
	return nil
}

// LatestTraffic returns the newest level of every road
func (r *Repository) LatestTraffic(ctx context.Context) (domain.TrafficSnapshot, error) {
	var rows []trafficRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT t.timestamp, t.road_id, t.traffic_level
		FROM traffic_data t
		JOIN (SELECT road_id, MAX(timestamp) AS ts FROM traffic_data GROUP BY road_id) m
			ON t.road_id = m.road_id AND t.timestamp = m.ts
		ORDER BY t.id
	`).Scan(&rows).Error
	if err != nil {
		return domain.TrafficSnapshot{}, fmt.Errorf("sqlite: failed to query latest traffic: %w", err)
	}

	latest := domain.TrafficSnapshot{Levels: make(map[string]float64, len(rows))}
	for _, row := range rows {
		latest.Levels[row.RoadID] = row.TrafficLevel
		if t := time.Unix(row.Timestamp, 0); t.After(latest.Timestamp) {
			latest.Timestamp = t
		}
	}
	return latest, nil
}

// LatestEnvironment returns the newest air-quality observation, or a zero
// reading when nothing has been stored
func (r *Repository) LatestEnvironment(ctx context.Context) (domain.EnvironmentReading, error) {
	var rows []environmentRow
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return domain.EnvironmentReading{}, fmt.Errorf("sqlite: failed to query latest environment: %w", err)
	}
	if len(rows) == 0 {
		return domain.EnvironmentReading{}, nil
	}
	return rows[0].toDomain(), nil
}

// LatestNoise returns the newest reading per location
func (r *Repository) LatestNoise(ctx context.Context) ([]domain.NoiseReading, error) {
	var rows []noiseRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT n.timestamp, n.location, n.laeq
		FROM noise_data n
		JOIN (SELECT location, MAX(timestamp) AS ts FROM noise_data GROUP BY location) m
			ON n.location = m.location AND n.timestamp = m.ts
		ORDER BY n.location
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query latest noise: %w", err)
	}

	out := make([]domain.NoiseReading, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.NoiseReading{
			Timestamp: time.Unix(row.Timestamp, 0),
			Location:  row.Location,
			LAeq:      row.LAeq,
		})
	}
	return out, nil
}

// GetHistoricalTraffic retrieves traffic history, newest snapshot first
func (r *Repository) GetHistoricalTraffic(ctx context.Context, from, to time.Time) ([]domain.TrafficSnapshot, error) {
	newest := r.db.Model(&trafficRow{}).
		Distinct("timestamp").
		Where("timestamp BETWEEN ? AND ?", from.Unix(), to.Unix()).
		Order("timestamp DESC").
		Limit(historyLimit)

	var rows []trafficRow
	err := r.db.WithContext(ctx).
		Where("timestamp IN (?)", newest).
		Order("timestamp DESC, road_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query traffic data: %w", err)
	}

	var out []domain.TrafficSnapshot
	index := make(map[int64]int)
	for _, row := range rows {
		i, ok := index[row.Timestamp]
		if !ok {
			i = len(out)
			index[row.Timestamp] = i
			out = append(out, domain.TrafficSnapshot{
				Timestamp: time.Unix(row.Timestamp, 0),
				Levels:    map[string]float64{},
			})
		}
		out[i].Levels[row.RoadID] = row.TrafficLevel
	}
	return out, nil
}

// GetHistoricalEnvironment retrieves air-quality history, newest first
func (r *Repository) GetHistoricalEnvironment(ctx context.Context, from, to time.Time) ([]domain.EnvironmentReading, error) {
	var rows []environmentRow
	err := r.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from.Unix(), to.Unix()).
		Order("timestamp DESC, id DESC").
		Limit(historyLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query environment data: %w", err)
	}

	out := make([]domain.EnvironmentReading, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AveragePM25 averages PM2.5 since the given time, zero when none
func (r *Repository) AveragePM25(ctx context.Context, since time.Time) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).
		Model(&environmentRow{}).
		Select("COALESCE(AVG(pm2_5), 0)").
		Where("timestamp >= ?", since.Unix()).
		Row().
		Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to average pm2.5: %w", err)
	}
	return avg, nil
}

// Health pings the database
func (r *Repository) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

func (e environmentRow) toDomain() domain.EnvironmentReading {
	return domain.EnvironmentReading{
		Timestamp:   time.Unix(e.Timestamp, 0),
		Location:    e.Location,
		PM25:        e.PM25,
		Temperature: e.Temperature,
		Weather:     e.Weather,
		WindSpeed:   e.WindSpeed,
		Rain:        e.Rain,
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
)

// DashboardService aggregates stored monitoring data
type DashboardService struct {
	repo DataRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(repo DataRepository, log zerolog.Logger) *DashboardService {
	return &DashboardService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// GetDashboardData fetches all live data concurrently using goroutines.
// A failed query is logged and leaves its field at the zero value.
func (s *DashboardService) GetDashboardData(ctx context.Context) (domain.DashboardData, error) {
	var (
		data domain.DashboardData
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	now := s.now()

	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(func() error {
		t, err := s.repo.LatestTraffic(ctx)
		mu.Lock()
		data.Traffic = t
		mu.Unlock()
		return err
	})
	run(func() error {
		e, err := s.repo.LatestEnvironment(ctx)
		mu.Lock()
		data.Environment = e
		mu.Unlock()
		return err
	})
	run(func() error {
		n, err := s.repo.LatestNoise(ctx)
		mu.Lock()
		data.Noise = n
		mu.Unlock()
		return err
	})
	run(func() error {
		avg, err := s.repo.AveragePM25(ctx, now.Add(-time.Hour))
		mu.Lock()
		data.HourlyPM25 = avg
		mu.Unlock()
		return err
	})
	run(func() error {
		avg, err := s.repo.AveragePM25(ctx, now.Add(-24*time.Hour))
		mu.Lock()
		data.DailyPM25 = avg
		mu.Unlock()
		return err
	})

	wg.Wait()

	// Log any errors that occurred
	for _, err := range errs {
		s.log.Warn().Err(err).Msg("dashboard data fetch error")
	}

	// Even with errors, return what we have
	data.Timestamp = now
	return data, nil
}

// LatestTraffic returns the newest level of every road
func (s *DashboardService) LatestTraffic(ctx context.Context) (domain.TrafficSnapshot, error) {
	return s.repo.LatestTraffic(ctx)
}

// LatestEnvironment returns the newest air-quality observation
func (s *DashboardService) LatestEnvironment(ctx context.Context) (domain.EnvironmentReading, error) {
	return s.repo.LatestEnvironment(ctx)
}

// LatestNoise returns the newest reading per noise sensor
func (s *DashboardService) LatestNoise(ctx context.Context) ([]domain.NoiseReading, error) {
	return s.repo.LatestNoise(ctx)
}

// HistoricalTraffic returns traffic snapshots within the range
func (s *DashboardService) HistoricalTraffic(ctx context.Context, from, to time.Time) ([]domain.TrafficSnapshot, error) {
	return s.repo.GetHistoricalTraffic(ctx, from, to)
}

// HistoricalEnvironment returns environment readings within the range
func (s *DashboardService) HistoricalEnvironment(ctx context.Context, from, to time.Time) ([]domain.EnvironmentReading, error) {
	return s.repo.GetHistoricalEnvironment(ctx, from, to)
}

// HourlyAveragePM25 averages PM2.5 over the last hour
func (s *DashboardService) HourlyAveragePM25(ctx context.Context) (float64, error) {
	return s.repo.AveragePM25(ctx, s.now().Add(-time.Hour))
}

// DailyAveragePM25 averages PM2.5 over the last 24 hours
func (s *DashboardService) DailyAveragePM25(ctx context.Context) (float64, error) {
	return s.repo.AveragePM25(ctx, s.now().Add(-24*time.Hour))
}

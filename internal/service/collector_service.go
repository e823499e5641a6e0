package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikehood/twin/internal/domain"
	"github.com/bikehood/twin/internal/telemetry"
	"github.com/bikehood/twin/pkg/utils"
)

// Night-time and peak LAeq for the synthetic noise model
const (
	quietLAeq = 40.0
	peakLAeq  = 62.0
)

// CollectorService periodically snapshots traffic, environment and noise
// into the repository
type CollectorService struct {
	trafficSvc *TrafficService
	weatherSvc *WeatherService
	repo       DataRepository
	interval   time.Duration
	log        zerolog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// NewCollectorService creates a collector. A zero interval disables Run.
func NewCollectorService(
	trafficSvc *TrafficService,
	weatherSvc *WeatherService,
	repo DataRepository,
	interval time.Duration,
	log zerolog.Logger,
	metrics *telemetry.Metrics,
) *CollectorService {
	return &CollectorService{
		trafficSvc: trafficSvc,
		weatherSvc: weatherSvc,
		repo:       repo,
		interval:   interval,
		log:        log,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Run collects immediately and then on every tick until ctx is done
func (s *CollectorService) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("collector disabled")
		return
	}

	if err := s.CollectOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("collection failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CollectOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("collection failed")
			}
		}
	}
}

// CollectOnce fetches traffic and environment concurrently, derives noise
// and saves all three. Save failures are joined into the returned error.
func (s *CollectorService) CollectOnce(ctx context.Context) error {
	var (
		traffic domain.TrafficSnapshot
		env     domain.EnvironmentReading
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t, err := s.trafficSvc.CurrentTraffic(ctx)
		mu.Lock()
		if err != nil {
			errs = append(errs, err)
		} else {
			traffic = t
		}
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e, err := s.weatherSvc.CurrentEnvironment(ctx)
		mu.Lock()
		if err != nil {
			errs = append(errs, err)
		} else {
			env = e
		}
		mu.Unlock()
	}()

	wg.Wait()

	now := s.now()
	noise := SyntheticNoise(now)

	if len(traffic.Levels) > 0 {
		if err := s.repo.SaveTrafficSnapshot(ctx, traffic); err != nil {
			errs = append(errs, err)
		} else {
			s.metrics.Collection(ctx, "traffic", traffic.IsMock)
		}
	}
	if !env.Timestamp.IsZero() {
		if err := s.repo.SaveEnvironmentReading(ctx, env); err != nil {
			errs = append(errs, err)
		} else {
			s.metrics.Collection(ctx, "environment", env.IsMock)
		}
	}
	if err := s.repo.SaveNoiseReadings(ctx, noise); err != nil {
		errs = append(errs, err)
	} else {
		s.metrics.Collection(ctx, "noise", true)
	}

	s.log.Debug().
		Int("roads", len(traffic.Levels)).
		Float64("pm2_5", env.PM25).
		Int("noise_sensors", len(noise)).
		Msg("collection complete")

	return errors.Join(errs...)
}

// SyntheticNoise estimates an LAeq per noise sensor from the hour of day
func SyntheticNoise(now time.Time) []domain.NoiseReading {
	activity := noiseActivity(now.Hour())
	sensors := domain.SensorsOfType(domain.SensorNoise)
	out := make([]domain.NoiseReading, 0, len(sensors))
	for i, s := range sensors {
		laeq := utils.Lerp(quietLAeq, peakLAeq, activity) + float64(i)
		out = append(out, domain.NoiseReading{
			Timestamp: now,
			Location:  s.ID,
			LAeq:      utils.RoundTo(laeq, 1),
			IsMock:    true,
		})
	}
	return out
}

// noiseActivity returns 0 for the quietest hours and 1 at peak
func noiseActivity(hour int) float64 {
	switch {
	case hour >= 23 || hour <= 5:
		return 0
	case hour == 6 || hour == 22:
		return 0.3
	case hour >= 7 && hour <= 9, hour >= 16 && hour <= 18:
		return 1
	default:
		return 0.6
	}
}

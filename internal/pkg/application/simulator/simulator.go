package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"

	"github.com/rs/zerolog"
)

// Simulator writes randomised readings for every active sensor at a fixed
// interval, so that a development environment has live data to stream.
type Simulator interface {
	Start()
	Stop()
}

type simulatorImpl struct {
	log         zerolog.Logger
	sensorRepo  sensors.SensorRepository
	readingRepo readings.ReadingRepository

	interval time.Duration
	rng      *rand.Rand

	mu        sync.Mutex
	baselines map[uint]float64

	done chan bool
}

func New(log zerolog.Logger, sensorRepo sensors.SensorRepository, readingRepo readings.ReadingRepository, interval time.Duration) Simulator {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &simulatorImpl{
		log:         log,
		sensorRepo:  sensorRepo,
		readingRepo: readingRepo,
		interval:    interval,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		baselines:   make(map[uint]float64),
		done:        make(chan bool),
	}
}

func (s *simulatorImpl) Start() {
	go backgroundWorker(s, s.done)
}

func (s *simulatorImpl) Stop() {
	close(s.done)
}

func backgroundWorker(s *simulatorImpl, done <-chan bool) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.emit(context.Background())
		}
	}
}

func (s *simulatorImpl) emit(ctx context.Context) {
	result, err := s.sensorRepo.GetSensors(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("could not list sensors")
		return
	}

	for _, sensor := range result {
		if !sensor.Active {
			continue
		}

		err = s.readingRepo.Add(ctx, &readings.Reading{
			SensorID:  sensor.ID,
			Value:     s.next(sensor.ID),
			Unit:      sensor.SensorType.Unit,
			Timestamp: time.Now().UTC(),
			Validated: true,
		})
		if err != nil {
			s.log.Error().Err(err).Msgf("could not store reading for sensor %d", sensor.ID)
		}
	}
}

// next walks the baseline value for a sensor with some gaussian noise and an
// occasional spike, which keeps the stream plausible and now and then pushes
// a value over a configured threshold.
func (s *simulatorImpl) next(sensorID uint) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	baseline, exists := s.baselines[sensorID]
	if !exists {
		baseline = 20.0 + s.rng.Float64()*30.0
	}

	baseline = clamp(baseline+s.rng.NormFloat64()*1.5, 5.0, 90.0)
	s.baselines[sensorID] = baseline

	value := baseline

	if s.rng.Float64() < 0.04 {
		value = value + s.rng.Float64()*60.0 + 10.0
	}

	return math.Round(value*10) / 10
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

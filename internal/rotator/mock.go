package rotator

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

// Simulated is an in-memory rotator. Each position query moves the readback
// a third of the remaining distance towards the target, plus uniform jitter
// in [-Jitter, Jitter] on both axes.
type Simulated struct {
	Jitter float64

	cfg    Config
	logger logging.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	current  model.Position
	target   model.Position
	stops    int
	resets   int
	closed   bool
	commands []string
}

// NewSimulated returns a rotator parked at start. seed makes the jitter repeatable.
func NewSimulated(start model.Position, cfg Config, seed int64, logger logging.Logger) *Simulated {
	if logger == nil {
		logger = logging.Default()
	}
	return &Simulated{
		Jitter:  0.05,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(logging.F("subsystem", "rotator"), logging.F("driver", "mock")),
		rng:     rand.New(rand.NewSource(seed)),
		current: start,
		target:  start,
	}
}

func (s *Simulated) MoveTo(ctx context.Context, target model.Position) (model.Position, error) {
	return converge(ctx, s, target, s.cfg, s.logger)
}

func (s *Simulated) SetTarget(ctx context.Context, target model.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
	s.commands = append(s.commands, "P")
	return nil
}

func (s *Simulated) Position(ctx context.Context) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, "p")
	remaining := s.target.Sub(s.current)
	s.current = s.current.Add(model.Position{Azimuth: remaining.Azimuth / 3, Elevation: remaining.Elevation / 3})
	return s.current.Add(model.Position{Azimuth: s.noise(), Elevation: s.noise()}), nil
}

func (s *Simulated) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.commands = append(s.commands, "S")
	return nil
}

func (s *Simulated) ResetDriver(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.commands = append(s.commands, "R")
	return nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Commands returns the command letters received so far.
func (s *Simulated) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Resets returns how many driver resets were requested.
func (s *Simulated) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Simulated) noise() float64 {
	if s.Jitter <= 0 {
		return 0
	}
	return (s.rng.Float64()*2 - 1) * s.Jitter
}

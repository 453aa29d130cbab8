package rotator

import (
	"context"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// Rotator captures the pointing operations required by the sweep orchestrator.
type Rotator interface {
	// MoveTo commands the target and blocks until the readback converges.
	// It returns the settled position.
	MoveTo(ctx context.Context, target model.Position) (model.Position, error)
	Position(ctx context.Context) (model.Position, error)
	Stop(ctx context.Context) error
	// ResetDriver stops motion and resets the motor driver.
	ResetDriver(ctx context.Context) error
	Close() error
}

// Device is the raw command surface the convergence loop drives.
type Device interface {
	SetTarget(ctx context.Context, target model.Position) error
	Position(ctx context.Context) (model.Position, error)
	Stop(ctx context.Context) error
}

// Config holds the convergence parameters of one rotator session.
type Config struct {
	// Tolerance is the accepted per-axis distance to the target in degrees.
	Tolerance float64
	// PollInterval is the delay between position queries.
	PollInterval time.Duration
	// MotionNoise is the per-axis step below which the readback counts as settled.
	MotionNoise float64
	// StableCount is exceeded by consecutive settled, in-tolerance polls on convergence.
	StableCount int
	// MaxPolls bounds consecutive settled polls that did not converge.
	MaxPolls int
	// MaxTotalPolls bounds all polls of one move, zero disables the ceiling.
	MaxTotalPolls int
}

// DefaultConfig returns the empirically chosen convergence constants.
func DefaultConfig() Config {
	return Config{
		Tolerance:     0.5,
		PollInterval:  500 * time.Millisecond,
		MotionNoise:   0.5,
		StableCount:   2,
		MaxPolls:      20,
		MaxTotalPolls: 600,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.PollInterval < 0 {
		c.PollInterval = 0
	}
	if c.MotionNoise <= 0 {
		c.MotionNoise = d.MotionNoise
	}
	if c.StableCount <= 0 {
		c.StableCount = d.StableCount
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = d.MaxPolls
	}
	if c.MaxTotalPolls < 0 {
		c.MaxTotalPolls = 0
	}
	return c
}

// Package app sequences the rotator and the receiver: the grid sweep that
// builds a noise map and the loop that keeps the antenna on a moving object.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/noisemap/internal/imaging"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
	"github.com/rjboer/noisemap/internal/rotator"
	"github.com/rjboer/noisemap/internal/sdr"
	"github.com/rjboer/noisemap/internal/telemetry"
)

// State is the lifecycle stage of a sweep.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateMeasuring
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateMeasuring:
		return "measuring"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config controls one sweep.
type Config struct {
	// Frequency is the acquisition center frequency in Hz.
	Frequency float64
	// FallbackFrequency is used when Frequency is zero, normally the antenna
	// center frequency.
	FallbackFrequency float64
	TakeImages        bool
	ImageDir          string
}

// Result is the outcome of a sweep. Measurements holds every point completed
// before the sweep ended, in path order, also when it was aborted.
type Result struct {
	ID           uuid.UUID
	State        State
	Frequency    float64
	Measurements []model.Measurement
	Images       []string
	Started      time.Time
	Finished     time.Time
	Err          error
}

// PointError reports a grid point that failed on both attempts.
type PointError struct {
	Index  int
	Target model.Position
	Err    error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("point %d at %s: %v", e.Index, e.Target, e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }

// Recorder persists sweep progress. Recorder failures are logged and never
// abort a sweep.
type Recorder interface {
	BeginSweep(ctx context.Context, id uuid.UUID, frequency float64, total int, started time.Time) error
	RecordMeasurement(ctx context.Context, id uuid.UUID, index int, m model.Measurement) error
	FinishSweep(ctx context.Context, id uuid.UUID, state string, finished time.Time, sweepErr error) error
}

// Sweeper walks a path with the rotator and records one PSD sample per point.
type Sweeper struct {
	rotator  rotator.Rotator
	receiver sdr.Receiver
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config

	capturer imaging.Capturer
	recorder Recorder
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// NewSweeper builds a sweeper. reporter may be nil.
func NewSweeper(rot rotator.Rotator, receiver sdr.Receiver, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		rotator:  rot,
		receiver: receiver,
		reporter: reporter,
		logger:   logger.With(logging.F("subsystem", "sweep")),
		cfg:      cfg,
		capturer: imaging.Nop{},
		now:      time.Now,
	}
}

// SetCapturer sets the per-point image source used when TakeImages is set.
func (s *Sweeper) SetCapturer(c imaging.Capturer) {
	if c == nil {
		c = imaging.Nop{}
	}
	s.capturer = c
}

// SetRecorder sets where sweep progress is persisted.
func (s *Sweeper) SetRecorder(r Recorder) {
	s.recorder = r
}

// State returns the current lifecycle stage.
func (s *Sweeper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frequency resolves the acquisition frequency of the next sweep.
func (s *Sweeper) Frequency() (float64, error) {
	if s.cfg.Frequency > 0 {
		return s.cfg.Frequency, nil
	}
	if s.cfg.FallbackFrequency > 0 {
		return s.cfg.FallbackFrequency, nil
	}
	return 0, errors.New("no target frequency configured and no antenna center frequency")
}

// Run measures every position of path in order.
//
// A failed point gets one recovery attempt: the rotator driver is reset and
// the point is measured again. A second failure aborts the sweep. Acquisition
// is always stopped before Run returns. The returned Result is never nil; its
// Err equals the returned error.
func (s *Sweeper) Run(ctx context.Context, path []model.Position) (*Result, error) {
	res := &Result{ID: uuid.New(), Started: s.now()}
	sweepID := res.ID.String()
	logger := s.logger.With(logging.F("sweep_id", sweepID))

	finish := func(state State, err error) (*Result, error) {
		res.State = state
		res.Err = err
		res.Finished = s.now()
		s.setState(sweepID, state, len(path), err)
		if s.recorder != nil {
			if rerr := s.recorder.FinishSweep(context.WithoutCancel(ctx), res.ID, state.String(), res.Finished, err); rerr != nil {
				logger.Warn("record sweep result", logging.Err(rerr))
			}
		}
		fields := []logging.Field{
			logging.F("state", state.String()),
			logging.F("points", len(res.Measurements)),
			logging.F("total", len(path)),
			logging.F("duration", res.Finished.Sub(res.Started)),
		}
		if err != nil {
			logger.Error("sweep aborted", append(fields, logging.Err(err))...)
		} else {
			logger.Info("sweep completed", fields...)
		}
		return res, err
	}

	freq, err := s.Frequency()
	if err != nil {
		return finish(StateAborted, err)
	}
	res.Frequency = freq

	s.setState(sweepID, StateAcquiring, len(path), nil)
	if s.recorder != nil {
		if err := s.recorder.BeginSweep(ctx, res.ID, freq, len(path), res.Started); err != nil {
			logger.Warn("record sweep start", logging.Err(err))
		}
	}
	logger.Info("starting acquisition", logging.F("frequency_hz", freq), logging.F("total", len(path)))
	if err := s.receiver.Start(ctx, freq); err != nil {
		_ = s.receiver.Stop()
		return finish(StateAborted, fmt.Errorf("start acquisition: %w", err))
	}
	defer func() {
		if err := s.receiver.Stop(); err != nil {
			logger.Warn("stop acquisition", logging.Err(err))
		}
	}()

	s.setState(sweepID, StateMeasuring, len(path), nil)
	for i, target := range path {
		if err := ctx.Err(); err != nil {
			return finish(StateAborted, err)
		}

		m, err := s.measurePoint(ctx, sweepID, i, len(path), target, logger)
		if err != nil {
			return finish(StateAborted, err)
		}
		res.Measurements = append(res.Measurements, m)
		logger.Info("point measured",
			logging.F("point", i),
			logging.F("azimuth", m.Achieved.Azimuth),
			logging.F("elevation", m.Achieved.Elevation),
			logging.F("power_mean", m.Sample.Mean()))

		if s.recorder != nil {
			if err := s.recorder.RecordMeasurement(ctx, res.ID, i, m); err != nil {
				logger.Warn("record measurement", logging.F("point", i), logging.Err(err))
			}
		}

		if s.cfg.TakeImages {
			if img, ok := s.captureImage(ctx, sweepID, i, m, logger); ok {
				res.Images = append(res.Images, img)
			}
		}
	}
	return finish(StateCompleted, nil)
}

// measurePoint runs the two-tier recovery policy for one grid point.
func (s *Sweeper) measurePoint(ctx context.Context, sweepID string, index, total int, target model.Position, logger logging.Logger) (model.Measurement, error) {
	logger = logger.With(logging.F("point", index))

	m, err := s.measure(ctx, sweepID, index, total, target)
	if err == nil {
		return m, nil
	}
	if ctx.Err() != nil {
		return model.Measurement{}, ctx.Err()
	}
	logger.Warn("measurement failed, resetting rotator driver",
		logging.F("azimuth", target.Azimuth),
		logging.F("elevation", target.Elevation),
		logging.Err(err))
	s.reportFault(sweepID, index, target, telemetry.FaultMeasurement, err)

	if rerr := s.resetRotator(ctx); rerr != nil {
		if ctx.Err() != nil {
			return model.Measurement{}, ctx.Err()
		}
		s.reportFault(sweepID, index, target, telemetry.FaultReset, rerr)
		return model.Measurement{}, &PointError{Index: index, Target: target, Err: fmt.Errorf("reset driver after %v: %w", err, rerr)}
	}

	m, err = s.measure(ctx, sweepID, index, total, target)
	if err != nil {
		if ctx.Err() != nil {
			return model.Measurement{}, ctx.Err()
		}
		s.reportFault(sweepID, index, target, telemetry.FaultMeasurement, err)
		return model.Measurement{}, &PointError{Index: index, Target: target, Err: err}
	}
	logger.Info("point recovered after driver reset")
	return m, nil
}

// measure moves to target, then takes one sample at the achieved position.
func (s *Sweeper) measure(ctx context.Context, sweepID string, index, total int, target model.Position) (model.Measurement, error) {
	moveStart := s.now()
	achieved, err := s.rotator.MoveTo(ctx, target)
	if err != nil {
		return model.Measurement{}, fmt.Errorf("move rotator: %w", err)
	}
	sampleStart := s.now()
	sample, err := s.receiver.LatestSample(ctx)
	if err != nil {
		return model.Measurement{}, fmt.Errorf("read sample: %w", err)
	}
	m := model.NewMeasurement(target, achieved, sample)

	if s.reporter != nil {
		e := telemetry.PointEvent(sweepID, index, total, m)
		e.MoveSeconds = sampleStart.Sub(moveStart).Seconds()
		e.SampleSeconds = s.now().Sub(sampleStart).Seconds()
		s.reporter.Report(e)
	}
	return m, nil
}

func (s *Sweeper) resetRotator(ctx context.Context) error {
	if err := s.rotator.Stop(ctx); err != nil {
		return fmt.Errorf("stop rotator: %w", err)
	}
	return s.rotator.ResetDriver(ctx)
}

// captureImage tries twice and gives up silently apart from logging.
func (s *Sweeper) captureImage(ctx context.Context, sweepID string, index int, m model.Measurement, logger logging.Logger) (string, bool) {
	path := filepath.Join(s.cfg.ImageDir, imaging.FileName(m.Timestamp()))
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = s.capturer.Capture(ctx, path); err == nil {
			if s.reporter != nil {
				achieved := m.Achieved
				s.reporter.Report(telemetry.Event{
					Kind:      telemetry.EventImage,
					Timestamp: s.now(),
					SweepID:   sweepID,
					Index:     index,
					Achieved:  &achieved,
					Path:      path,
				})
			}
			return path, true
		}
		logger.Warn("image capture failed",
			logging.F("point", index),
			logging.F("attempt", attempt),
			logging.F("path", path),
			logging.Err(err))
	}
	s.reportFault(sweepID, index, m.Target, telemetry.FaultImage, err)
	return "", false
}

func (s *Sweeper) setState(sweepID string, state State, total int, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	if s.reporter == nil {
		return
	}
	e := telemetry.Event{
		Kind:      telemetry.EventState,
		Timestamp: s.now(),
		SweepID:   sweepID,
		State:     state.String(),
		Total:     total,
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.reporter.Report(e)
}

func (s *Sweeper) reportFault(sweepID string, index int, target model.Position, fault string, err error) {
	if s.reporter == nil {
		return
	}
	s.reporter.Report(telemetry.Event{
		Kind:      telemetry.EventFault,
		Timestamp: s.now(),
		SweepID:   sweepID,
		Index:     index,
		Target:    &target,
		Fault:     fault,
		Error:     err.Error(),
	})
}

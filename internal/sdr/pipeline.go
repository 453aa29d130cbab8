package sdr

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/model"
)

// lineBacklog bounds how many unread lines are held in memory. Beyond it the
// reader stops and the operating system pipe applies back-pressure.
const lineBacklog = 256

// Pipeline runs an acquisition process and hands out its most recent PSD line.
type Pipeline struct {
	cfg      Config
	launcher Launcher
	logger   logging.Logger

	mu      sync.Mutex
	session *session
}

// session is the state of one live acquisition process.
type session struct {
	proc      Process
	frequency float64
	started   time.Time
	warmedUp  bool

	lines    chan string
	done     chan struct{}
	pumpDone chan struct{}
	pumpErr  error
}

// NewPipeline builds a pipeline that launches processes through launcher.
func NewPipeline(cfg Config, launcher Launcher, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger.With(logging.F("subsystem", "sdr"), logging.F("driver", cfg.Driver)),
	}
}

// Config returns the effective session configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Start launches acquisition at frequency, replacing any running session.
func (p *Pipeline) Start(ctx context.Context, frequency float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		if err := p.stopLocked(); err != nil {
			p.logger.Warn("stopping previous acquisition failed", logging.Err(err))
		}
	}

	args := soapyArgs(p.cfg, frequency)
	proc, err := p.launcher.Launch(ctx, p.cfg.Binary, args)
	if err != nil {
		return fmt.Errorf("start acquisition at %.0f Hz: %w", frequency, err)
	}

	s := &session{
		proc:      proc,
		frequency: frequency,
		started:   time.Now(),
		lines:     make(chan string, lineBacklog),
		done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
	go s.pump(proc.Stdout())
	p.session = s

	p.logger.Info("acquisition started",
		logging.F("frequency_hz", frequency),
		logging.F("sample_rate", p.cfg.SampleRate),
		logging.F("bins", p.cfg.Bins),
		logging.F("gain", p.cfg.Gain))
	return nil
}

// Stop terminates the acquisition process group. Stopping twice is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	s := p.session
	if s == nil {
		return nil
	}
	p.session = nil

	close(s.done)
	err := s.proc.Stop()
	<-s.pumpDone
	p.logger.Info("acquisition stopped", logging.F("frequency_hz", s.frequency))
	if err != nil {
		return fmt.Errorf("stop acquisition: %w", err)
	}
	return nil
}

// Close stops acquisition and releases launcher resources such as SSH connections.
func (p *Pipeline) Close() error {
	err := p.Stop()
	if c, ok := p.launcher.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ChangeFrequency restarts acquisition at frequency; the warm-up applies again.
func (p *Pipeline) ChangeFrequency(ctx context.Context, frequency float64) error {
	p.logger.Info("changing frequency", logging.F("frequency_hz", frequency))
	return p.Start(ctx, frequency)
}

// Frequency is the configured center frequency, 0 when stopped.
func (p *Pipeline) Frequency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return 0
	}
	return p.session.frequency
}

// LatestSample waits out the warm-up on the first call of a session, discards
// the buffered backlog and then returns the next line the process writes.
// ReadTimeout bounds draining and reading together.
func (p *Pipeline) LatestSample(ctx context.Context) (model.PsdSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.session
	if s == nil {
		return model.PsdSample{}, ErrNotRunning
	}

	if !s.warmedUp {
		if remaining := p.cfg.Warmup - time.Since(s.started); remaining > 0 {
			p.logger.Info("waiting for receiver warm-up", logging.F("remaining", remaining.String()))
			if err := sleep(ctx, remaining); err != nil {
				return model.PsdSample{}, err
			}
		}
		s.warmedUp = true
	}

	expire := time.NewTimer(p.cfg.ReadTimeout)
	defer expire.Stop()

	drained, line, err := s.drain(ctx, p.cfg.DrainThreshold, expire.C, p.cfg.ReadTimeout)
	if err != nil {
		return model.PsdSample{}, err
	}
	if line == "" {
		line, err = s.next(ctx, expire.C, p.cfg.ReadTimeout)
		if err != nil {
			return model.PsdSample{}, err
		}
	}
	sample, err := ParseLine(line)
	if err != nil {
		return model.PsdSample{}, err
	}
	p.logger.Debug("sample read",
		logging.F("drained", drained),
		logging.F("frequency_hz", sample.CenterFrequency()),
		logging.F("samples", sample.SampleCount))
	return sample, nil
}

// pump copies stdout lines into the session channel until the process ends
// or the session is stopped.
func (s *session) pump(r io.Reader) {
	defer close(s.pumpDone)
	defer close(s.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.done:
			return
		}
	}
	s.pumpErr = scanner.Err()
}

// drain discards lines until none arrived for threshold. When expire fires
// first the producer is outpacing the threshold and the newest discarded line
// is returned as the sample to parse.
func (s *session) drain(ctx context.Context, threshold time.Duration, expire <-chan time.Time, timeout time.Duration) (int, string, error) {
	quiet := time.NewTimer(threshold)
	defer quiet.Stop()

	drained := 0
	newest := ""
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return drained, "", s.exitErr()
			}
			drained++
			newest = line
			if !quiet.Stop() {
				<-quiet.C
			}
			quiet.Reset(threshold)
		case <-quiet.C:
			return drained, "", nil
		case <-expire:
			if newest == "" {
				return drained, "", fmt.Errorf("%w: backlog never settled within %s", ErrStalled, timeout)
			}
			return drained, newest, nil
		case <-ctx.Done():
			return drained, "", ctx.Err()
		}
	}
}

// next returns the next line or ErrStalled once expire fires.
func (s *session) next(ctx context.Context, expire <-chan time.Time, timeout time.Duration) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", s.exitErr()
		}
		return line, nil
	case <-expire:
		return "", fmt.Errorf("%w: no line within %s", ErrStalled, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exitErr is only valid once lines is closed, which happens after pumpErr is set.
func (s *session) exitErr() error {
	if s.pumpErr != nil {
		return fmt.Errorf("%w: %v", ErrProcessExited, s.pumpErr)
	}
	return ErrProcessExited
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

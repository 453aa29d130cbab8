package sdr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// Receiver captures the acquisition operations required by the sweep orchestrator.
type Receiver interface {
	// Start launches acquisition at frequency (Hz), replacing any running session.
	Start(ctx context.Context, frequency float64) error
	// Stop terminates the acquisition process group. Stopping twice is a no-op.
	Stop() error
	// LatestSample blocks until a PSD line newer than any backlog is available.
	LatestSample(ctx context.Context) (model.PsdSample, error)
	// ChangeFrequency restarts acquisition at frequency and re-incurs the warm-up.
	ChangeFrequency(ctx context.Context, frequency float64) error
	// Frequency is the currently configured center frequency, 0 when stopped.
	Frequency() float64
}

var (
	// ErrNotRunning is returned by LatestSample before Start.
	ErrNotRunning = errors.New("acquisition not running")
	// ErrProcessExited is returned when the acquisition process closed its output.
	ErrProcessExited = errors.New("acquisition process exited")
	// ErrStalled is returned when no fresh line arrived within the read deadline.
	ErrStalled = errors.New("acquisition stalled")
)

// ParseError reports a malformed PSD line.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse psd line: %s: %q", e.Reason, truncate(e.Line, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SSHConfig describes a remote host that runs the acquisition process.
type SSHConfig struct {
	Host     string
	User     string
	Password string
	KeyPath  string
	Port     int
}

// Config carries the parameters of one acquisition session.
type Config struct {
	// Driver is the SoapySDR driver name: uhd, lime, rtlsdr or mock.
	// Empty selects auto-detection.
	Driver     string
	Binary     string
	SampleRate float64
	// Gain is the LNA gain in dB; zero leaves it to the driver.
	Gain float64
	Bins int
	// TuneDelay is the settle time the acquisition tool waits after retuning.
	TuneDelay time.Duration
	// Integration is the averaging time of one PSD line.
	Integration time.Duration
	// Warmup is waited out, once per process, before the first sample is read.
	Warmup time.Duration
	// DrainThreshold is how long the backlog must stay quiet to count as drained.
	DrainThreshold time.Duration
	// ReadTimeout bounds draining the backlog and reading a fresh line together.
	ReadTimeout time.Duration
	// SSH runs the acquisition process on a remote host when Host is set.
	SSH SSHConfig
}

// DefaultConfig returns the settings shared by all drivers.
func DefaultConfig() Config {
	return Config{
		Binary:         "soapy_power",
		Bins:           16,
		TuneDelay:      time.Second,
		Integration:    time.Second,
		Warmup:         10 * time.Second,
		DrainThreshold: time.Millisecond,
		ReadTimeout:    5 * time.Second,
	}
}

// DriverDefaults returns the sample rate (S/s) and gain (dB) used when the
// configuration leaves them unset.
func DriverDefaults(driver string) (sampleRate, gain float64, ok bool) {
	switch strings.ToLower(driver) {
	case "uhd":
		return 4e6, 76, true
	case "lime":
		return 4e6, 0, true
	case "rtlsdr":
		return 2.048e6, 37.2, true
	case "mock":
		return 2.048e6, 0, true
	default:
		return 0, 0, false
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Binary == "" {
		c.Binary = d.Binary
	}
	if c.Bins <= 0 {
		c.Bins = d.Bins
	}
	if c.TuneDelay <= 0 {
		c.TuneDelay = d.TuneDelay
	}
	if c.Integration <= 0 {
		c.Integration = d.Integration
	}
	if c.Warmup < 0 {
		c.Warmup = 0
	}
	if c.DrainThreshold <= 0 {
		c.DrainThreshold = d.DrainThreshold
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if rate, gain, ok := DriverDefaults(c.Driver); ok {
		if c.SampleRate <= 0 {
			c.SampleRate = rate
		}
		if c.Gain == 0 {
			c.Gain = gain
		}
	}
	return c
}

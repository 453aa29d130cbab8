package sdr

import (
	"context"
	"fmt"
	"strings"

	"github.com/rjboer/noisemap/internal/logging"
)

// New returns the receiver named by cfg.Driver. An empty driver runs
// detection and requires exactly one attached receiver.
func New(ctx context.Context, cfg Config, logger logging.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		devices, err := Detect(ctx, cfg.Binary)
		if err != nil {
			return nil, err
		}
		dev, err := SelectDevice(devices)
		if err != nil {
			return nil, err
		}
		cfg.Driver = strings.ToLower(dev.Driver())
		logger.Info("receiver detected", logging.F("driver", cfg.Driver), logging.F("label", dev.Label()))
	}

	switch cfg.Driver {
	case "uhd", "lime", "rtlsdr":
		launcher, err := launcherFor(cfg)
		if err != nil {
			return nil, err
		}
		return NewPipeline(cfg, launcher, logger), nil
	case "mock":
		return NewPipeline(cfg, SimulatedLauncher{}, logger), nil
	default:
		return nil, fmt.Errorf("no setup defined for %q receivers", cfg.Driver)
	}
}

func launcherFor(cfg Config) (Launcher, error) {
	if cfg.SSH.Host == "" {
		return LocalLauncher{}, nil
	}
	return NewSSHLauncher(cfg.SSH)
}

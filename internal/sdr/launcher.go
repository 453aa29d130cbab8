package sdr

import (
	"context"
	"io"
	"strconv"
	"time"
)

// Process is one running acquisition child.
type Process interface {
	// Stdout streams the PSD lines.
	Stdout() io.Reader
	// Stop terminates the process and every process in its group.
	Stop() error
}

// Launcher starts acquisition processes.
type Launcher interface {
	Launch(ctx context.Context, binary string, args []string) (Process, error)
}

// soapyArgs builds the soapy_power command line for one session.
func soapyArgs(cfg Config, frequency float64) []string {
	args := []string{
		"--freq", formatFloat(frequency),
		"--rate", formatFloat(cfg.SampleRate),
		"--bins", strconv.Itoa(cfg.Bins),
		"--tune-delay", formatSeconds(cfg.TuneDelay),
		"--device", "driver=" + cfg.Driver,
	}
	if cfg.Gain != 0 {
		args = append(args, "--gain", formatFloat(cfg.Gain))
	}
	return append(args, "--time", formatSeconds(cfg.Integration), "--quiet", "--continue")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

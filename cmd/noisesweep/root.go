package main

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rjboer/noisemap/internal/config"
	"github.com/rjboer/noisemap/internal/logging"
)

type lookupFunc func(string) (string, bool)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	lookup     lookupFunc
	configPath string
	logLevel   string
	logFormat  string
	logOut     io.Writer
}

func newRootCmd(lookup lookupFunc) *cobra.Command {
	opts := &globalOptions{lookup: lookup, logOut: os.Stderr}

	root := &cobra.Command{
		Use:   "noisesweep",
		Short: "Map received noise power around a sky target",
		Long: `noisesweep points a two-axis rotator over a serpentine grid around a target,
records one PSD sample from the SDR at every settled position and stores the
measurements in SQLite. Live progress is served over HTTP.

Every flag can also be set with the NOISE_* environment variable named in its help.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", envString(lookup, "NOISE_CONFIG", "noisemap.yaml"), "Configuration file, created with defaults when missing (NOISE_CONFIG)")
	pf.StringVar(&opts.logLevel, "log-level", envString(lookup, "NOISE_LOG_LEVEL", ""), "Log level override: debug|info|warn|error (NOISE_LOG_LEVEL)")
	pf.StringVar(&opts.logFormat, "log-format", envString(lookup, "NOISE_LOG_FORMAT", ""), "Log format override: text|json (NOISE_LOG_FORMAT)")

	root.AddCommand(
		newSweepCmd(opts),
		newTrackCmd(opts),
		newDetectCmd(opts),
		newDiscoverCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// load reads the configuration file and builds the process logger from it.
func (o *globalOptions) load() (config.Config, logging.Logger, error) {
	cfg, err := config.LoadOrCreate(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger, err := o.logger(cfg.Logging)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func (o *globalOptions) logger(cfg config.Logging) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, format, o.logOut)
	logging.SetDefault(logger)
	return logger, nil
}

func envString(lookup lookupFunc, key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func envFloat(lookup lookupFunc, key string, def float64) float64 {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup lookupFunc, key string, def int) int {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup lookupFunc, key string, def bool) bool {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

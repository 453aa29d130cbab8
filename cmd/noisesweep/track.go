package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/noisemap/internal/app"
	"github.com/rjboer/noisemap/internal/rotator"
)

type trackOptions struct {
	target   string
	duration time.Duration
	interval time.Duration
	webAddr  string
}

func newTrackCmd(g *globalOptions) *cobra.Command {
	o := &trackOptions{}
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Keep the antenna pointed at the target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrack(cmd, g, o)
		},
	}
	l := g.lookup
	f := cmd.Flags()
	f.StringVar(&o.target, "target", envString(l, "NOISE_TARGET", ""), "Target object, default from config (NOISE_TARGET)")
	f.DurationVar(&o.duration, "duration", envDuration(l, "NOISE_TRACK_DURATION", 0), "How long to track, default from config (NOISE_TRACK_DURATION)")
	f.DurationVar(&o.interval, "interval", envDuration(l, "NOISE_TRACK_INTERVAL", 0), "Delay between moves, default from config (NOISE_TRACK_INTERVAL)")
	f.StringVar(&o.webAddr, "web-addr", envString(l, "NOISE_WEB_ADDR", ""), "Telemetry listen address (NOISE_WEB_ADDR)")
	return cmd
}

func runTrack(cmd *cobra.Command, g *globalOptions, o *trackOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if o.target != "" {
		cfg.Controller.TargetObject = o.target
	}
	if o.duration > 0 {
		cfg.Controller.TrackDuration = o.duration
	}
	if o.interval > 0 {
		cfg.Controller.TrackInterval = o.interval
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}

	webAddr := cfg.WebAddr()
	if o.webAddr != "" {
		webAddr = o.webAddr
	}
	tel, err := newTelemetry(cfg, webAddr, logger)
	if err != nil {
		return err
	}
	defer tel.Close()

	rot, err := rotator.Open(ctx, cfg.RotatorOptions(logger))
	if err != nil {
		return fmt.Errorf("open rotator: %w", err)
	}
	defer rot.Close()

	tracker := app.NewTracker(rot, tel.reporter, logger)
	return tel.run(ctx, func(ctx context.Context) error {
		moves, err := tracker.Run(ctx, target, cfg.Controller.TrackDuration, cfg.Controller.TrackInterval)
		fmt.Fprintf(cmd.OutOrStdout(), "tracked %s: %d moves\n", target.Name(), moves)
		return err
	})
}

func envDuration(lookup lookupFunc, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

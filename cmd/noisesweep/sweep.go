package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/noisemap/internal/antenna"
	"github.com/rjboer/noisemap/internal/app"
	"github.com/rjboer/noisemap/internal/config"
	"github.com/rjboer/noisemap/internal/imaging"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/rotator"
	"github.com/rjboer/noisemap/internal/sdr"
	"github.com/rjboer/noisemap/internal/store"
)

type sweepOptions struct {
	frequency  float64
	widthAz    float64
	widthEl    float64
	stepAz     float64
	stepEl     float64
	target     string
	takeImages bool
	startTime  string
	webAddr    string
	exportPath string
	dryRun     bool
}

func newSweepCmd(g *globalOptions) *cobra.Command {
	o := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Measure a grid of positions around the target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, g, o)
		},
	}
	l := g.lookup
	f := cmd.Flags()
	f.Float64Var(&o.frequency, "frequency", envFloat(l, "NOISE_FREQUENCY", 0), "Center frequency in Hz, default from config or antenna (NOISE_FREQUENCY)")
	f.Float64Var(&o.widthAz, "scan-width-az", envFloat(l, "NOISE_SCAN_WIDTH_AZ", 0), "Azimuth extent in degrees (NOISE_SCAN_WIDTH_AZ)")
	f.Float64Var(&o.widthEl, "scan-width-el", envFloat(l, "NOISE_SCAN_WIDTH_EL", 0), "Elevation extent in degrees (NOISE_SCAN_WIDTH_EL)")
	f.Float64Var(&o.stepAz, "step-az", envFloat(l, "NOISE_STEP_AZ", 0), "Azimuth step in degrees (NOISE_STEP_AZ)")
	f.Float64Var(&o.stepEl, "step-el", envFloat(l, "NOISE_STEP_EL", 0), "Elevation step in degrees (NOISE_STEP_EL)")
	f.StringVar(&o.target, "target", envString(l, "NOISE_TARGET", ""), "Target object: sun, fixed:<az>,<el> or a TLE satellite name (NOISE_TARGET)")
	f.BoolVar(&o.takeImages, "take-images", envBool(l, "NOISE_TAKE_IMAGES", false), "Capture a webcam frame at every point (NOISE_TAKE_IMAGES)")
	f.StringVar(&o.startTime, "start-time", envString(l, "NOISE_START_TIME", ""), "Wait until this UTC time, RFC 3339 or \"2006-01-02 15:04:05\" (NOISE_START_TIME)")
	f.StringVar(&o.webAddr, "web-addr", envString(l, "NOISE_WEB_ADDR", ""), "Telemetry listen address, overrides application_ip/port (NOISE_WEB_ADDR)")
	f.StringVar(&o.exportPath, "export", envString(l, "NOISE_EXPORT", ""), "Write the measurements to this CSV file (NOISE_EXPORT)")
	f.BoolVar(&o.dryRun, "dry-run", false, "Print the planned path and exit")
	return cmd
}

func (o *sweepOptions) apply(cfg *config.Config) {
	if o.frequency > 0 {
		cfg.Controller.TargetFrequency = o.frequency
	}
	if o.widthAz > 0 {
		cfg.Controller.ScanWidthAz = o.widthAz
	}
	if o.widthEl > 0 {
		cfg.Controller.ScanWidthEl = o.widthEl
	}
	if o.stepAz > 0 {
		cfg.Controller.StepSizeAz = o.stepAz
	}
	if o.stepEl > 0 {
		cfg.Controller.StepSizeEl = o.stepEl
	}
	if o.target != "" {
		cfg.Controller.TargetObject = o.target
	}
	if o.takeImages {
		cfg.Controller.TakeImages = true
	}
}

// parseStartTime accepts RFC 3339 or a plain UTC date and time.
func parseStartTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateTime, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("start time %q: want RFC 3339 or %q", s, time.DateTime)
	}
	return t, nil
}

func runSweep(cmd *cobra.Command, g *globalOptions, o *sweepOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ant, err := antenna.New(cfg.AntennaParameters())
	if err != nil {
		return err
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}

	if o.startTime != "" {
		start, err := parseStartTime(o.startTime)
		if err != nil {
			return err
		}
		if err := app.WaitUntil(ctx, start, logger); err != nil {
			return err
		}
	}

	plan, err := app.NewPlan(app.PlanRequest{
		Target:  target,
		At:      time.Now(),
		Width:   cfg.ScanWidth(),
		Step:    cfg.StepSize(),
		Antenna: ant,
	})
	if err != nil {
		return err
	}
	logger.Info("sweep planned",
		logging.F("target", target.Name()),
		logging.F("azimuth", plan.Center.Azimuth),
		logging.F("elevation", plan.Center.Elevation),
		logging.F("step_az", plan.Step.Azimuth),
		logging.F("step_el", plan.Step.Elevation),
		logging.F("points", len(plan.Path)))

	out := cmd.OutOrStdout()
	if o.dryRun {
		for i, p := range plan.Path {
			fmt.Fprintf(out, "%d\t%.3f\t%.3f\n", i, p.Azimuth, p.Elevation)
		}
		return nil
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

	recv, err := sdr.New(ctx, cfg.SDRConfig(), logger)
	if err != nil {
		return fmt.Errorf("open receiver: %w", err)
	}
	defer recv.Close()

	sweeper := app.NewSweeper(rot, recv, tel.reporter, logger, app.Config{
		Frequency:         cfg.Controller.TargetFrequency,
		FallbackFrequency: ant.CenterFrequency(),
		TakeImages:        cfg.Controller.TakeImages,
		ImageDir:          cfg.Controller.ImageDir,
	})
	if cfg.Controller.TakeImages {
		if err := os.MkdirAll(cfg.Controller.ImageDir, 0o755); err != nil {
			return err
		}
		sweeper.SetCapturer(imaging.NewFFmpeg(cfg.Groundstation.Webcam.RTSPURL))
	}
	if cfg.Controller.Database != "" {
		db, err := store.Open(cfg.Controller.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		sweeper.SetRecorder(db)
	}

	var res *app.Result
	runErr := tel.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = sweeper.Run(ctx, plan.Path)
		return err
	})

	if res != nil {
		fmt.Fprintf(out, "sweep %s %s: %d/%d points\n", res.ID, res.State, len(res.Measurements), len(plan.Path))
		if o.exportPath != "" && len(res.Measurements) > 0 {
			if err := store.ExportCSV(o.exportPath, res.Measurements); err != nil {
				logger.Error("export measurements", logging.F("path", o.exportPath), logging.Err(err))
			} else {
				logger.Info("measurements exported", logging.F("path", o.exportPath))
			}
		}
	}
	return runErr
}

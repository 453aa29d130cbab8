package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rjboer/noisemap/internal/config"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/telemetry"
)

// telemetryStack fans events out to every configured sink.
type telemetryStack struct {
	reporter telemetry.MultiReporter
	hub      *telemetry.Hub
	web      *telemetry.WebServer
	nats     *telemetry.NATSReporter
}

func newTelemetry(cfg config.Config, webAddr string, logger logging.Logger) (*telemetryStack, error) {
	t := &telemetryStack{reporter: telemetry.MultiReporter{telemetry.NewLogReporter(logger)}}

	if webAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := telemetry.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		t.hub = telemetry.NewHub(cfg.Controller.HistoryLimit)
		t.web = telemetry.NewWebServer(webAddr, t.hub, metrics, logger)
		t.reporter = append(t.reporter, t.hub, metrics)
	}

	if cfg.Controller.NATSURL != "" {
		nr, err := telemetry.ConnectNATS(cfg.Controller.NATSURL, cfg.Controller.NATSSubject, logger)
		if err != nil {
			return nil, err
		}
		t.nats = nr
		t.reporter = append(t.reporter, nr)
	}
	return t, nil
}

// run serves the web telemetry, if any, for as long as fn runs.
func (t *telemetryStack) run(ctx context.Context, fn func(ctx context.Context) error) error {
	webCtx, stopWeb := context.WithCancel(ctx)
	defer stopWeb()

	g, gctx := errgroup.WithContext(webCtx)
	if t.web != nil {
		g.Go(func() error {
			if err := t.web.Start(gctx); err != nil {
				return fmt.Errorf("web telemetry: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopWeb()
		return fn(gctx)
	})
	return g.Wait()
}

func (t *telemetryStack) Close() {
	if t.nats != nil {
		_ = t.nats.Close()
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjboer/noisemap/internal/mdns"
	"github.com/rjboer/noisemap/internal/sdr"
)

func newDetectCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "List the SDR receivers seen by the acquisition tool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			devices, err := sdr.Detect(cmd.Context(), cfg.SDRConfig().Binary)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				fmt.Fprintf(out, "%s\t%s\n", d.Driver(), d.Label())
			}
			if _, err := sdr.SelectDevice(devices); err != nil {
				fmt.Fprintf(out, "auto-detection would fail: %v\n", err)
			}
			return nil
		},
	}
}

func newDiscoverCmd(g *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for rotator controllers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := g.load(); err != nil {
				return err
			}
			hosts, err := mdns.Discover(cmd.Context(), mdns.RotctldService, timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hosts) == 0 {
				fmt.Fprintf(out, "no %s services found\n", mdns.RotctldService)
				return nil
			}
			for _, h := range hosts {
				fmt.Fprintf(out, "%s\t%s\n", h.Instance, h.Address())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", envDuration(g.lookup, "NOISE_DISCOVERY_TIMEOUT", 3*time.Second), "Browse duration (NOISE_DISCOVERY_TIMEOUT)")
	return cmd
}

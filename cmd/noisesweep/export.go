package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rjboer/noisemap/internal/store"
)

func newExportCmd(g *globalOptions) *cobra.Command {
	var (
		sweepID string
		output  string
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored measurements as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Controller.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if list {
				sweeps, err := db.Sweeps(ctx)
				if err != nil {
					return err
				}
				for _, s := range sweeps {
					fmt.Fprintf(out, "%s\t%s\t%s\t%d points\t%.0f Hz\n",
						s.ID, s.Started.UTC().Format(time.RFC3339), s.State, s.Total, s.Frequency)
				}
				return nil
			}

			var sw store.Sweep
			if sweepID == "" {
				sw, err = db.Latest(ctx)
			} else {
				var id uuid.UUID
				if id, err = uuid.Parse(sweepID); err != nil {
					return fmt.Errorf("sweep id: %w", err)
				}
				sw, err = db.Sweep(ctx, id)
			}
			if err != nil {
				return err
			}
			ms, err := db.Measurements(ctx, sw.ID)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return store.WriteCSV(out, ms)
			}
			if err := store.ExportCSV(output, ms); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d measurements of sweep %s to %s\n", len(ms), sw.ID, output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&sweepID, "sweep", "", "Sweep id, default the latest")
	f.StringVarP(&output, "output", "o", envString(g.lookup, "NOISE_EXPORT", "-"), "CSV file, - for stdout (NOISE_EXPORT)")
	f.BoolVar(&list, "list", false, "List stored sweeps instead")
	return cmd
}

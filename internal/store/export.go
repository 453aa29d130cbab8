package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rjboer/noisemap/internal/model"
)

// Columns returns the header of an export with the given number of PSD bins.
func Columns(bins int) []string {
	cols := []string{
		"target_azimuth", "target_elevation",
		"measured_azimuth", "measured_elevation",
		"center_frequency", "psd_bandwidth", "timestamp",
		"frequency_start", "frequency_stop", "frequency_step", "samples",
	}
	for i := 0; i < bins; i++ {
		cols = append(cols, "psd_"+strconv.Itoa(i))
	}
	return append(cols, "psd_min", "psd_max", "psd_mean")
}

// Row flattens a measurement into export columns. Levels beyond bins are
// dropped and missing ones are left empty.
func Row(m model.Measurement, bins int) []string {
	s := m.Sample
	row := []string{
		formatFloat(m.Target.Azimuth), formatFloat(m.Target.Elevation),
		formatFloat(m.Achieved.Azimuth), formatFloat(m.Achieved.Elevation),
		formatFloat(s.CenterFrequency()), formatFloat(m.Bandwidth()),
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(s.FrequencyStart), formatFloat(s.FrequencyStop), formatFloat(s.FrequencyStep),
		strconv.Itoa(s.SampleCount),
	}
	for i := 0; i < bins; i++ {
		if i < len(s.Levels) {
			row = append(row, formatFloat(s.Levels[i]))
		} else {
			row = append(row, "")
		}
	}
	return append(row, formatFloat(s.Min()), formatFloat(s.Max()), formatFloat(s.Mean()))
}

// WriteCSV writes one row per measurement. The bin count is the widest sample.
func WriteCSV(w io.Writer, measurements []model.Measurement) error {
	bins := 0
	for _, m := range measurements {
		bins = max(bins, len(m.Sample.Levels))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(bins)); err != nil {
		return err
	}
	for _, m := range measurements {
		if err := cw.Write(Row(m, bins)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes measurements to a new file at path.
func ExportCSV(path string, measurements []model.Measurement) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, measurements); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

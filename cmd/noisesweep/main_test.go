package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/noisemap/internal/config"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	yaml := `
location: "52.0, 5.0"
groundstation:
  rotator:
    type: mock
    poll_interval: 1ms
  sdr:
    type: mock
    psd_bins: 8
    integration: 5ms
    warmup: 0s
controller:
  target_object: fixed:180,45
  target_frequency: 1420405751
  scan_width_az: 10
  scan_width_el: 10
  step_size_az: 5
  step_size_el: 5
  application_port: 0
  database: ` + filepath.Join(dir, "noisemap.db") + `
logging:
  level: error
`
	path := filepath.Join(dir, "noisemap.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, lookup lookupFunc, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(lookup)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestEnvHelpers(t *testing.T) {
	lookup := mapEnv(map[string]string{
		"A": "1.5",
		"B": "7",
		"C": "true",
		"D": "90s",
		"E": "not-a-number",
	})
	if got := envFloat(lookup, "A", 0); got != 1.5 {
		t.Fatalf("envFloat = %v", got)
	}
	if got := envInt(lookup, "B", 0); got != 7 {
		t.Fatalf("envInt = %v", got)
	}
	if got := envBool(lookup, "C", false); !got {
		t.Fatal("envBool = false")
	}
	if got := envDuration(lookup, "D", 0); got != 90*time.Second {
		t.Fatalf("envDuration = %v", got)
	}
	if got := envInt(lookup, "E", 3); got != 3 {
		t.Fatalf("malformed value should keep default, got %v", got)
	}
	if got := envString(lookup, "missing", "dflt"); got != "dflt" {
		t.Fatalf("envString = %q", got)
	}
}

func TestSweepOptionsOverrideConfig(t *testing.T) {
	env := mapEnv(map[string]string{
		"NOISE_FREQUENCY": "1.42e9",
		"NOISE_TARGET":    "fixed:10,20",
	})
	cmd := newSweepCmd(&globalOptions{lookup: env})
	if err := cmd.ParseFlags([]string{"--scan-width-az", "30", "--take-images"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	o := &sweepOptions{}
	o.frequency, _ = cmd.Flags().GetFloat64("frequency")
	o.widthAz, _ = cmd.Flags().GetFloat64("scan-width-az")
	o.target, _ = cmd.Flags().GetString("target")
	o.takeImages, _ = cmd.Flags().GetBool("take-images")
	o.apply(&cfg)

	if cfg.Controller.TargetFrequency != 1.42e9 || cfg.Controller.ScanWidthAz != 30 {
		t.Fatalf("numeric overrides not applied: %+v", cfg.Controller)
	}
	if cfg.Controller.ScanWidthEl != config.Default().Controller.ScanWidthEl {
		t.Fatalf("unset flag changed elevation width to %v", cfg.Controller.ScanWidthEl)
	}
	if cfg.Controller.TargetObject != "fixed:10,20" || !cfg.Controller.TakeImages {
		t.Fatalf("string overrides not applied: %+v", cfg.Controller)
	}
}

func TestParseStartTime(t *testing.T) {
	want := time.Date(2024, 6, 21, 11, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-06-21T11:00:00Z", "2024-06-21 11:00:00", "2024-06-21T13:00:00+02:00"} {
		got, err := parseStartTime(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q = %v", in, got)
		}
	}
	if _, err := parseStartTime("tomorrow"); err == nil {
		t.Fatal("expected error for free-form time")
	}
}

func TestSweepDryRunPrintsPath(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, noEnv, "--config", writeConfig(t, dir), "sweep", "--dry-run")
	if err != nil {
		t.Fatalf("sweep --dry-run: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 planned points, got %d:\n%s", len(lines), out)
	}
	if lines[0] != "0\t177.500\t42.500" {
		t.Fatalf("unexpected first point %q", lines[0])
	}
}

func TestSweepAndExportWithSimulatedDevices(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	csvPath := filepath.Join(dir, "sweep.csv")

	out, err := execute(t, noEnv, "--config", cfgPath, "sweep", "--export", csvPath)
	if err != nil {
		t.Fatalf("sweep: %v\n%s", err, out)
	}
	if !strings.Contains(out, "completed: 4/4 points") {
		t.Fatalf("unexpected summary %q", out)
	}
	if _, err := os.Stat(csvPath); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	out, err = execute(t, noEnv, "--config", cfgPath, "export")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(records))
	}
	if records[0][len(records[0])-1] != "psd_mean" {
		t.Fatalf("unexpected header %v", records[0])
	}

	out, err = execute(t, noEnv, "--config", cfgPath, "export", "--list")
	if err != nil {
		t.Fatalf("export --list: %v", err)
	}
	if !strings.Contains(out, "completed") {
		t.Fatalf("sweep list missing completed sweep: %q", out)
	}
}

func TestConfigIsCreatedWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.yaml")
	_, err := execute(t, noEnv, "--config", path, "--log-level", "error", "sweep", "--dry-run")
	if err != nil {
		t.Fatalf("sweep with fresh config: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("created config does not load: %v", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stationYAML = `
name: dwingeloo
location: "52.8123, 6.3964, 20"
groundstation:
  rotator:
    type: rotctld
    address: rotator.local
    tolerance: 0.3
    poll_interval: 250ms
  sdr:
    type: rtlsdr
    psd_bins: 64
    warmup: 5s
    ssh:
      host: pi.local
      user: pi
  antenna:
    type: parabolic
    diameter: 3
    efficiency: 0.6
    frequency_range: [1.4e9, 1.44e9]
  webcam:
    rtsp_url: rtsp://cam.local/stream
controller:
  target_object: fixed:180,45
  target_frequency: 1420405751
  scan_width_az: 20
  scan_width_el: 10
  step_size_az: 5
  step_size_el: 5
  nats_url: nats://127.0.0.1:4222
`

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(stationYAML))
	require.NoError(t, err)

	assert.Equal(t, "dwingeloo", cfg.Name)
	r := cfg.Groundstation.Rotator
	assert.Equal(t, "rotctld", r.Type)
	assert.Equal(t, 0.3, r.Tolerance)
	assert.Equal(t, 250*time.Millisecond, r.PollInterval)
	assert.Equal(t, 20, r.MaxPolls, "unset fields keep their defaults")
	assert.Equal(t, 2, r.StableCount)

	assert.Equal(t, 5*time.Second, cfg.Groundstation.SDR.Warmup)
	assert.Equal(t, time.Millisecond, cfg.Groundstation.SDR.DrainThreshold)
	assert.Equal(t, []float64{1.4e9, 1.44e9}, cfg.Groundstation.Antenna.FrequencyRange)
	assert.Equal(t, "0.0.0.0:8080", cfg.WebAddr())
}

func TestMappings(t *testing.T) {
	cfg, err := Parse([]byte(stationYAML))
	require.NoError(t, err)

	opts := cfg.RotatorOptions(nil)
	assert.Equal(t, "rotator.local", opts.Address)
	assert.Equal(t, 4533, opts.Port)
	assert.Equal(t, 0.3, opts.Config.Tolerance)
	assert.Equal(t, 250*time.Millisecond, opts.Config.PollInterval)

	sc := cfg.SDRConfig()
	assert.Equal(t, "rtlsdr", sc.Driver)
	assert.Equal(t, 64, sc.Bins)
	assert.Equal(t, "pi.local", sc.SSH.Host)

	p := cfg.AntennaParameters()
	assert.Equal(t, 1.4e9, p.FrequencyStart)
	assert.Equal(t, 1.44e9, p.FrequencyStop)

	target, err := cfg.Target()
	require.NoError(t, err)
	pos, err := target.Position(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 180.0, pos.Azimuth)
	assert.Equal(t, 45.0, pos.Elevation)

	assert.Equal(t, 20.0, cfg.ScanWidth().Azimuth)
	assert.Equal(t, 5.0, cfg.StepSize().Elevation)
}

func TestSerialRotatorUsesDevicePath(t *testing.T) {
	cfg := Default()
	cfg.Groundstation.Rotator.Type = "spid"
	cfg.Groundstation.Rotator.Transport = "serial"
	assert.ErrorContains(t, cfg.Validate(), "serial_device")

	cfg.Groundstation.Rotator.SerialDevice = "/dev/ttyUSB0"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/dev/ttyUSB0", cfg.RotatorOptions(nil).Address)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"location":      func(c *Config) { c.Location = "north" },
		"rotator type":  func(c *Config) { c.Groundstation.Rotator.Type = "yaesu" },
		"transport":     func(c *Config) { c.Groundstation.Rotator.Transport = "udp" },
		"tolerance":     func(c *Config) { c.Groundstation.Rotator.Tolerance = 0 },
		"sdr type":      func(c *Config) { c.Groundstation.SDR.Type = "hackrf" },
		"read timeout":  func(c *Config) { c.Groundstation.SDR.ReadTimeout = -time.Second },
		"antenna range": func(c *Config) { c.Groundstation.Antenna.FrequencyRange = []float64{1} },
		"antenna type":  func(c *Config) { c.Groundstation.Antenna.Type = "yagi" },
		"step size":     func(c *Config) { c.Controller.StepSizeAz = -1 },
		"tle":           func(c *Config) { c.Controller.TargetTLE = []string{"1 25544U"} },
		"port":          func(c *Config) { c.Controller.ApplicationPort = 70000 },
		"log level":     func(c *Config) { c.Logging.Level = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("controller:\n  scan_widht_az: 10\n"))
	assert.Error(t, err)
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOrCreateWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noisemap.yaml")
	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

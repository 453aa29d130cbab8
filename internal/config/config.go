// Package config loads the ground-station configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/noisemap/internal/antenna"
	"github.com/rjboer/noisemap/internal/astro"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/planner"
	"github.com/rjboer/noisemap/internal/rotator"
	"github.com/rjboer/noisemap/internal/sdr"
)

// Config is the complete configuration file.
type Config struct {
	Name string `yaml:"name"`
	// Location is "lat, lon[, alt]" of the ground station.
	Location      string        `yaml:"location"`
	Groundstation Groundstation `yaml:"groundstation"`
	Controller    Controller    `yaml:"controller"`
	Logging       Logging       `yaml:"logging"`
}

type Groundstation struct {
	Rotator Rotator `yaml:"rotator"`
	SDR     SDR     `yaml:"sdr"`
	Antenna Antenna `yaml:"antenna"`
	Webcam  Webcam  `yaml:"webcam"`
}

type Rotator struct {
	// Type is spid, rotctld or mock.
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Transport is tcp or serial.
	Transport     string        `yaml:"transport"`
	SerialDevice  string        `yaml:"serial_device"`
	BaudRate      int           `yaml:"baud_rate"`
	Tolerance     float64       `yaml:"tolerance"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MotionNoise   float64       `yaml:"motion_noise"`
	StableCount   int           `yaml:"stable_count"`
	MaxPolls      int           `yaml:"max_polls"`
	MaxTotalPolls int           `yaml:"max_total_polls"`
}

type SDR struct {
	// Type is uhd, lime, rtlsdr or mock; empty detects the attached receiver.
	Type           string        `yaml:"type"`
	SampleRate     float64       `yaml:"sample_rate"`
	LNAGain        float64       `yaml:"lna_gain"`
	PSDBins        int           `yaml:"psd_bins"`
	Integration    time.Duration `yaml:"integration"`
	Warmup         time.Duration `yaml:"warmup"`
	DrainThreshold time.Duration `yaml:"drain_threshold"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	Binary         string        `yaml:"binary"`
	SSH            SSH           `yaml:"ssh"`
}

type SSH struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	KeyPath  string `yaml:"key_path"`
	Port     int    `yaml:"port"`
}

type Antenna struct {
	Name             string   `yaml:"name"`
	Type             string   `yaml:"type"`
	Gain             float64  `yaml:"gain"`
	OpeningAzimuth   float64  `yaml:"opening_azimuth"`
	OpeningElevation float64  `yaml:"opening_elevation"`
	Diameter         float64  `yaml:"diameter"`
	FeedGain         float64  `yaml:"feed_gain"`
	Efficiency       float64  `yaml:"efficiency"`
	OverrideGain     *float64 `yaml:"override_gain,omitempty"`
	// FrequencyRange is [start, stop] in Hz.
	FrequencyRange []float64 `yaml:"frequency_range"`
}

type Webcam struct {
	RTSPURL string `yaml:"rtsp_url"`
}

type Controller struct {
	// TargetObject is sun, fixed:<az>,<el> or a satellite name used with TargetTLE.
	TargetObject    string   `yaml:"target_object"`
	TargetTLE       []string `yaml:"target_tle,omitempty"`
	TargetFrequency float64  `yaml:"target_frequency"`
	ScanWidthAz     float64  `yaml:"scan_width_az"`
	ScanWidthEl     float64  `yaml:"scan_width_el"`
	// StepSizeAz and StepSizeEl default to half the antenna beamwidth when zero.
	StepSizeAz      float64       `yaml:"step_size_az"`
	StepSizeEl      float64       `yaml:"step_size_el"`
	TakeImages      bool          `yaml:"take_images"`
	ImageDir        string        `yaml:"image_dir"`
	ApplicationIP   string        `yaml:"application_ip"`
	ApplicationPort int           `yaml:"application_port"`
	HistoryLimit    int           `yaml:"history_limit"`
	Database        string        `yaml:"database"`
	NATSURL         string        `yaml:"nats_url"`
	NATSSubject     string        `yaml:"nats_subject"`
	TrackDuration   time.Duration `yaml:"track_duration"`
	TrackInterval   time.Duration `yaml:"track_interval"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs against the simulated devices.
func Default() Config {
	rc := rotator.DefaultConfig()
	sc := sdr.DefaultConfig()
	return Config{
		Name:     "noisemap",
		Location: "52.0, 5.0, 0",
		Groundstation: Groundstation{
			Rotator: Rotator{
				Type:          "mock",
				Address:       "127.0.0.1",
				Port:          rotator.DefaultPort,
				Transport:     "tcp",
				BaudRate:      9600,
				Tolerance:     rc.Tolerance,
				PollInterval:  rc.PollInterval,
				MotionNoise:   rc.MotionNoise,
				StableCount:   rc.StableCount,
				MaxPolls:      rc.MaxPolls,
				MaxTotalPolls: rc.MaxTotalPolls,
			},
			SDR: SDR{
				Type:           "mock",
				PSDBins:        sc.Bins,
				Integration:    sc.Integration,
				Warmup:         sc.Warmup,
				DrainThreshold: sc.DrainThreshold,
				ReadTimeout:    sc.ReadTimeout,
				Binary:         sc.Binary,
			},
			Antenna: Antenna{
				Name:             "generic",
				Type:             "generic",
				OpeningAzimuth:   10,
				OpeningElevation: 10,
				FrequencyRange:   []float64{1.4e9, 1.44e9},
			},
		},
		Controller: Controller{
			TargetObject:    "sun",
			ScanWidthAz:     20,
			ScanWidthEl:     10,
			ImageDir:        "images",
			ApplicationIP:   "0.0.0.0",
			ApplicationPort: 8080,
			HistoryLimit:    5000,
			Database:        "noisemap.db",
			NATSSubject:     "noisemap",
			TrackDuration:   time.Hour,
			TrackInterval:   10 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML document over Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing Default there first when it does not exist.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := astro.ParseLocation(c.Location); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	r := c.Groundstation.Rotator
	switch strings.ToLower(r.Type) {
	case "spid", "rotctld":
		if r.Transport == "serial" && r.SerialDevice == "" {
			return errors.New("groundstation.rotator.serial_device is required for the serial transport")
		}
		if r.Transport != "serial" && r.Address == "" {
			return errors.New("groundstation.rotator.address is required")
		}
	case "mock":
	default:
		return fmt.Errorf("groundstation.rotator.type %q is not one of spid, rotctld, mock", r.Type)
	}
	if r.Transport != "" && r.Transport != "tcp" && r.Transport != "serial" {
		return fmt.Errorf("groundstation.rotator.transport %q is not tcp or serial", r.Transport)
	}
	if r.Tolerance <= 0 {
		return errors.New("groundstation.rotator.tolerance must be positive")
	}
	if r.PollInterval < 0 || r.StableCount < 0 || r.MaxPolls < 0 || r.MaxTotalPolls < 0 || r.MotionNoise < 0 {
		return errors.New("groundstation.rotator poll settings must not be negative")
	}

	s := c.Groundstation.SDR
	if s.Type != "" {
		if _, _, ok := sdr.DriverDefaults(s.Type); !ok {
			return fmt.Errorf("groundstation.sdr.type %q is not one of uhd, lime, rtlsdr, mock", s.Type)
		}
	}
	if s.SampleRate < 0 || s.PSDBins < 0 {
		return errors.New("groundstation.sdr sample_rate and psd_bins must not be negative")
	}
	if s.Warmup < 0 || s.DrainThreshold < 0 || s.ReadTimeout < 0 {
		return errors.New("groundstation.sdr durations must not be negative")
	}

	if n := len(c.Groundstation.Antenna.FrequencyRange); n != 0 && n != 2 {
		return fmt.Errorf("groundstation.antenna.frequency_range needs [start, stop], got %d values", n)
	}
	if _, err := antenna.New(c.AntennaParameters()); err != nil {
		return fmt.Errorf("groundstation.antenna: %w", err)
	}

	ctl := c.Controller
	if ctl.TargetFrequency < 0 {
		return errors.New("controller.target_frequency must not be negative")
	}
	if ctl.ScanWidthAz < 0 || ctl.ScanWidthEl < 0 || ctl.StepSizeAz < 0 || ctl.StepSizeEl < 0 {
		return errors.New("controller scan width and step size must not be negative")
	}
	if len(ctl.TargetTLE) != 0 && len(ctl.TargetTLE) != 2 {
		return fmt.Errorf("controller.target_tle needs two lines, got %d", len(ctl.TargetTLE))
	}
	if ctl.ApplicationPort < 0 || ctl.ApplicationPort > 65535 {
		return fmt.Errorf("controller.application_port %d out of range", ctl.ApplicationPort)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	return nil
}

// RotatorOptions maps the rotator section onto driver options.
func (c Config) RotatorOptions(logger logging.Logger) rotator.Options {
	r := c.Groundstation.Rotator
	addr := r.Address
	if r.Transport == "serial" {
		addr = r.SerialDevice
	}
	return rotator.Options{
		Driver:    r.Type,
		Address:   addr,
		Port:      r.Port,
		Transport: r.Transport,
		BaudRate:  r.BaudRate,
		Config: rotator.Config{
			Tolerance:     r.Tolerance,
			PollInterval:  r.PollInterval,
			MotionNoise:   r.MotionNoise,
			StableCount:   r.StableCount,
			MaxPolls:      r.MaxPolls,
			MaxTotalPolls: r.MaxTotalPolls,
		},
		Logger: logger,
	}
}

// SDRConfig maps the sdr section onto the acquisition settings.
func (c Config) SDRConfig() sdr.Config {
	s := c.Groundstation.SDR
	return sdr.Config{
		Driver:         s.Type,
		Binary:         s.Binary,
		SampleRate:     s.SampleRate,
		Gain:           s.LNAGain,
		Bins:           s.PSDBins,
		Integration:    s.Integration,
		Warmup:         s.Warmup,
		DrainThreshold: s.DrainThreshold,
		ReadTimeout:    s.ReadTimeout,
		SSH: sdr.SSHConfig{
			Host:     s.SSH.Host,
			User:     s.SSH.User,
			Password: s.SSH.Password,
			KeyPath:  s.SSH.KeyPath,
			Port:     s.SSH.Port,
		},
	}
}

// AntennaParameters maps the antenna section.
func (c Config) AntennaParameters() antenna.Parameters {
	a := c.Groundstation.Antenna
	p := antenna.Parameters{
		Name:             a.Name,
		Type:             a.Type,
		Gain:             a.Gain,
		OpeningAzimuth:   a.OpeningAzimuth,
		OpeningElevation: a.OpeningElevation,
		Diameter:         a.Diameter,
		FeedGain:         a.FeedGain,
		Efficiency:       a.Efficiency,
		OverrideGain:     a.OverrideGain,
	}
	if len(a.FrequencyRange) == 2 {
		p.FrequencyStart, p.FrequencyStop = a.FrequencyRange[0], a.FrequencyRange[1]
	}
	return p
}

// Target resolves the configured observation target.
func (c Config) Target() (astro.Target, error) {
	loc, err := astro.ParseLocation(c.Location)
	if err != nil {
		return nil, err
	}
	var l1, l2 string
	if len(c.Controller.TargetTLE) == 2 {
		l1, l2 = c.Controller.TargetTLE[0], c.Controller.TargetTLE[1]
	}
	return astro.For(c.Controller.TargetObject, loc, l1, l2)
}

// ScanWidth is the requested grid extent.
func (c Config) ScanWidth() planner.Span {
	return planner.Span{Azimuth: c.Controller.ScanWidthAz, Elevation: c.Controller.ScanWidthEl}
}

// StepSize is the configured grid step; zero axes are filled in from the antenna.
func (c Config) StepSize() planner.Span {
	return planner.Span{Azimuth: c.Controller.StepSizeAz, Elevation: c.Controller.StepSizeEl}
}

// WebAddr is the telemetry listen address, empty when disabled.
func (c Config) WebAddr() string {
	if c.Controller.ApplicationPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Controller.ApplicationIP, strconv.Itoa(c.Controller.ApplicationPort))
}

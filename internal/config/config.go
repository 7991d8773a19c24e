package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Port         string             `mapstructure:"port"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Control      ControlConfig      `mapstructure:"control"`
	Door         DoorConfig         `mapstructure:"door"`
	Calibration  CalibrationConfig  `mapstructure:"calibration"`
	Process      ProcessConfig      `mapstructure:"process"`
	Flash        FlashConfig        `mapstructure:"flash"`
	Curves       CurvesConfig       `mapstructure:"curves"`
	Link         LinkConfig         `mapstructure:"link"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Simulator    SimulatorConfig    `mapstructure:"simulator"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`

	// OpenSignUp lets anyone register; otherwise only the first operator can.
	OpenSignUp bool `mapstructure:"open_sign_up"`
}

// ControlConfig tunes the temperature control loop.
type ControlConfig struct {
	Period                   time.Duration `mapstructure:"period"`
	ProportionalGain         float64       `mapstructure:"proportional_gain"`
	HeaterThreshold          float64       `mapstructure:"heater_threshold"`
	Strategy                 string        `mapstructure:"strategy"` // bangbang | proportional
	MinCoolingChangeInterval time.Duration `mapstructure:"min_cooling_change_interval"`
	CoolingFullScaleC        float64       `mapstructure:"cooling_full_scale_c"`
}

// DoorConfig holds servo endpoints and task periods of the door governor.
type DoorConfig struct {
	ClosedAngle    float64       `mapstructure:"closed_angle"`
	OpenAngle      float64       `mapstructure:"open_angle"`
	Inverted       bool          `mapstructure:"inverted"`
	CommandPeriod  time.Duration `mapstructure:"command_period"`
	SafetyPeriod   time.Duration `mapstructure:"safety_period"`
	SlewDegPerSec  float64       `mapstructure:"slew_deg_per_sec"`
	EventQueueSize int           `mapstructure:"event_queue_size"`
}

// CalibrationConfig holds the procedure constants and the temperature set-points.
type CalibrationConfig struct {
	TempPoints         []float64     `mapstructure:"temp_points"`
	ToleranceC         float64       `mapstructure:"tolerance_c"`
	MediumPower        float64       `mapstructure:"medium_power"`
	ReachTimeout       time.Duration `mapstructure:"reach_timeout"`
	Dwell              time.Duration `mapstructure:"dwell"`
	Settle             time.Duration `mapstructure:"settle"`
	TestDuration       time.Duration `mapstructure:"test_duration"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	SensorWindow       time.Duration `mapstructure:"sensor_window"`
	SensorSampleEvery  time.Duration `mapstructure:"sensor_sample_every"`
	MismatchThresholdC float64       `mapstructure:"mismatch_threshold_c"`
	MaxProfileAge      time.Duration `mapstructure:"max_profile_age"`
}

type ProcessConfig struct {
	TickPeriod      time.Duration `mapstructure:"tick_period"`
	PrecheckTimeout time.Duration `mapstructure:"precheck_timeout"`
}

// FlashConfig describes the emulated non-volatile region holding the profile.
type FlashConfig struct {
	Path          string `mapstructure:"path"`
	ProfileOffset int64  `mapstructure:"profile_offset"`
	SectorSize    int    `mapstructure:"sector_size"`
	Size          int64  `mapstructure:"size"`
}

type CurvesConfig struct {
	Dir    string `mapstructure:"dir"`
	Watch  bool   `mapstructure:"watch"`
	Active string `mapstructure:"active"`
}

// LinkConfig configures the serial link to the secondary controller.
type LinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

type HousekeepingConfig struct {
	Schedule  string        `mapstructure:"schedule"`
	Retention time.Duration `mapstructure:"retention"`
}

// SimulatorConfig parameterizes the simulated oven plant used when no hardware is attached.
type SimulatorConfig struct {
	Tick              time.Duration `mapstructure:"tick"`
	AmbientC          float64       `mapstructure:"ambient_c"`
	HeaterCPerSec     float64       `mapstructure:"heater_c_per_sec"`
	LossPerSec        float64       `mapstructure:"loss_per_sec"`
	DoorLossPerSec    float64       `mapstructure:"door_loss_per_sec"`
	BackSkewC         float64       `mapstructure:"back_skew_c"`
	LimitToleranceDeg float64       `mapstructure:"limit_tolerance_deg"`
}

var (
	errNoTempPoints      = errors.New("calibration.temp_points must not be empty")
	errTempPointsOrder   = errors.New("calibration.temp_points must be strictly ascending")
	errDoorRange         = errors.New("door.open_angle must differ from door.closed_angle")
	errNonPositivePeriod = errors.New("control.period, door periods and process.tick_period must be > 0")
)

// setDefaults registers every default on v so partial config files are valid.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "oven.db")
	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.open_sign_up", false)

	v.SetDefault("control.period", 250*time.Millisecond)
	v.SetDefault("control.proportional_gain", 5.0)
	v.SetDefault("control.heater_threshold", 50.0)
	v.SetDefault("control.strategy", "bangbang")
	v.SetDefault("control.min_cooling_change_interval", 2*time.Second)
	v.SetDefault("control.cooling_full_scale_c", 50.0)

	v.SetDefault("door.closed_angle", 0.0)
	v.SetDefault("door.open_angle", 90.0)
	v.SetDefault("door.inverted", false)
	v.SetDefault("door.command_period", 20*time.Millisecond)
	v.SetDefault("door.safety_period", 100*time.Millisecond)
	v.SetDefault("door.slew_deg_per_sec", 180.0)
	v.SetDefault("door.event_queue_size", 16)

	v.SetDefault("calibration.temp_points", []float64{50, 100, 150, 200, 250})
	v.SetDefault("calibration.tolerance_c", 3.0)
	v.SetDefault("calibration.medium_power", 50.0)
	v.SetDefault("calibration.reach_timeout", 15*time.Minute)
	v.SetDefault("calibration.dwell", 30*time.Second)
	v.SetDefault("calibration.settle", 5*time.Second)
	v.SetDefault("calibration.test_duration", 10*time.Second)
	v.SetDefault("calibration.poll_interval", time.Second)
	v.SetDefault("calibration.sensor_window", 30*time.Second)
	v.SetDefault("calibration.sensor_sample_every", time.Second)
	v.SetDefault("calibration.mismatch_threshold_c", 5.0)
	v.SetDefault("calibration.max_profile_age", 30*24*time.Hour)

	v.SetDefault("process.tick_period", 250*time.Millisecond)
	v.SetDefault("process.precheck_timeout", 10*time.Minute)

	v.SetDefault("flash.path", "flash.bin")
	v.SetDefault("flash.profile_offset", 0x3000)
	v.SetDefault("flash.sector_size", 4096)
	v.SetDefault("flash.size", 0x10000)

	v.SetDefault("curves.dir", "configs/curves")
	v.SetDefault("curves.watch", true)
	v.SetDefault("curves.active", "Sn63Pb37")

	v.SetDefault("link.enabled", false)
	v.SetDefault("link.port", "/dev/ttyUSB0")
	v.SetDefault("link.baud_rate", 115200)

	v.SetDefault("housekeeping.schedule", "@every 1h")
	v.SetDefault("housekeeping.retention", 14*24*time.Hour)

	v.SetDefault("simulator.tick", 100*time.Millisecond)
	v.SetDefault("simulator.ambient_c", 25.0)
	v.SetDefault("simulator.heater_c_per_sec", 1.5)
	v.SetDefault("simulator.loss_per_sec", 0.004)
	v.SetDefault("simulator.door_loss_per_sec", 0.02)
	v.SetDefault("simulator.back_skew_c", 2.0)
	v.SetDefault("simulator.limit_tolerance_deg", 0.5)
}

// Load reads configs/<name>.yml (searching the given paths) plus REFLOW_* env overrides.
// A missing file is not an error: defaults apply.
func Load(name string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("REFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads one explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return decode(v)
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// defaults are static and validated by tests
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that the core relies on.
func (c *Config) Validate() error {
	pts := c.Calibration.TempPoints
	if len(pts) == 0 {
		return errNoTempPoints
	}
	if !sort.Float64sAreSorted(pts) {
		return errTempPointsOrder
	}
	for i := 1; i < len(pts); i++ {
		if pts[i] == pts[i-1] {
			return errTempPointsOrder
		}
	}
	if c.Door.OpenAngle == c.Door.ClosedAngle {
		return errDoorRange
	}
	if c.Control.Period <= 0 || c.Door.CommandPeriod <= 0 || c.Door.SafetyPeriod <= 0 || c.Process.TickPeriod <= 0 {
		return errNonPositivePeriod
	}
	return nil
}

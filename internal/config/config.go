// Package config loads and validates the barrel controller configuration.
// Values come from defaults, then the YAML file, then BARREL_* environment
// variable overrides. Validation is fail-fast: a bad configuration stops
// the process before the control loop ever starts.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mckinley/halloween-barrel/internal/logic"
)

// Config is the root configuration structure.
type Config struct {
	Hardware   HardwareConfig   `yaml:"hardware"`
	Thresholds ThresholdConfig  `yaml:"distance_thresholds"`
	Timing     TimingConfig     `yaml:"timing"`
	Validation ValidationConfig `yaml:"validation"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HardwareConfig contains pin and endpoint assignments. The control core
// treats all of these as opaque.
type HardwareConfig struct {
	GPIOChip     string           `yaml:"gpio_chip"`
	MotorPins    MotorPinConfig   `yaml:"motor_pins"`
	PumpRelayPin int              `yaml:"pump_relay_pin"`
	SmokeRelayPin int             `yaml:"smoke_relay_pin"`
	SensorA      UltrasonicConfig `yaml:"sensor_a"`
	SensorB      UltrasonicConfig `yaml:"sensor_b"`
	GoveeLight   GoveeConfig      `yaml:"govee_light"`
	Sounds       SoundConfig      `yaml:"sounds"`

	// ExerciseOnStartup briefly runs every actuator at boot so a wiring
	// fault shows up before the first visitor does.
	ExerciseOnStartup bool `yaml:"exercise_on_startup"`
}

// MotorPinConfig holds the motor driver pins (BCM numbering).
type MotorPinConfig struct {
	Forward int `yaml:"forward"`
	Reverse int `yaml:"reverse"`
}

// UltrasonicConfig holds one HC-SR04 pin pair (BCM numbering).
type UltrasonicConfig struct {
	Trigger int `yaml:"trigger"`
	Echo    int `yaml:"echo"`
}

// GoveeConfig holds the LAN light endpoint.
type GoveeConfig struct {
	IPAddress string `yaml:"ip_address"`
	Port      int    `yaml:"port"`
}

// SoundConfig holds the cue file paths.
type SoundConfig struct {
	Player string `yaml:"player"` // external player binary, default mpg123
	Alert  string `yaml:"alert"`
	Spray  string `yaml:"spray"`
	Finale string `yaml:"finale"`
}

// ThresholdConfig contains the distance bands in centimetres.
type ThresholdConfig struct {
	Warning      float64 `yaml:"warning"`
	Trigger      float64 `yaml:"trigger"`
	MinimumValid float64 `yaml:"minimum_valid"`
	MaximumValid float64 `yaml:"maximum_valid"`
}

// TimingConfig contains phase and loop timings. Durations are plain numbers
// (seconds or milliseconds, as named) with Duration accessors below.
type TimingConfig struct {
	ReadingIntervalMs  int     `yaml:"reading_interval_ms"`
	MotorForwardSecs   float64 `yaml:"motor_forward_seconds"`
	MotorReverseSecs   float64 `yaml:"motor_reverse_seconds"`
	WarningSettleSecs  float64 `yaml:"warning_settle_seconds"`
	SmokeDelaySecs     float64 `yaml:"smoke_delay_seconds"`
	PrepSettleSecs     float64 `yaml:"preparation_settle_seconds"`
	PumpHoldSecs       float64 `yaml:"pump_hold_seconds"`
	CooldownSecs       float64 `yaml:"cooldown_seconds"`
	HeartbeatMinutes   int     `yaml:"heartbeat_minutes"`
}

// ValidationConfig contains the sensor-validation settings.
type ValidationConfig struct {
	ConsecutiveReadings int     `yaml:"consecutive_readings"`
	ReadingTolerance    float64 `yaml:"reading_tolerance"`
	MaxFailedReadings   int     `yaml:"max_failed_readings"`
	SelfTestReadings    int     `yaml:"self_test_readings"`
	RecoveryProbeCycles int     `yaml:"recovery_probe_cycles"`
}

// MQTTConfig contains event publishing settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// InfluxDBConfig contains telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HTTPConfig contains the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the pin assignments and timings the prop
// shipped with.
func Default() *Config {
	return &Config{
		Hardware: HardwareConfig{
			GPIOChip:      "gpiochip0",
			MotorPins:     MotorPinConfig{Forward: 18, Reverse: 19},
			PumpRelayPin:  21,
			SmokeRelayPin: 20,
			SensorA:       UltrasonicConfig{Trigger: 24, Echo: 23},
			SensorB:       UltrasonicConfig{Trigger: 7, Echo: 8},
			GoveeLight:    GoveeConfig{Port: 4003},
			Sounds:        SoundConfig{Player: "mpg123"},
		},
		Thresholds: ThresholdConfig{
			Warning:      100,
			Trigger:      50,
			MinimumValid: 2,
			MaximumValid: 400,
		},
		Timing: TimingConfig{
			ReadingIntervalMs: 1000,
			MotorForwardSecs:  2.5,
			MotorReverseSecs:  2.5,
			WarningSettleSecs: 0.5,
			SmokeDelaySecs:    1,
			PrepSettleSecs:    1,
			PumpHoldSecs:      6,
			CooldownSecs:      10,
			HeartbeatMinutes:  15,
		},
		Validation: ValidationConfig{
			ConsecutiveReadings: 3,
			ReadingTolerance:    10,
			MaxFailedReadings:   3,
			SelfTestReadings:    5,
			RecoveryProbeCycles: 10,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "halloween-barrel",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// applyEnvOverrides applies BARREL_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BARREL_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("BARREL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("BARREL_GOVEE_IP"); v != "" {
		cfg.Hardware.GoveeLight.IPAddress = v
	}
	if v := os.Getenv("BARREL_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("BARREL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks band ordering, timing sanity, and required endpoints.
func (c *Config) Validate() error {
	var errs []string

	t := c.Thresholds
	if t.Trigger >= t.Warning {
		errs = append(errs, "distance_thresholds: trigger must be below warning")
	}
	if t.MinimumValid >= t.MaximumValid {
		errs = append(errs, "distance_thresholds: minimum_valid must be below maximum_valid")
	}
	if t.Trigger <= 0 {
		errs = append(errs, "distance_thresholds: trigger must be positive")
	}

	if c.Timing.ReadingIntervalMs <= 0 {
		errs = append(errs, "timing: reading_interval_ms must be positive")
	}
	for name, v := range map[string]float64{
		"motor_forward_seconds":      c.Timing.MotorForwardSecs,
		"motor_reverse_seconds":      c.Timing.MotorReverseSecs,
		"warning_settle_seconds":     c.Timing.WarningSettleSecs,
		"smoke_delay_seconds":        c.Timing.SmokeDelaySecs,
		"preparation_settle_seconds": c.Timing.PrepSettleSecs,
		"pump_hold_seconds":          c.Timing.PumpHoldSecs,
		"cooldown_seconds":           c.Timing.CooldownSecs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("timing: %s must not be negative", name))
		}
	}

	v := c.Validation
	if v.ConsecutiveReadings < 1 {
		errs = append(errs, "validation: consecutive_readings must be at least 1")
	}
	if v.ReadingTolerance <= 0 {
		errs = append(errs, "validation: reading_tolerance must be positive")
	}
	if v.MaxFailedReadings < 1 {
		errs = append(errs, "validation: max_failed_readings must be at least 1")
	}
	if v.SelfTestReadings < 1 {
		errs = append(errs, "validation: self_test_readings must be at least 1")
	}
	if v.RecoveryProbeCycles < 1 {
		errs = append(errs, "validation: recovery_probe_cycles must be at least 1")
	}

	if c.Hardware.MotorPins.Forward == c.Hardware.MotorPins.Reverse {
		errs = append(errs, "hardware: motor forward and reverse pins must differ")
	}
	if c.Hardware.SensorA.Trigger == c.Hardware.SensorA.Echo {
		errs = append(errs, "hardware: sensor_a trigger and echo pins must differ")
	}
	if c.Hardware.SensorB.Trigger == c.Hardware.SensorB.Echo {
		errs = append(errs, "hardware: sensor_b trigger and echo pins must differ")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt: broker is required when enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb: url is required when enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb: token is required when enabled (set BARREL_INFLUXDB_TOKEN)")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb: org and bucket are required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Bands returns the threshold bands for the classifier.
func (c *Config) Bands() logic.Bands {
	return logic.Bands{
		WarningCm:  c.Thresholds.Warning,
		TriggerCm:  c.Thresholds.Trigger,
		MinValidCm: c.Thresholds.MinimumValid,
		MaxValidCm: c.Thresholds.MaximumValid,
	}
}

// SequenceTiming returns the phase timings for the sequence controller.
func (c *Config) SequenceTiming() logic.Timing {
	return logic.Timing{
		MotorForward:  secs(c.Timing.MotorForwardSecs),
		MotorReverse:  secs(c.Timing.MotorReverseSecs),
		WarningSettle: secs(c.Timing.WarningSettleSecs),
		SmokeDelay:    secs(c.Timing.SmokeDelaySecs),
		PrepSettle:    secs(c.Timing.PrepSettleSecs),
		PumpHold:      secs(c.Timing.PumpHoldSecs),
		Cooldown:      secs(c.Timing.CooldownSecs),
	}
}

// FallbackConfig returns the sensor-validation settings for the fallback
// manager.
func (c *Config) FallbackConfig() logic.FallbackConfig {
	return logic.FallbackConfig{
		MinValidCm:          c.Thresholds.MinimumValid,
		MaxValidCm:          c.Thresholds.MaximumValid,
		ConsecutiveReadings: c.Validation.ConsecutiveReadings,
		ReadingTolerance:    c.Validation.ReadingTolerance,
		RecoveryProbeCycles: c.Validation.RecoveryProbeCycles,
	}
}

// ReadingInterval returns the polling interval as a Duration.
func (c *Config) ReadingInterval() time.Duration {
	return time.Duration(c.Timing.ReadingIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat interval (0 disables heartbeats).
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Timing.HeartbeatMinutes) * time.Minute
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

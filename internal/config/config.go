// Package config loads and validates the process-wide YAML configuration,
// and watches it for changes on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single required-keys configuration file for the depth
// controller process, mirroring src/config.py's Config class.
type Config struct {
	// Networking
	BackseatIP                 string  `yaml:"backseat_ip"`
	BackseatPort               int     `yaml:"backseat_port"`
	BackseatConnectionTimeout  float64 `yaml:"backseat_connection_timeout"`
	BackseatResponseTimeout    float64 `yaml:"backseat_response_timeout"`
	OverloadCommandDuration    float64 `yaml:"overload_command_duration"`
	DesbridgeHost              string  `yaml:"desbridge_host"`
	DesbridgePort              int     `yaml:"desbridge_port"`

	// Control
	MaxAngle        float64 `yaml:"max_angle"`
	CommandPeriod   float64 `yaml:"command_period"`
	TransitionTime  int     `yaml:"transition_time"`

	// Safety
	AltitudeThresholdLevel  float64 `yaml:"altitude_threshold_level"`
	AltitudeThresholdAscend float64 `yaml:"altitude_threshold_ascend"`
	WaitTime                float64 `yaml:"wait_time"`

	// Envelope
	MinDepth float64 `yaml:"min_depth"`
	MaxDepth float64 `yaml:"max_depth"`

	// Orchestration
	MonitoringCheckInterval float64 `yaml:"monitoring_check_interval"`

	// Tolerances
	LineStartToleranceLatLonMeters     float64 `yaml:"line_start_tolerance_lat_lon_meters"`
	LineStartToleranceDepthMeters      float64 `yaml:"line_start_tolerance_depth_meters"`
	LineStartToleranceHeadingDegrees   float64 `yaml:"line_start_tolerance_heading_degrees"`
	SubphaseCoordinatesToleranceMeters float64 `yaml:"subphase_coordinates_tolerance_meters"`

	// Test mode
	TestMode               bool    `yaml:"test_mode"`
	TestInitialBottomDepth float64 `yaml:"test_initial_bottom_depth"`

	// Logging and paths
	LogDirectory    string `yaml:"log_directory"`
	ConsoleLogLevel string `yaml:"console_log_level"`
	FileLogLevel    string `yaml:"file_log_level"`
	ParamsDirectory string `yaml:"params_directory"`

	// MetricsAddr and TracingEnabled are ambient additions with no Python
	// equivalent; both default sensibly when absent.
	MetricsAddr    string `yaml:"metrics_addr"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// requiredKeys lists the keys that must be set explicitly in the YAML file,
// matching config.py's KeyError-on-missing-key strictness. console_log_level
// and file_log_level are intentionally absent: they default.
var requiredKeys = []string{
	"backseat_ip", "backseat_port", "backseat_connection_timeout", "backseat_response_timeout",
	"overload_command_duration", "desbridge_host", "desbridge_port",
	"max_angle", "command_period", "transition_time",
	"altitude_threshold_level", "altitude_threshold_ascend", "wait_time",
	"min_depth", "max_depth",
	"monitoring_check_interval",
	"line_start_tolerance_lat_lon_meters", "line_start_tolerance_depth_meters",
	"line_start_tolerance_heading_degrees", "subphase_coordinates_tolerance_meters",
	"test_mode", "test_initial_bottom_depth",
	"log_directory", "params_directory",
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q not found: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML configuration: %w", err)
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("missing configuration key: %s", key)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML configuration: %w", err)
	}

	if cfg.ConsoleLogLevel == "" {
		cfg.ConsoleLogLevel = "INFO"
	}
	if cfg.FileLogLevel == "" {
		cfg.FileLogLevel = "DEBUG"
	}

	return &cfg, nil
}

// CommandPeriodDuration returns CommandPeriod as a time.Duration.
func (c *Config) CommandPeriodDuration() time.Duration {
	return time.Duration(c.CommandPeriod * float64(time.Second))
}

// MonitoringCheckIntervalDuration returns MonitoringCheckInterval as a
// time.Duration.
func (c *Config) MonitoringCheckIntervalDuration() time.Duration {
	return time.Duration(c.MonitoringCheckInterval * float64(time.Second))
}

// WaitTimeDuration returns WaitTime as a time.Duration.
func (c *Config) WaitTimeDuration() time.Duration {
	return time.Duration(c.WaitTime * float64(time.Second))
}

// BackseatConnectionTimeoutDuration returns BackseatConnectionTimeout as a
// time.Duration.
func (c *Config) BackseatConnectionTimeoutDuration() time.Duration {
	return time.Duration(c.BackseatConnectionTimeout * float64(time.Second))
}

// BackseatResponseTimeoutDuration returns BackseatResponseTimeout as a
// time.Duration.
func (c *Config) BackseatResponseTimeoutDuration() time.Duration {
	return time.Duration(c.BackseatResponseTimeout * float64(time.Second))
}

// OverloadCommandDurationDuration returns OverloadCommandDuration as a
// time.Duration.
func (c *Config) OverloadCommandDurationDuration() time.Duration {
	return time.Duration(c.OverloadCommandDuration * float64(time.Second))
}

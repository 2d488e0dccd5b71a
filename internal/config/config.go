package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// ErrMissingParam is returned when a required parameter is absent.
var ErrMissingParam = errors.New("missing required parameter")

// BusConfig describes the serial link to the servo chain.
type BusConfig struct {
	Port      string `yaml:"port" env:"DXL_PORT"`           // e.g., "/dev/ttyUSB0"
	BaudRate  int    `yaml:"baud_rate" env:"DXL_BAUD_RATE"` // factory default is 57600
	TimeoutMs int    `yaml:"timeout_ms"`                    // per-reply timeout (ms)
	Mock      bool   `yaml:"mock" env:"DXL_MOCK"`           // simulated servos (true=dev/test)
}

// PowerConfig describes the optional GPIO line switching the servo power rail.
type PowerConfig struct {
	EnablePin int  `yaml:"enable_pin"`                    // BCM pin, active HIGH. 0 = not used.
	MockGPIO  bool `yaml:"mock_gpio" env:"DXL_MOCK_GPIO"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// ControlConfig contains control loop parameters.
type ControlConfig struct {
	RateHz     int `yaml:"rate_hz" env:"DXL_RATE_HZ"`         // read/write cycles per second
	DebugLevel int `yaml:"debug_level" env:"DXL_DEBUG_LEVEL"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// ActuatorConfig holds the parameters of one joint actuator.
// Pointer fields distinguish "absent" from zero.
type ActuatorConfig struct {
	ID                 *int                      `yaml:"id"`
	TorqueConstant     *float64                  `yaml:"torque_constant"` // N·m per ampere
	FirmwareConstraint string                    `yaml:"firmware_constraint,omitempty"`
	AdditionalStates   []string                  `yaml:"additional_states,omitempty"`
	AdditionalCommands []string                  `yaml:"additional_commands,omitempty"`
	OperatingModeMap   map[string]string         `yaml:"operating_mode_map"` // controller name -> mode kind
	ItemMap            map[string]map[string]int `yaml:"item_map,omitempty"` // mode kind -> item name -> value
}

// Config aggregates all application configuration.
type Config struct {
	Bus       BusConfig                 `yaml:"bus"`
	Power     PowerConfig               `yaml:"power"`
	Control   ControlConfig             `yaml:"control"`
	Actuators map[string]ActuatorConfig `yaml:"actuators"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not traverse upwards.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies environment overrides and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Environment wins over the file
	for _, section := range []interface{}{&cfg.Bus, &cfg.Power, &cfg.Control} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("parse environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.Bus.Mock && c.Bus.Port == "" {
		return fmt.Errorf("bus.port is required unless bus.mock is set")
	}
	if c.Bus.BaudRate < 0 {
		return fmt.Errorf("bus.baud_rate must be > 0, got %d", c.Bus.BaudRate)
	}
	if c.Bus.BaudRate == 0 {
		c.Bus.BaudRate = 57600 // factory default
	}
	if c.Bus.TimeoutMs <= 0 {
		c.Bus.TimeoutMs = 50
	}
	if c.Power.EnablePin < 0 {
		return fmt.Errorf("power.enable_pin must be >= 0, got %d", c.Power.EnablePin)
	}
	if c.Control.RateHz < 0 || c.Control.RateHz > 1000 {
		return fmt.Errorf("control.rate_hz must be between 1 and 1000, got %d", c.Control.RateHz)
	}
	if c.Control.RateHz == 0 {
		c.Control.RateHz = 100
	}
	if c.Control.DebugLevel < 0 || c.Control.DebugLevel > 4 {
		return fmt.Errorf("control.debug_level must be between 0 and 4, got %d", c.Control.DebugLevel)
	}
	if len(c.Actuators) == 0 {
		return fmt.Errorf("actuators: at least one actuator is required")
	}
	return nil
}

// Validate checks the required parameters of the actuator called name.
// It is not run by Load: a broken actuator must not prevent the others from starting.
func (a ActuatorConfig) Validate(name string) error {
	if a.ID == nil {
		return fmt.Errorf("%w 'actuators.%s.id'", ErrMissingParam, name)
	}
	if a.TorqueConstant == nil {
		return fmt.Errorf("%w 'actuators.%s.torque_constant'", ErrMissingParam, name)
	}
	if a.OperatingModeMap == nil {
		return fmt.Errorf("%w 'actuators.%s.operating_mode_map'", ErrMissingParam, name)
	}
	for ctrl, kind := range a.OperatingModeMap {
		if ctrl == "" || kind == "" {
			return fmt.Errorf("actuators.%s.operating_mode_map: empty controller or mode name", name)
		}
	}
	return nil
}

// ActuatorNames returns actuator names in a stable order.
func (c *Config) ActuatorNames() []string {
	names := make([]string, 0, len(c.Actuators))
	for name := range c.Actuators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Period returns the duration of one control cycle.
func (c *Config) Period() time.Duration {
	return time.Second / time.Duration(c.Control.RateHz)
}

// BusTimeout returns the per-reply serial timeout.
func (c *Config) BusTimeout() time.Duration {
	return time.Duration(c.Bus.TimeoutMs) * time.Millisecond
}

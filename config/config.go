// Package config loads the daemon configuration from a YAML file and CBD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// UnavailablePolicy decides what happens to pending geo-fenced messages if no location can be determined.
type UnavailablePolicy string

// All unavailable policies
const (
	// DeliverWhenUnavailable delivers the pending messages anyway.
	DeliverWhenUnavailable UnavailablePolicy = "deliver"
	// SuppressWhenUnavailable drops the pending messages.
	SuppressWhenUnavailable UnavailablePolicy = "suppress"
)

func (p UnavailablePolicy) IsValid() bool {
	return p == DeliverWhenUnavailable || p == SuppressWhenUnavailable
}

// PositionSource selects where the daemon gets location fixes from.
type PositionSource string

// All position sources
const (
	PositionFromModem PositionSource = "modem"
	PositionFixed     PositionSource = "fixed"
	PositionNone      PositionSource = "none"
)

func (s PositionSource) IsValid() bool {
	return s == PositionFromModem || s == PositionFixed || s == PositionNone
}

// AreaInfoChannel is the service category of the area info channel used by most networks.
const AreaInfoChannel = 50

// Engine configures the broadcast processing engine. It can be replaced at runtime.
type Engine struct {
	// DuplicateWindow is how far back the duplicate detection looks.
	DuplicateWindow Duration `yaml:"duplicate_window"`
	// ResetOnPowerCycle limits the duplicate detection to messages received after the last
	// power cycle or airplane mode change.
	ResetOnPowerCycle bool `yaml:"reset_on_power_cycle"`
	// AreaInfoCategories are the service categories handled as area info.
	AreaInfoCategories []int `yaml:"area_info_categories"`
	// DefaultMaxWait is the location budget for messages without a maximum wait time.
	DefaultMaxWait    Duration          `yaml:"default_max_wait"`
	UnavailablePolicy UnavailablePolicy `yaml:"unavailable_policy"`
	// AmbiguityToleranceMeters widens the boundary band in which a location fix counts as ambiguous.
	AmbiguityToleranceMeters    float64 `yaml:"ambiguity_tolerance_meters"`
	ResetAreaInfoOnOutOfService bool    `yaml:"reset_area_info_on_out_of_service"`
}

// Modem configures the attached cellular modem.
type Modem struct {
	// Device is the serial device, empty to detect it, "none" to run without a modem.
	Device string `yaml:"device"`
	// Channels are the broadcast channels (message identifiers) to select, empty for all.
	Channels []int `yaml:"channels"`
	// Slot is the slot index reported for messages from this modem.
	Slot int `yaml:"slot"`
	// RequestTimeout limits every AT request.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// Store configures the message history.
type Store struct {
	// Path of the SQLite database, ":memory:" for a volatile history.
	Path string `yaml:"path"`
	// Retention is how long messages are kept in the history.
	Retention Duration `yaml:"retention"`
	// PurgeSchedule is a standard cron expression.
	PurgeSchedule string `yaml:"purge_schedule"`
}

// Position configures the location updates used for geo-fencing.
type Position struct {
	Source   PositionSource `yaml:"source"`
	Interval Duration       `yaml:"interval"`
	// Latitude, Longitude and AccuracyMeters describe the position of the fixed source.
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	AccuracyMeters float64 `yaml:"accuracy_meters"`
}

// API configures the HTTP interface.
type API struct {
	// ListenAddress is the address of the HTTP interface, empty to disable it.
	ListenAddress string `yaml:"listen_address"`
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel string   `yaml:"log_level"`
	Engine   Engine   `yaml:"engine"`
	Modem    Modem    `yaml:"modem"`
	Store    Store    `yaml:"store"`
	Position Position `yaml:"position"`
	API      API      `yaml:"api"`
}

// DefaultEngine returns the default engine configuration.
func DefaultEngine() Engine {
	return Engine{
		DuplicateWindow:    Duration(24 * time.Hour),
		AreaInfoCategories: []int{AreaInfoChannel},
		DefaultMaxWait:     Duration(30 * time.Second),
		UnavailablePolicy:  DeliverWhenUnavailable,
	}
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Engine:   DefaultEngine(),
		Modem: Modem{
			RequestTimeout: Duration(5 * time.Second),
		},
		Store: Store{
			Path:          "cellbroadcast.db",
			Retention:     Duration(7 * 24 * time.Hour),
			PurgeSchedule: "17 * * * *",
		},
		Position: Position{
			Source:   PositionFromModem,
			Interval: Duration(2 * time.Second),
		},
		API: API{
			ListenAddress: "127.0.0.1:8690",
		},
	}
}

// Load reads the configuration file at the given path, applies the environment overrides and
// validates the result. An empty path only uses the defaults and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("cannot read config file: %w", err)
		}
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	var errs []string
	applyEnv(&cfg, &errs)
	cfg.validate(&errs)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

func (c Config) validate(errs *[]string) {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		*errs = append(*errs, fmt.Sprintf("log_level: %v", err))
	}
	c.Engine.validate(errs)
	if c.Modem.RequestTimeout <= 0 {
		*errs = append(*errs, "modem.request_timeout must be positive")
	}
	for _, channel := range c.Modem.Channels {
		validateServiceCategory("modem.channels", channel, errs)
	}
	if c.Store.Path == "" {
		*errs = append(*errs, "store.path must not be empty")
	}
	if c.Store.Retention <= 0 {
		*errs = append(*errs, "store.retention must be positive")
	}
	if _, err := cron.ParseStandard(c.Store.PurgeSchedule); err != nil {
		*errs = append(*errs, fmt.Sprintf("store.purge_schedule: invalid cron expression %q: %v", c.Store.PurgeSchedule, err))
	}
	if !c.Position.Source.IsValid() {
		*errs = append(*errs, fmt.Sprintf("position.source: invalid value %q (allowed: %s, %s, %s)",
			c.Position.Source, PositionFromModem, PositionFixed, PositionNone))
	}
	if c.Position.Interval <= 0 {
		*errs = append(*errs, "position.interval must be positive")
	}
	if c.Position.Source == PositionFixed {
		if c.Position.Latitude < -90 || c.Position.Latitude > 90 || c.Position.Longitude < -180 || c.Position.Longitude > 180 {
			*errs = append(*errs, fmt.Sprintf("position: invalid fixed position %f,%f", c.Position.Latitude, c.Position.Longitude))
		}
	}
}

// Validate checks the engine configuration.
func (e Engine) Validate() error {
	var errs []string
	e.validate(&errs)
	if len(errs) > 0 {
		return fmt.Errorf("invalid engine configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (e Engine) validate(errs *[]string) {
	if e.DuplicateWindow <= 0 {
		*errs = append(*errs, "engine.duplicate_window must be positive")
	}
	if e.DefaultMaxWait <= 0 {
		*errs = append(*errs, "engine.default_max_wait must be positive")
	}
	if !e.UnavailablePolicy.IsValid() {
		*errs = append(*errs, fmt.Sprintf("engine.unavailable_policy: invalid value %q (allowed: %s, %s)",
			e.UnavailablePolicy, DeliverWhenUnavailable, SuppressWhenUnavailable))
	}
	if e.AmbiguityToleranceMeters < 0 {
		*errs = append(*errs, "engine.ambiguity_tolerance_meters must not be negative")
	}
	for _, category := range e.AreaInfoCategories {
		validateServiceCategory("engine.area_info_categories", category, errs)
	}
}

func validateServiceCategory(name string, value int, errs *[]string) {
	if value < 0 || value > 0xFFFF {
		*errs = append(*errs, fmt.Sprintf("%s: service category must be 0-65535, got %d", name, value))
	}
}

// ParseLogLevel returns the pion log level with the given name.
func ParseLogLevel(name string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", name)
	}
}

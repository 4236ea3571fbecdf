// Package config manages acspmond configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cachalot1984/acspmon/internal/model"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete acspmond configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	SSH       SSHConfig       `koanf:"ssh"`
	RF        RFConfig        `koanf:"rf"`
	Canvas    CanvasConfig    `koanf:"canvas"`
	Position  PositionConfig  `koanf:"position"`
	Display   DisplayConfig   `koanf:"display"`
	Poll      PollConfig      `koanf:"poll"`
}

// APIConfig holds the UI-collaborator JSON API server configuration.
type APIConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DiscoveryConfig holds the subnet scanner configuration.
type DiscoveryConfig struct {
	// Target is the probe target set: a.b.c.d/mask, a.b.c.0 (treated as
	// /24), or a.b.c.n:m. Required.
	Target string `koanf:"target"`

	// Interval is the pause between probe sweeps.
	Interval time.Duration `koanf:"interval"`

	// ProbeTimeout bounds one connection probe.
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// SSHConfig holds the shell session configuration.
type SSHConfig struct {
	// Username and Password authenticate against every AP.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// Userpass optionally carries both as "user:pass"; when set it
	// overrides Username and Password.
	Userpass string `koanf:"userpass"`

	// Timeout bounds connection establishment and the wait for command
	// output before a session is declared lost.
	Timeout time.Duration `koanf:"timeout"`

	// CommandDelay is the base settle delay between send and read.
	CommandDelay time.Duration `koanf:"command_delay"`

	// CommandDelayExtra is added to every settle delay (tunable).
	CommandDelayExtra time.Duration `koanf:"command_delay_extra"`
}

// RFConfig holds the signal smoothing and margin configuration.
type RFConfig struct {
	// SmoothWindow is the capacity of every signal smoothing window.
	SmoothWindow int `koanf:"smooth_window"`

	// NfloorMargin is the safety margin in dB over the fleet noise floor.
	NfloorMargin int `koanf:"nfloor_margin"`
}

// CanvasConfig holds the canvas geometry and render options.
type CanvasConfig struct {
	Width        int     `koanf:"width"`
	Height       int     `koanf:"height"`
	MetersPerDot float64 `koanf:"meters_per_dot"`
	Transparent  bool    `koanf:"transparent"`
	Freeze       bool    `koanf:"freeze"`
}

// PositionConfig holds the coordinate solver configuration.
type PositionConfig struct {
	// Method is the coordinate assignment method: auto, manual, random.
	Method string `koanf:"method"`

	// NeighborScoreOrder traverses APs by descending neighbor score
	// instead of discovery order.
	NeighborScoreOrder bool `koanf:"neighbor_score_order"`
}

// DisplayConfig holds the render filtering options.
type DisplayConfig struct {
	// Radio selects which radio of each AP is rendered: "0", "1", "all".
	Radio string `koanf:"radio"`

	// RunTimestamp appends the channel-run timestamp to radio labels.
	RunTimestamp bool `koanf:"run_timestamp"`
}

// PollConfig holds the per-AP poll loop configuration.
type PollConfig struct {
	// Interval is the per-iteration sleep.
	Interval time.Duration `koanf:"interval"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the stock defaults. The
// default credentials match the factory setting of the monitored fleet.
func DefaultConfig() *Config {
	return &Config{
		API:     APIConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9100", Path: "/metrics"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Discovery: DiscoveryConfig{
			Interval:     3 * time.Second,
			ProbeTimeout: 3 * time.Second,
		},
		SSH: SSHConfig{
			Username:     "admin",
			Password:     "aerohive",
			Timeout:      3 * time.Second,
			CommandDelay: 500 * time.Millisecond,
		},
		RF: RFConfig{
			SmoothWindow: 3,
			NfloorMargin: 50,
		},
		Canvas: CanvasConfig{
			Width:        800,
			Height:       600,
			MetersPerDot: 0.1,
		},
		Position: PositionConfig{Method: model.CoordAuto},
		Display:  DisplayConfig{Radio: model.DisplayAll},
		Poll:     PollConfig{Interval: 500 * time.Millisecond},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for configuration.
// Variables are named ACSPMON_<section>_<key>, e.g., ACSPMON_API_ADDR.
const envPrefix = "ACSPMON_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ACSPMON_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyUserpass()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// LoadDefaultsWithEnv builds a config from defaults plus environment
// overrides only, for running without a config file.
func LoadDefaultsWithEnv() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyUserpass()
	return cfg, nil
}

// envKeyMapper transforms ACSPMON_API_ADDR -> api.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"api.addr":                      d.API.Addr,
		"metrics.addr":                  d.Metrics.Addr,
		"metrics.path":                  d.Metrics.Path,
		"log.level":                     d.Log.Level,
		"log.format":                    d.Log.Format,
		"discovery.target":              d.Discovery.Target,
		"discovery.interval":            d.Discovery.Interval.String(),
		"discovery.probe_timeout":       d.Discovery.ProbeTimeout.String(),
		"ssh.username":                  d.SSH.Username,
		"ssh.password":                  d.SSH.Password,
		"ssh.timeout":                   d.SSH.Timeout.String(),
		"ssh.command_delay":             d.SSH.CommandDelay.String(),
		"ssh.command_delay_extra":       d.SSH.CommandDelayExtra.String(),
		"rf.smooth_window":              d.RF.SmoothWindow,
		"rf.nfloor_margin":              d.RF.NfloorMargin,
		"canvas.width":                  d.Canvas.Width,
		"canvas.height":                 d.Canvas.Height,
		"canvas.meters_per_dot":         d.Canvas.MetersPerDot,
		"canvas.transparent":            d.Canvas.Transparent,
		"canvas.freeze":                 d.Canvas.Freeze,
		"position.method":               d.Position.Method,
		"position.neighbor_score_order": d.Position.NeighborScoreOrder,
		"display.radio":                 d.Display.Radio,
		"display.run_timestamp":         d.Display.RunTimestamp,
		"poll.interval":                 d.Poll.Interval.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// applyUserpass splits a combined "user:pass" credential into its parts.
func (c *Config) applyUserpass() {
	if c.SSH.Userpass == "" {
		return
	}
	user, pass, ok := strings.Cut(c.SSH.Userpass, ":")
	if ok {
		c.SSH.Username = user
		c.SSH.Password = pass
	}
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrMissingTarget indicates no discovery target set was supplied.
	ErrMissingTarget = errors.New("discovery.target must be provided")

	// ErrInvalidSmoothWindow indicates a non-positive smoothing window.
	ErrInvalidSmoothWindow = errors.New("rf.smooth_window must be >= 1")

	// ErrInvalidMetersPerDot indicates a non-positive canvas scale.
	ErrInvalidMetersPerDot = errors.New("canvas.meters_per_dot must be > 0")

	// ErrInvalidCanvas indicates non-positive canvas dimensions.
	ErrInvalidCanvas = errors.New("canvas dimensions must be > 0")

	// ErrInvalidCoordMethod indicates an unrecognized coordinate method.
	ErrInvalidCoordMethod = errors.New("position.method must be auto, manual, or random")

	// ErrInvalidRadioDisplayed indicates an unrecognized radio selection.
	ErrInvalidRadioDisplayed = errors.New(`display.radio must be "0", "1", or "all"`)

	// ErrEmptyAPIAddr indicates the API listen address is empty.
	ErrEmptyAPIAddr = errors.New("api.addr must not be empty")
)

// validCoordMethods lists the recognized coordinate method strings.
var validCoordMethods = map[string]bool{
	model.CoordAuto:   true,
	model.CoordManual: true,
	model.CoordRandom: true,
}

// validRadioDisplayed lists the recognized radio display selections.
var validRadioDisplayed = map[string]bool{
	model.DisplayWifi0: true,
	model.DisplayWifi1: true,
	model.DisplayAll:   true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Discovery.Target) == "" {
		return ErrMissingTarget
	}
	if cfg.API.Addr == "" {
		return ErrEmptyAPIAddr
	}
	if cfg.RF.SmoothWindow < 1 {
		return ErrInvalidSmoothWindow
	}
	if cfg.Canvas.MetersPerDot <= 0 {
		return ErrInvalidMetersPerDot
	}
	if cfg.Canvas.Width <= 0 || cfg.Canvas.Height <= 0 {
		return ErrInvalidCanvas
	}
	if !validCoordMethods[cfg.Position.Method] {
		return fmt.Errorf("position.method %q: %w", cfg.Position.Method, ErrInvalidCoordMethod)
	}
	if !validRadioDisplayed[cfg.Display.Radio] {
		return fmt.Errorf("display.radio %q: %w", cfg.Display.Radio, ErrInvalidRadioDisplayed)
	}
	return nil
}

// -------------------------------------------------------------------------
// Derived values
// -------------------------------------------------------------------------

// Tunables converts the startup configuration into the runtime tunables
// snapshot observed by the pollers and the positioning engine.
func (c *Config) Tunables() model.Tunables {
	return model.Tunables{
		SmoothWindow:   c.RF.SmoothWindow,
		NfloorMargin:   c.RF.NfloorMargin,
		MetersPerDot:   c.Canvas.MetersPerDot,
		CanvasWidth:    c.Canvas.Width,
		CanvasHeight:   c.Canvas.Height,
		CmdDelayExtra:  c.SSH.CommandDelayExtra,
		RadioDisplayed: c.Display.Radio,
		CoordMethod:    c.Position.Method,
		NbrScoreOrder:  c.Position.NeighborScoreOrder,
		Transparent:    c.Canvas.Transparent,
		Freeze:         c.Canvas.Freeze,
		RunTimestamp:   c.Display.RunTimestamp,
		Debug:          strings.EqualFold(c.Log.Level, "debug"),
	}
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

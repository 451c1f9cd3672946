package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"padbridge/internal/filter"
	"padbridge/internal/gpio"
	"padbridge/internal/pad"
	"padbridge/internal/sched"
)

// Config is the top-level YAML configuration for the padbridge daemon.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config. Runtime-adjustable values (rates, window, filter
// parameters) are checked strictly at startup; later changes over IPC are
// clamped instead.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Filter  FilterConfig  `yaml:"filter"`
	Output  OutputConfig  `yaml:"output"`
	Mapping MappingConfig `yaml:"mapping"`
	Hotas   HotasConfig   `yaml:"hotas"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	IPC     IPCConfig     `yaml:"ipc"`
	HTTP    HTTPConfig    `yaml:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Source       string  `yaml:"source"` // "evdev" or "none"
	Device       string  `yaml:"device"` // empty: first /dev/input/by-id joystick
	TargetHz     float64 `yaml:"target_hz"`
	WindowSec    float64 `yaml:"window_sec"`
	RingCapacity int     `yaml:"ring_capacity"`
}

type FilterConfig struct {
	Enabled           bool                  `yaml:"enabled"`
	DigitalMaxPulseMS float64               `yaml:"digital_max_pulse_ms"`
	AnalogDelta       float64               `yaml:"analog_delta"`
	Strategy          string                `yaml:"strategy"` // "clamp" or "rate_limit"
	RatePercent       float64               `yaml:"rate_percent"`
	Modes             map[string]ModeConfig `yaml:"modes,omitempty"`
	TriggerDigital    TriggerDigitalConfig  `yaml:"trigger_digital"`
}

// ModeConfig is one per-signal filter mode. Zero parameters fall back to
// the global ones.
type ModeConfig struct {
	Kind       string  `yaml:"kind"` // "none", "digital" or "analog"
	MaxPulseMS float64 `yaml:"max_pulse_ms,omitempty"`
	Delta      float64 `yaml:"delta,omitempty"`
}

type TriggerDigitalConfig struct {
	Left  bool `yaml:"left"`
	Right bool `yaml:"right"`
}

type OutputConfig struct {
	Sink          string  `yaml:"sink"` // "uinput", "remote" or "none"
	Forward       bool    `yaml:"forward"`
	PublishHz     float64 `yaml:"publish_hz"`
	MonitorMapped bool    `yaml:"monitor_mapped"`
	DeviceName    string  `yaml:"device_name"`
	Keyboard      bool    `yaml:"keyboard"` // uinput keyboard/mouse for key and mouse actions

	RemoteURL            string `yaml:"remote_url"`
	RemoteWriteTimeoutMS int    `yaml:"remote_write_timeout_ms"`
}

type MappingConfig struct {
	Profile  string `yaml:"profile"`
	Autoload bool   `yaml:"autoload"`
}

type HotasConfig struct {
	Enabled bool    `yaml:"enabled"`
	Device  string  `yaml:"device"` // empty: match the layout's vendor/product
	Layout  string  `yaml:"layout"` // empty: built-in X56 stick
	PollHz  float64 `yaml:"poll_hz"`
	StaleMS int     `yaml:"stale_ms"`
}

type GPIOConfig struct {
	Enabled bool        `yaml:"enabled"`
	Chip    string      `yaml:"chip"`
	PollHz  float64     `yaml:"poll_hz"`
	Lines   []gpio.Line `yaml:"lines,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	TopicPrefix  string `yaml:"topic_prefix"`
	HeartbeatSec int    `yaml:"heartbeat_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Source:       "evdev",
			TargetHz:     defaultTargetHz,
			WindowSec:    defaultWindowSec,
			RingCapacity: defaultRingCapacity,
		},
		Filter: FilterConfig{
			Enabled:           true,
			DigitalMaxPulseMS: defaultMaxPulseMS,
			AnalogDelta:       defaultAnalogDelta,
			Strategy:          filter.StrategyClamp.String(),
			RatePercent:       defaultRatePercent,
		},
		Output: OutputConfig{
			Sink:                 "uinput",
			Forward:              true,
			PublishHz:            defaultPublishHz,
			MonitorMapped:        true,
			DeviceName:           "padbridge virtual pad",
			Keyboard:             true,
			RemoteWriteTimeoutMS: 20,
		},
		Mapping: MappingConfig{
			Profile: "~/.config/padbridge/profile.yaml",
		},
		Hotas: HotasConfig{
			PollHz:  defaultHotasHz,
			StaleMS: defaultStaleMS,
		},
		GPIO: GPIOConfig{
			Chip:   "gpiochip0",
			PollHz: gpio.DefaultHz,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/padbridge.sock",
		},
		HTTP: HTTPConfig{
			Port: 3020,
		},
		MQTT: MQTTConfig{
			ClientID:     "padbridge",
			TopicPrefix:  "padbridge",
			HeartbeatSec: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
// Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values to apply over the file config. Nil
// pointers are flags that were not given on the command line.
type FlagOverrides struct {
	InputSource *string
	InputDevice *string
	TargetHz    *float64
	WindowSec   *float64

	FilterEnabled *bool
	MaxPulseMS    *float64
	AnalogDelta   *float64

	OutputSink *string
	Forward    *bool
	PublishHz  *float64
	RemoteURL  *string

	MappingProfile *string

	HotasEnabled *bool
	HotasDevice  *string

	IPCSocketPath *string
	HTTPPort      *int
	MQTTBroker    *string

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if
// it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputSource != nil {
		cfg.Input.Source = *o.InputSource
	}
	if o.InputDevice != nil {
		cfg.Input.Device = *o.InputDevice
	}
	if o.TargetHz != nil {
		cfg.Input.TargetHz = *o.TargetHz
	}
	if o.WindowSec != nil {
		cfg.Input.WindowSec = *o.WindowSec
	}

	if o.FilterEnabled != nil {
		cfg.Filter.Enabled = *o.FilterEnabled
	}
	if o.MaxPulseMS != nil {
		cfg.Filter.DigitalMaxPulseMS = *o.MaxPulseMS
	}
	if o.AnalogDelta != nil {
		cfg.Filter.AnalogDelta = *o.AnalogDelta
	}

	if o.OutputSink != nil {
		cfg.Output.Sink = *o.OutputSink
	}
	if o.Forward != nil {
		cfg.Output.Forward = *o.Forward
	}
	if o.PublishHz != nil {
		cfg.Output.PublishHz = *o.PublishHz
	}
	if o.RemoteURL != nil {
		cfg.Output.RemoteURL = *o.RemoteURL
	}

	if o.MappingProfile != nil {
		cfg.Mapping.Profile = *o.MappingProfile
		cfg.Mapping.Autoload = true
	}

	if o.HotasEnabled != nil {
		cfg.Hotas.Enabled = *o.HotasEnabled
	}
	if o.HotasDevice != nil {
		cfg.Hotas.Device = *o.HotasDevice
		cfg.Hotas.Enabled = true
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
		cfg.MQTT.Enabled = *o.MQTTBroker != ""
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Input
	switch c.Input.Source {
	case "evdev", "none":
	default:
		return fmt.Errorf("input.source must be %q or %q", "evdev", "none")
	}
	if c.Input.TargetHz < sched.MinHz || c.Input.TargetHz > sched.MaxHz {
		return fmt.Errorf("input.target_hz must be between %g and %g", sched.MinHz, sched.MaxHz)
	}
	if c.Input.WindowSec < 1 || c.Input.WindowSec > 60 {
		return errors.New("input.window_sec must be between 1 and 60")
	}
	if n := c.Input.RingCapacity; n <= 0 || n&(n-1) != 0 {
		return errors.New("input.ring_capacity must be a positive power of two")
	}

	// Filter
	if c.Filter.DigitalMaxPulseMS < 0 || c.Filter.DigitalMaxPulseMS > 1000 {
		return errors.New("filter.digital_max_pulse_ms must be between 0 and 1000")
	}
	if c.Filter.AnalogDelta < 0 || c.Filter.AnalogDelta > filter.MaxDelta {
		return fmt.Errorf("filter.analog_delta must be between 0 and %g", filter.MaxDelta)
	}
	if _, err := filter.ParseStrategy(c.Filter.Strategy); err != nil {
		return fmt.Errorf("filter.strategy: %w", err)
	}
	if c.Filter.RatePercent < 0 || c.Filter.RatePercent > filter.MaxRatePercent {
		return errors.New("filter.rate_percent must be between 0 and 100")
	}
	for id, m := range c.Filter.Modes {
		if id == "" {
			return errors.New("filter.modes: signal id must not be empty")
		}
		if _, err := m.toMode(); err != nil {
			return fmt.Errorf("filter.modes[%s]: %w", id, err)
		}
	}

	// Output
	switch c.Output.Sink {
	case "uinput", "none":
	case "remote":
		if c.Output.RemoteURL == "" {
			return errors.New("output.sink is remote but output.remote_url is empty")
		}
	default:
		return fmt.Errorf("output.sink must be one of: uinput, remote, none")
	}
	if c.Output.PublishHz < sched.MinHz || c.Output.PublishHz > sched.MaxHz {
		return fmt.Errorf("output.publish_hz must be between %g and %g", sched.MinHz, sched.MaxHz)
	}
	if c.Output.RemoteWriteTimeoutMS < 0 {
		return errors.New("output.remote_write_timeout_ms must be >= 0")
	}

	// Mapping
	if c.Mapping.Autoload && c.Mapping.Profile == "" {
		return errors.New("mapping.autoload is true but mapping.profile is empty")
	}

	// HOTAS
	if c.Hotas.Enabled {
		if c.Hotas.PollHz <= 0 {
			return errors.New("hotas.poll_hz must be > 0")
		}
		if c.Hotas.StaleMS <= 0 {
			return errors.New("hotas.stale_ms must be > 0")
		}
	}

	// GPIO
	if c.GPIO.Enabled {
		if c.GPIO.Chip == "" {
			return errors.New("gpio.enabled is true but gpio.chip is empty")
		}
		if len(c.GPIO.Lines) == 0 {
			return errors.New("gpio.enabled is true but gpio.lines is empty")
		}
		seen := make(map[string]bool, len(c.GPIO.Lines))
		for _, l := range c.GPIO.Lines {
			if err := l.Validate(); err != nil {
				return err
			}
			if seen[l.Name] {
				return fmt.Errorf("gpio line %s: duplicate name", l.Name)
			}
			seen[l.Name] = true
		}
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.HeartbeatSec <= 0 {
			return errors.New("mqtt.heartbeat_sec must be > 0")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func (m ModeConfig) toMode() (filter.Mode, error) {
	kind, err := filter.ParseKind(m.Kind)
	if err != nil {
		return filter.Mode{}, err
	}
	if m.MaxPulseMS < 0 || m.Delta < 0 {
		return filter.Mode{}, errors.New("max_pulse_ms and delta must be >= 0")
	}
	return filter.Mode{
		Kind:     kind,
		MaxPulse: msToDuration(m.MaxPulseMS),
		Delta:    m.Delta,
	}, nil
}

// FilterParams converts the global filter section.
func (c *Config) FilterParams() filter.Params {
	strategy, _ := filter.ParseStrategy(c.Filter.Strategy)
	return filter.Params{
		MaxPulse:    msToDuration(c.Filter.DigitalMaxPulseMS),
		Delta:       c.Filter.AnalogDelta,
		Strategy:    strategy,
		RatePercent: c.Filter.RatePercent,
	}
}

// FilterModes splits filter.modes into gamepad signals and named producer
// keys. Call after Validate.
func (c *Config) FilterModes() (map[pad.Signal]filter.Mode, map[string]filter.Mode) {
	sigs := make(map[pad.Signal]filter.Mode)
	keyed := make(map[string]filter.Mode)
	for id, mc := range c.Filter.Modes {
		m, err := mc.toMode()
		if err != nil {
			continue
		}
		if sig, err := pad.ParseSignal(id); err == nil {
			sigs[sig] = m
			continue
		}
		keyed[id] = m
	}
	return sigs, keyed
}

// TriggerDigital returns the per-trigger digital flags.
func (c *Config) TriggerDigital() map[pad.Signal]bool {
	return map[pad.Signal]bool{
		pad.LeftTrigger:  c.Filter.TriggerDigital.Left,
		pad.RightTrigger: c.Filter.TriggerDigital.Right,
	}
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

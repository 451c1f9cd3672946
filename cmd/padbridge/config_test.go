package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"padbridge/internal/filter"
	"padbridge/internal/gpio"
	"padbridge/internal/pad"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "padbridge.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	p := cfg.FilterParams()
	if p.MaxPulse != 5*time.Millisecond || p.Delta != 0.25 || p.Strategy != filter.StrategyClamp {
		t.Fatalf("default filter params = %+v", p)
	}
}

func TestLoadConfigFile_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  target_hz: 500
filter:
  strategy: rate_limit
  modes:
    button_b: {kind: none}
    stick:trigger: {kind: digital, max_pulse_ms: 8}
  trigger_digital:
    right: true
gpio:
  enabled: true
  lines:
    - {name: gear, offset: 17, active_low: true}
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Input.TargetHz != 500 {
		t.Fatalf("target_hz = %v", cfg.Input.TargetHz)
	}
	if cfg.Input.WindowSec != defaultWindowSec || cfg.IPC.SocketPath != "/tmp/padbridge.sock" {
		t.Fatal("defaults not kept for unset fields")
	}
	if cfg.FilterParams().Strategy != filter.StrategyRateLimit {
		t.Fatal("strategy not applied")
	}

	sigs, keyed := cfg.FilterModes()
	if m, ok := sigs[pad.ButtonB]; !ok || m.Kind != filter.KindNone {
		t.Fatalf("button_b mode = %+v (present %v)", m, ok)
	}
	if m := keyed["stick:trigger"]; m.Kind != filter.KindDigital || m.MaxPulse != 8*time.Millisecond {
		t.Fatalf("stick:trigger mode = %+v", m)
	}
	if td := cfg.TriggerDigital(); td[pad.LeftTrigger] || !td[pad.RightTrigger] {
		t.Fatalf("trigger digital = %v", td)
	}
	if len(cfg.GPIO.Lines) != 1 || cfg.GPIO.Lines[0].Key() != "gpio:gear" || !cfg.GPIO.Lines[0].ActiveLow {
		t.Fatalf("gpio lines = %+v", cfg.GPIO.Lines)
	}
}

func TestLoadConfigFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "input:\n  target_hz: 500\n  turbo: true\n"},
		{"trailing document", "input:\n  target_hz: 500\n---\ninput:\n  target_hz: 600\n"},
		{"wrong type", "input:\n  target_hz: fast\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfigFile(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	hz := 2000.0
	off := false
	profile := "/tmp/p.yaml"
	dev := "/dev/hidraw3"
	broker := "tcp://broker:1883"
	FlagOverrides{
		TargetHz:       &hz,
		FilterEnabled:  &off,
		MappingProfile: &profile,
		HotasDevice:    &dev,
		MQTTBroker:     &broker,
	}.Apply(&cfg)

	if cfg.Input.TargetHz != 2000 || cfg.Filter.Enabled {
		t.Fatalf("input/filter not overridden: %+v %+v", cfg.Input, cfg.Filter)
	}
	if cfg.Mapping.Profile != profile || !cfg.Mapping.Autoload {
		t.Fatalf("mapping = %+v", cfg.Mapping)
	}
	if !cfg.Hotas.Enabled || cfg.Hotas.Device != dev {
		t.Fatalf("hotas = %+v", cfg.Hotas)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != broker {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Output.Sink != "uinput" {
		t.Fatal("unset override changed output.sink")
	}

	FlagOverrides{}.Apply(nil)
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"source", func(c *Config) { c.Input.Source = "joystick" }, "input.source"},
		{"target hz", func(c *Config) { c.Input.TargetHz = 5 }, "input.target_hz"},
		{"window", func(c *Config) { c.Input.WindowSec = 120 }, "input.window_sec"},
		{"capacity", func(c *Config) { c.Input.RingCapacity = 1000 }, "power of two"},
		{"max pulse", func(c *Config) { c.Filter.DigitalMaxPulseMS = -1 }, "digital_max_pulse_ms"},
		{"delta", func(c *Config) { c.Filter.AnalogDelta = 3 }, "analog_delta"},
		{"strategy", func(c *Config) { c.Filter.Strategy = "smooth" }, "filter.strategy"},
		{"mode kind", func(c *Config) {
			c.Filter.Modes = map[string]ModeConfig{"left_x": {Kind: "sticky"}}
		}, "filter.modes[left_x]"},
		{"sink", func(c *Config) { c.Output.Sink = "serial" }, "output.sink"},
		{"remote url", func(c *Config) { c.Output.Sink = "remote" }, "remote_url"},
		{"publish hz", func(c *Config) { c.Output.PublishHz = 9000 }, "publish_hz"},
		{"autoload", func(c *Config) { c.Mapping.Autoload = true; c.Mapping.Profile = "" }, "mapping.profile"},
		{"gpio lines", func(c *Config) { c.GPIO.Enabled = true }, "gpio.lines"},
		{"gpio dup", func(c *Config) {
			c.GPIO.Enabled = true
			c.GPIO.Lines = []gpio.Line{{Name: "a", Offset: 1}, {Name: "a", Offset: 2}}
		}, "duplicate"},
		{"http port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x.yaml"); got != filepath.Join(home, "x.yaml") {
		t.Fatalf("ExpandPath(~/x.yaml) = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Fatalf("ExpandPath(/abs) = %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("ExpandPath(~user/x) = %q", got)
	}
}

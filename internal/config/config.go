package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

const appName = "pixel-multiverse"

// Marquee board types.
const (
	MarqueeGalacticUnicorn = "GALACTIC_UNICORN"
	MarqueeInterstate75    = "I75_128X32"
)

type Config struct {
	Buttons       ButtonsConfig       `yaml:"buttons"`
	Marquee       MarqueeConfig       `yaml:"marquee"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ButtonsConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Connection     string         `yaml:"connection"` // device path or "auto"
	NumLEDs        int            `yaml:"num_leds"`
	RefreshRate    float64        `yaml:"refresh_rate"`
	LEDsPerButton  int            `yaml:"leds_per_button"`
	ColorMask      uint8          `yaml:"color_mask"`
	BrightnessMask uint8          `yaml:"brightness_mask"`
	ColorOrder     string         `yaml:"color_order"`
	Compress       bool           `yaml:"compress"`
	ButtonMap      map[string]int `yaml:"button_map"`
	LEDMap         []LEDMapping   `yaml:"led_map"`
	AttractProgram []AttractStep  `yaml:"attract_program"`
	AttractOnStart bool           `yaml:"attract_on_start"`
}

// LEDMapping places one LED on the panel grid.
type LEDMapping struct {
	Coord []int `yaml:"coord"`
	Value int   `yaml:"value"`
}

// AttractStep is one pattern of the attract program. Kept free of the
// buttons package types so the config stays a plain data model.
type AttractStep struct {
	Pattern string        `yaml:"pattern"`
	Params  AttractParams `yaml:"params"`
}

type AttractParams struct {
	Direction string          `yaml:"direction"`
	ColorOn   *ledcolor.Color `yaml:"color_on,omitempty"`
	ColorOff  *ledcolor.Color `yaml:"color_off,omitempty"`
	Delay     time.Duration   `yaml:"delay,omitempty"`
	Pause     time.Duration   `yaml:"pause,omitempty"`
}

type MarqueeConfig struct {
	Enabled      bool            `yaml:"enabled"`
	Type         string          `yaml:"type"`
	Connection   string          `yaml:"connection"`
	ColorOrder   string          `yaml:"color_order"`
	Compress     bool            `yaml:"compress"`
	Brightness   uint8           `yaml:"brightness"`
	Rescale      bool            `yaml:"rescale"`
	Background   *ledcolor.Color `yaml:"background,omitempty"`
	DefaultImage string          `yaml:"default_image"`
}

type DaemonConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	User        string `yaml:"user"`
	Group       string `yaml:"group"`
	PidFile     string `yaml:"pid_file"`
	WatchConfig bool   `yaml:"watch_config"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

type ObservabilityConfig struct {
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	HealthEnabled   bool          `yaml:"health_enabled"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	MemoryLimitMB   float64       `yaml:"memory_limit_mb"`
}

var attractDirections = map[string][]string{
	"linear":   {"left_to_right", "right_to_left", "top_to_bottom", "bottom_to_top"},
	"circular": {"outward", "inward"},
	"radial":   {"clockwise", "anticlockwise"},
}

func DefaultConfig() *Config {
	return &Config{
		Buttons: ButtonsConfig{
			Enabled:        true,
			Connection:     "/dev/plasmabuttons",
			NumLEDs:        128,
			RefreshRate:    60,
			LEDsPerButton:  4,
			ColorMask:      0xFF,
			BrightnessMask: 0x1F,
			ColorOrder:     "RGB",
			Compress:       false,
			ButtonMap:      map[string]int{},
			AttractProgram: []AttractStep{
				{Pattern: "linear", Params: AttractParams{Direction: "left_to_right"}},
				{Pattern: "circular", Params: AttractParams{Direction: "outward"}},
				{Pattern: "radial", Params: AttractParams{Direction: "clockwise"}},
			},
		},
		Marquee: MarqueeConfig{
			Enabled:    false,
			Type:       MarqueeGalacticUnicorn,
			Connection: "/dev/unicorn",
			ColorOrder: "RGB",
			Compress:   true,
			Brightness: 127,
			Rescale:    true,
		},
		Daemon: DaemonConfig{
			Name:        "pixel-multiverse-daemon",
			Description: "Pixel Multiverse button and marquee LED driver",
			PidFile:     "/var/run/pixel-multiverse-daemon.pid",
			WatchConfig: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:  true,
			MetricsInterval: time.Minute,
			HealthEnabled:   true,
			HealthInterval:  30 * time.Second,
			MemoryLimitMB:   256,
		},
	}
}

// LoadConfig reads path, or the default location when path is empty. A
// missing file yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = getDefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// ReadConfig reads and parses path. Unlike LoadConfig a missing file is an
// error, so a reload never falls back to defaults.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) SaveConfig(path string) error {
	if path == "" {
		path = getDefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if err := c.Buttons.validate(); err != nil {
		return err
	}

	if err := c.Marquee.validate(); err != nil {
		return err
	}

	switch logging.LogLevel(strings.ToLower(c.Logging.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch logging.LogFormat(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Observability.MetricsEnabled && c.Observability.MetricsInterval <= 0 {
		return fmt.Errorf("observability metrics_interval must be positive")
	}

	if c.Observability.HealthEnabled && c.Observability.HealthInterval <= 0 {
		return fmt.Errorf("observability health_interval must be positive")
	}

	return nil
}

func (b *ButtonsConfig) validate() error {
	if !b.Enabled {
		return nil
	}

	if b.NumLEDs <= 0 {
		return fmt.Errorf("buttons num_leds must be positive")
	}

	if b.RefreshRate <= 0 {
		return fmt.Errorf("buttons refresh_rate must be positive")
	}

	if b.LEDsPerButton <= 0 {
		return fmt.Errorf("buttons leds_per_button must be positive")
	}

	if _, err := ledcolor.ParseOrder(b.ColorOrder); err != nil {
		return fmt.Errorf("buttons color_order: %w", err)
	}

	for label, n := range b.ButtonMap {
		if n < 0 || (n+1)*b.LEDsPerButton > b.NumLEDs {
			return fmt.Errorf("buttons button_map[%s]: button %d does not fit %d LEDs", label, n, b.NumLEDs)
		}
	}

	seen := make(map[layout.Coord]bool, len(b.LEDMap))

	for i, m := range b.LEDMap {
		if len(m.Coord) != 2 {
			return fmt.Errorf("buttons led_map[%d]: coord needs two values, got %d", i, len(m.Coord))
		}

		if m.Value < 0 || m.Value >= b.NumLEDs {
			return fmt.Errorf("buttons led_map[%d]: LED %d out of range", i, m.Value)
		}

		c := layout.Coord{X: m.Coord[0], Y: m.Coord[1]}
		if seen[c] {
			return fmt.Errorf("buttons led_map[%d]: duplicate coord %v", i, m.Coord)
		}

		seen[c] = true
	}

	for i, step := range b.AttractProgram {
		dirs, ok := attractDirections[step.Pattern]
		if !ok {
			return fmt.Errorf("buttons attract_program[%d]: unknown pattern %q", i, step.Pattern)
		}

		valid := false

		for _, d := range dirs {
			if d == step.Params.Direction {
				valid = true
			}
		}

		if !valid {
			return fmt.Errorf("buttons attract_program[%d]: invalid %s direction %q", i, step.Pattern, step.Params.Direction)
		}
	}

	return nil
}

func (m *MarqueeConfig) validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Type != MarqueeGalacticUnicorn && m.Type != MarqueeInterstate75 {
		return fmt.Errorf("invalid marquee type: %s", m.Type)
	}

	if _, err := ledcolor.ParseOrder(m.ColorOrder); err != nil {
		return fmt.Errorf("marquee color_order: %w", err)
	}

	return nil
}

// CoordMap converts led_map into a layout coordinate table.
func (b *ButtonsConfig) CoordMap() map[layout.Coord]int {
	out := make(map[layout.Coord]int, len(b.LEDMap))

	for _, m := range b.LEDMap {
		if len(m.Coord) == 2 {
			out[layout.Coord{X: m.Coord[0], Y: m.Coord[1]}] = m.Value
		}
	}

	return out
}

// Layout builds the button and coordinate maps.
func (b *ButtonsConfig) Layout() *layout.Layout {
	return layout.New(b.ButtonMap, b.CoordMap(), b.LEDsPerButton)
}

// LoggerConfig converts the logging section for the logging package.
func (l LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(strings.ToLower(l.Level)),
		Format:    logging.LogFormat(l.Format),
		Output:    l.Output,
		AddSource: l.AddSource,
	}
}

func getDefaultConfigPath() string {
	if configDir := os.Getenv("XDG_CONFIG_HOME"); configDir != "" {
		return filepath.Join(configDir, appName, "config.yaml")
	}

	if homeDir := os.Getenv("HOME"); homeDir != "" {
		return filepath.Join(homeDir, ".config", appName, "config.yaml")
	}

	return "./config.yaml"
}

func GetConfigPaths() []string {
	var paths []string

	paths = append(paths, getDefaultConfigPath())

	if configDir := os.Getenv("XDG_CONFIG_HOME"); configDir != "" {
		paths = append(paths, filepath.Join(configDir, appName+".yaml"))
	}

	paths = append(paths, "/etc/"+appName+"/config.yaml")
	paths = append(paths, "/usr/local/etc/"+appName+"/config.yaml")
	paths = append(paths, "./configs/config.yaml")

	return paths
}

func FindConfig() (string, error) {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}

			return absPath, nil
		}
	}

	return "", fmt.Errorf("no config file found in standard locations")
}

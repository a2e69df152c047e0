package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	takama "github.com/takama/daemon"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/config"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/daemon"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/testutils"
)

// stubDaemon keeps tests away from the real service manager.
type stubDaemon struct{}

func (stubDaemon) GetTemplate() string                   { return "" }
func (stubDaemon) SetTemplate(string) error              { return nil }
func (stubDaemon) Install(...string) (string, error)     { return "installed", nil }
func (stubDaemon) Remove() (string, error)               { return "removed", nil }
func (stubDaemon) Start() (string, error)                { return "started", nil }
func (stubDaemon) Stop() (string, error)                 { return "stopped", nil }
func (stubDaemon) Status() (string, error)               { return "stopped", nil }
func (stubDaemon) Run(takama.Executable) (string, error) { return "", nil }

func testOptions(extra ...daemon.Option) []daemon.Option {
	return append([]daemon.Option{
		daemon.WithSystemDaemon(stubDaemon{}),
		daemon.WithLogger(logging.NewNopLogger()),
	}, extra...)
}

func TestShowUsage(t *testing.T) {
	var buf bytes.Buffer

	showUsage(&buf)

	for _, cmd := range []string{"run", "attract", "install", "remove", "start", "stop", "status", "config", "init", "test"} {
		if !strings.Contains(buf.String(), "    "+cmd) {
			t.Errorf("usage does not mention %q", cmd)
		}
	}
}

func TestShowConfiguration(t *testing.T) {
	var buf bytes.Buffer

	showConfiguration(&buf, config.DefaultConfig(), "")

	out := buf.String()
	for _, want := range []string{"(defaults)", "/dev/plasmabuttons", "linear left_to_right", "GALACTIC_UNICORN", "Brightness: 127"} {
		if !strings.Contains(out, want) {
			t.Errorf("configuration output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteConfiguration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Buttons.NumLEDs = 64

	path := filepath.Join(t.TempDir(), "pm", "config.yaml")

	got, err := writeConfiguration(cfg, path)
	if err != nil {
		t.Fatalf("writeConfiguration() error = %v", err)
	}

	if got != path {
		t.Errorf("writeConfiguration() = %s, want %s", got, path)
	}

	saved, err := config.ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	if saved.Buttons.NumLEDs != 64 {
		t.Errorf("saved num_leds = %d, want 64", saved.Buttons.NumLEDs)
	}

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	got, err = writeConfiguration(cfg, "")
	if err != nil {
		t.Fatalf("writeConfiguration(default) error = %v", err)
	}

	if want := filepath.Join(xdg, "pixel-multiverse", "config.yaml"); got != want {
		t.Errorf("default path = %s, want %s", got, want)
	}
}

func TestLoadConfiguration(t *testing.T) {
	path := testutils.CreateTempConfig(t, testutils.CreateTestConfigYAML())

	tests := []struct {
		name     string
		flag     string
		wantPath string
		wantLEDs int
		wantErr  bool
	}{
		{"explicit file", path, path, 8, false},
		{"missing file returns defaults", "/nonexistent/path/config.yaml", "/nonexistent/path/config.yaml", 128, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := *configPath
			*configPath = tt.flag

			defer func() { *configPath = old }()

			cfg, got, err := loadConfiguration()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadConfiguration() error = %v", err)
			}

			if got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}

			if cfg.Buttons.NumLEDs != tt.wantLEDs {
				t.Errorf("num_leds = %d, want %d", cfg.Buttons.NumLEDs, tt.wantLEDs)
			}
		})
	}
}

func TestApplyCommandLineOverrides(t *testing.T) {
	tests := []struct {
		name  string
		setup func() func()
		check func(*config.Config) bool
	}{
		{
			name: "buttons_port_override",
			setup: func() func() {
				old := *buttonsPort
				*buttonsPort = "auto"

				return func() { *buttonsPort = old }
			},
			check: func(cfg *config.Config) bool { return cfg.Buttons.Connection == "auto" },
		},
		{
			name: "marquee_port_enables_marquee",
			setup: func() func() {
				old := *marqueePort
				*marqueePort = "/dev/ttyACM1"

				return func() { *marqueePort = old }
			},
			check: func(cfg *config.Config) bool {
				return cfg.Marquee.Enabled && cfg.Marquee.Connection == "/dev/ttyACM1"
			},
		},
		{
			name: "image_override",
			setup: func() func() {
				old := *marqueeImage
				*marqueeImage = "logo.gif"

				return func() { *marqueeImage = old }
			},
			check: func(cfg *config.Config) bool { return cfg.Marquee.DefaultImage == "logo.gif" },
		},
		{
			name: "brightness_override",
			setup: func() func() {
				old := *brightness
				*brightness = 200

				return func() { *brightness = old }
			},
			check: func(cfg *config.Config) bool { return cfg.Marquee.Brightness == 200 },
		},
		{
			name: "brightness_out_of_range_ignored",
			setup: func() func() {
				old := *brightness
				*brightness = 300

				return func() { *brightness = old }
			},
			check: func(cfg *config.Config) bool { return cfg.Marquee.Brightness == 127 },
		},
		{
			name: "log_level_override",
			setup: func() func() {
				old := *logLevel
				*logLevel = "debug"

				return func() { *logLevel = old }
			},
			check: func(cfg *config.Config) bool { return cfg.Logging.Level == "debug" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := tt.setup()
			defer cleanup()

			cfg := config.DefaultConfig()
			applyCommandLineOverrides(cfg)

			if !tt.check(cfg) {
				t.Errorf("override %s not applied", tt.name)
			}
		})
	}
}

func TestTestConnection(t *testing.T) {
	t.Run("recording writer", func(t *testing.T) {
		w := testutils.NewRecordingWriter()

		if err := testConnection(testutils.CreateTestConfig(), testOptions(daemon.WithButtonsWriter(w))...); err != nil {
			t.Fatalf("testConnection() error = %v", err)
		}

		if w.Count() == 0 {
			t.Error("testConnection() sent no frames")
		}
	})

	t.Run("missing port", func(t *testing.T) {
		cfg := testutils.CreateTestConfig()
		cfg.Buttons.Connection = "/nonexistent/tty"

		if err := testConnection(cfg, testOptions()...); err == nil {
			t.Error("testConnection() should fail without hardware")
		}
	})

	t.Run("nothing enabled", func(t *testing.T) {
		cfg := testutils.CreateTestConfig()
		cfg.Buttons.Enabled = false

		if err := testConnection(cfg, testOptions()...); err == nil {
			t.Error("testConnection() should fail with no devices")
		}
	})
}

func TestConstants(t *testing.T) {
	if name != "pixel-multiverse-daemon" {
		t.Errorf("name = %q", name)
	}

	if version == "" || buildTime == "" {
		t.Error("version and buildTime should have defaults")
	}
}

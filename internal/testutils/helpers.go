package testutils

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/config"
)

// CreateTempConfig writes configData to a config file in a per-test
// temporary directory and returns its path.
func CreateTempConfig(t *testing.T, configData string) string {
	t.Helper()

	configFile := filepath.Join(t.TempDir(), "test_config.yaml")
	if err := os.WriteFile(configFile, []byte(configData), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	return configFile
}

// CreateTestConfig returns DefaultConfig tuned for tests: fast refresh, a
// small board with a 3x2 coordinate grid, and fast attract timing.
func CreateTestConfig() *config.Config {
	cfg := config.DefaultConfig()

	cfg.Buttons.Connection = "mock_port"
	cfg.Buttons.NumLEDs = 8
	cfg.Buttons.RefreshRate = 100
	cfg.Buttons.ButtonMap = map[string]int{"P1:A": 0, "P1:B": 1}
	cfg.Buttons.LEDMap = []config.LEDMapping{
		{Coord: []int{0, 0}, Value: 0},
		{Coord: []int{1, 0}, Value: 1},
		{Coord: []int{2, 0}, Value: 2},
		{Coord: []int{0, 1}, Value: 3},
		{Coord: []int{1, 1}, Value: 4},
		{Coord: []int{2, 1}, Value: 5},
	}

	for i := range cfg.Buttons.AttractProgram {
		cfg.Buttons.AttractProgram[i].Params.Delay = time.Millisecond
		cfg.Buttons.AttractProgram[i].Params.Pause = time.Millisecond
	}

	cfg.Marquee.Connection = "mock_marquee"
	cfg.Daemon.PidFile = ""
	cfg.Daemon.WatchConfig = false
	cfg.Observability.MetricsInterval = 50 * time.Millisecond
	cfg.Observability.HealthInterval = 50 * time.Millisecond

	return cfg
}

// CreateTestConfigYAML returns a complete test configuration in YAML format.
func CreateTestConfigYAML() string {
	return `
buttons:
  enabled: true
  connection: "mock_port"
  num_leds: 8
  refresh_rate: 100
  leds_per_button: 4
  color_order: RGB
  button_map:
    "P1:A": 0
    "P1:B": 1
  led_map:
    - {coord: [0, 0], value: 0}
    - {coord: [1, 0], value: 1}
    - {coord: [2, 0], value: 2}
    - {coord: [0, 1], value: 3}
    - {coord: [1, 1], value: 4}
    - {coord: [2, 1], value: 5}
  attract_program:
    - pattern: linear
      params: {direction: left_to_right, delay: 1ms, pause: 1ms}
    - pattern: radial
      params: {direction: clockwise, color_on: [31, 0, 31, 5], delay: 1ms, pause: 1ms}

marquee:
  enabled: false
  type: GALACTIC_UNICORN
  connection: "mock_marquee"

daemon:
  name: "test-daemon"
  description: "Test Daemon"
  pid_file: ""
  watch_config: false

logging:
  level: "debug"
  format: "text"
  output: "stderr"

observability:
  metrics_enabled: true
  metrics_interval: 50ms
  health_enabled: true
  health_interval: 50ms
`
}

// RecordingWriter is a frame sink that keeps every frame it is sent.
type RecordingWriter struct {
	mu       sync.Mutex
	frames   [][]byte
	attempts int
	err      error
}

func NewRecordingWriter() *RecordingWriter {
	return &RecordingWriter{}
}

// Send records a copy of payload, or returns the configured error without
// recording anything.
func (w *RecordingWriter) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.attempts++

	if w.err != nil {
		return w.err
	}

	w.frames = append(w.frames, bytes.Clone(payload))

	return nil
}

// SetError makes subsequent sends fail with err. nil restores success.
func (w *RecordingWriter) SetError(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// Count is the number of frames recorded.
func (w *RecordingWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.frames)
}

// Attempts counts every Send call, failed or not.
func (w *RecordingWriter) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.attempts
}

// Last returns the most recent frame, or nil.
func (w *RecordingWriter) Last() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.frames) == 0 {
		return nil
	}

	return w.frames[len(w.frames)-1]
}

// Frames returns every recorded frame in order.
func (w *RecordingWriter) Frames() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([][]byte, len(w.frames))
	copy(out, w.frames)

	return out
}

// SkipIfShort skips a test if running in short mode
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()

	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}

// SkipIfCI skips a test if running in CI environment
func SkipIfCI(t *testing.T, reason string) {
	t.Helper()

	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		t.Skipf("Skipping test in CI environment: %s", reason)
	}
}

// WaitForCondition polls condition until it holds or timeout passes.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatalf("Condition not met within %v: %s", timeout, message)
}

// RunConcurrently runs the functions in parallel and waits for all of them.
func RunConcurrently(t *testing.T, functions ...func()) {
	t.Helper()

	var wg sync.WaitGroup

	done := make(chan struct{})

	for _, fn := range functions {
		wg.Add(1)

		go func(f func()) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Panic in concurrent function: %v", r)
				}
			}()

			f()
		}(fn)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Concurrent functions did not complete within timeout")
	}
}

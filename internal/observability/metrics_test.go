package observability

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

// syncBuffer lets the flush goroutine and the test share a buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newTestCollector(t *testing.T) *MetricsCollector {
	t.Helper()

	mc := NewMetricsCollector(logging.NewNopLogger(), 0)
	t.Cleanup(mc.Close)

	return mc
}

func TestCopyLabels(t *testing.T) {
	tests := []struct {
		name string
		src  map[string]string
		want map[string]string
	}{
		{"nil map", nil, nil},
		{"empty map", map[string]string{}, nil},
		{"labels", map[string]string{"device": "buttons", "pattern": "linear"}, map[string]string{"device": "buttons", "pattern": "linear"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := copyLabels(tt.src)

			if len(got) != len(tt.want) {
				t.Fatalf("copyLabels() length = %d, want %d", len(got), len(tt.want))
			}

			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("copyLabels()[%s] = %v, want %v", k, got[k], v)
				}
			}

			if len(tt.src) > 0 {
				tt.src["new"] = "value"

				if got["new"] == "value" {
					t.Error("copyLabels() returned the original map")
				}
			}
		})
	}
}

func TestMetricKeyIsOrderIndependent(t *testing.T) {
	a := metricKey("frames", map[string]string{"a": "1", "b": "2"})
	b := metricKey("frames", map[string]string{"b": "2", "a": "1"})

	if a != b {
		t.Errorf("metricKey() = %q and %q, want equal", a, b)
	}

	if got := metricKey("frames", nil); got != "frames" {
		t.Errorf("metricKey() without labels = %q", got)
	}
}

func TestMetricsCollectorCounter(t *testing.T) {
	mc := newTestCollector(t)
	labels := map[string]string{"device": "buttons"}

	mc.IncCounter("frames_sent_total", labels)
	mc.IncCounter("frames_sent_total", labels)
	mc.AddCounter("frames_sent_total", 3, labels)

	m, ok := mc.GetMetric("frames_sent_total", labels)
	if !ok {
		t.Fatal("counter not found")
	}

	if m.Value != 5 || m.Type != MetricTypeCounter {
		t.Errorf("counter = %+v, want value 5", m)
	}

	labels["device"] = "changed"

	if m, _ := mc.GetMetric("frames_sent_total", map[string]string{"device": "buttons"}); m.Labels["device"] != "buttons" {
		t.Error("collector kept a reference to the caller's labels")
	}
}

func TestMetricsCollectorGauge(t *testing.T) {
	mc := newTestCollector(t)

	mc.SetGauge("goroutines_count", 10, nil)
	mc.SetGaugeWithUnit("goroutines_count", 12, nil, "count")

	m, ok := mc.GetMetric("goroutines_count", nil)
	if !ok {
		t.Fatal("gauge not found")
	}

	if m.Value != 12 || m.Unit != "count" {
		t.Errorf("gauge = %+v, want 12 count", m)
	}
}

func TestMetricsCollectorHistogram(t *testing.T) {
	mc := newTestCollector(t)

	mc.ObserveHistogram("tick", 1, nil)
	mc.ObserveHistogram("tick", 3, nil)
	mc.RecordDuration("tick", 2*time.Second, nil)

	m, _ := mc.GetMetric("tick", nil)
	if m.Count != 3 || m.Sum != 6 || m.Value != 2 {
		t.Errorf("histogram = %+v, want count 3 sum 6 last 2", m)
	}

	if m.Mean() != 2 {
		t.Errorf("Mean() = %v, want 2", m.Mean())
	}
}

func TestMetricsCollectorByTypeAndReset(t *testing.T) {
	mc := newTestCollector(t)

	mc.IncCounter("b_total", nil)
	mc.IncCounter("a_total", nil)
	mc.SetGauge("g", 1, nil)

	counters := mc.GetMetricsByType(MetricTypeCounter)
	if len(counters) != 2 || counters[0].Name != "a_total" {
		t.Errorf("GetMetricsByType(counter) = %v", counters)
	}

	if len(mc.GetMetrics()) != 3 {
		t.Errorf("GetMetrics() = %d metrics, want 3", len(mc.GetMetrics()))
	}

	mc.Reset()

	if len(mc.GetMetrics()) != 0 {
		t.Error("Reset() left metrics behind")
	}
}

func TestMetricsCollectorFlushesOnClose(t *testing.T) {
	var buf syncBuffer

	logger := logging.NewWriterLogger(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON}, &buf)
	mc := NewMetricsCollector(logger, 0)

	mc.IncCounter("frames_sent_total", map[string]string{"device": "buttons"})
	mc.Close()
	mc.Close()

	out := buf.String()
	if !strings.Contains(out, "frames_sent_total") || !strings.Contains(out, `"label_device":"buttons"`) {
		t.Errorf("flush output missing counter: %s", out)
	}
}

func TestMetricsCollectorPeriodicFlush(t *testing.T) {
	var buf syncBuffer

	logger := logging.NewWriterLogger(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON}, &buf)
	mc := NewMetricsCollector(logger, 5*time.Millisecond)
	defer mc.Close()

	mc.SetGauge("daemon_uptime_seconds", 1, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "daemon_uptime_seconds") {
		if time.Now().After(deadline) {
			t.Fatal("metrics were never flushed")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestApplicationMetricsObserveFrame(t *testing.T) {
	mc := newTestCollector(t)
	am := NewApplicationMetrics(mc)
	labels := map[string]string{"device": "buttons"}

	am.ObserveFrame("buttons", 527, time.Millisecond, nil)
	am.ObserveFrame("buttons", 527, time.Millisecond, nil)
	am.ObserveFrame("buttons", 0, time.Millisecond, errors.New("port gone"))

	if m, _ := mc.GetMetric("frames_sent_total", labels); m.Value != 2 {
		t.Errorf("frames_sent_total = %v, want 2", m.Value)
	}

	if m, _ := mc.GetMetric("frame_bytes_total", labels); m.Value != 1054 {
		t.Errorf("frame_bytes_total = %v, want 1054", m.Value)
	}

	if m, _ := mc.GetMetric("frames_dropped_total", labels); m.Value != 1 {
		t.Errorf("frames_dropped_total = %v, want 1", m.Value)
	}

	if m, _ := mc.GetMetric("frame_write_duration_seconds", labels); m.Count != 2 {
		t.Errorf("frame_write_duration_seconds count = %v, want 2", m.Count)
	}
}

func TestApplicationMetricsDeviceRecorders(t *testing.T) {
	mc := newTestCollector(t)
	am := NewApplicationMetrics(mc)

	am.RecordTick("buttons", 3*time.Millisecond)
	am.RecordAttractPattern("buttons", "radial")
	am.RecordAttractPattern("buttons", "radial")
	am.RecordMarqueeFrame("GALACTIC_UNICORN", time.Millisecond)

	if m, ok := mc.GetMetric("refresh_tick_duration_seconds", map[string]string{"device": "buttons"}); !ok || m.Count != 1 {
		t.Errorf("refresh_tick_duration_seconds = %+v", m)
	}

	if m, _ := mc.GetMetric("attract_patterns_total", map[string]string{"device": "buttons", "pattern": "radial"}); m.Value != 2 {
		t.Errorf("attract_patterns_total = %v, want 2", m.Value)
	}

	if _, ok := mc.GetMetric("marquee_frame_duration_seconds", map[string]string{"display": "GALACTIC_UNICORN"}); !ok {
		t.Error("marquee frame not recorded")
	}
}

func TestApplicationMetricsDaemon(t *testing.T) {
	mc := newTestCollector(t)
	am := NewApplicationMetrics(mc)

	am.FinishConfigReload(am.StartConfigReload(), true)
	am.FinishConfigReload(am.StartConfigReload(), false)
	am.FinishConfigReload(nil, false)
	am.RecordDaemonUptime(90 * time.Second)
	am.RecordMemoryUsage(1024, 2048, 7)

	if m, _ := mc.GetMetric("config_reloads_total", map[string]string{"success": "false"}); m.Value != 2 {
		t.Errorf("failed reloads = %v, want 2", m.Value)
	}

	if m, ok := mc.GetMetric("config_reload_duration_seconds", map[string]string{"success": "true"}); !ok || m.Count != 1 {
		t.Errorf("reload duration = %+v, want one observation", m)
	}

	if m, _ := mc.GetMetric("daemon_uptime_seconds", nil); m.Value != 90 || m.Unit != "seconds" {
		t.Errorf("uptime = %+v", m)
	}

	if m, _ := mc.GetMetric("goroutines_count", nil); m.Value != 7 {
		t.Errorf("goroutines_count = %v, want 7", m.Value)
	}
}

func TestTimer(t *testing.T) {
	mc := newTestCollector(t)

	timer := mc.StartTimer("reload", map[string]string{"source": "sighup"})
	if d := timer.Stop(); d < 0 {
		t.Errorf("Stop() = %v", d)
	}

	timer.StopWithSuccess(false)

	if _, ok := mc.GetMetric("reload", map[string]string{"source": "sighup"}); !ok {
		t.Error("Stop() did not record")
	}

	if _, ok := mc.GetMetric("reload", map[string]string{"source": "sighup", "success": "false"}); !ok {
		t.Error("StopWithSuccess() did not record")
	}
}

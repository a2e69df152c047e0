package observability

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is one named series. For histograms Value is the last observation
// and Count/Sum accumulate every observation since the last Reset.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Count     uint64            `json:"count,omitempty"`
	Sum       float64           `json:"sum,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Mean is Sum/Count for histograms and Value otherwise.
func (m *Metric) Mean() float64 {
	if m.Type != MetricTypeHistogram || m.Count == 0 {
		return m.Value
	}

	return m.Sum / float64(m.Count)
}

func (m *Metric) clone() *Metric {
	c := *m

	return &c
}

// MetricsCollector keeps metrics in memory and periodically writes them to
// the metrics logger.
type MetricsCollector struct {
	logger        *logging.MetricsLogger
	metrics       map[string]*Metric
	mu            sync.RWMutex
	flushInterval time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewMetricsCollector starts a collector that flushes every flushInterval.
// A non-positive interval disables periodic flushing; Close still flushes.
func NewMetricsCollector(logger *logging.Logger, flushInterval time.Duration) *MetricsCollector {
	ctx, cancel := context.WithCancel(context.Background())

	mc := &MetricsCollector{
		logger:        logging.NewMetricsLogger(logger),
		metrics:       make(map[string]*Metric),
		flushInterval: flushInterval,
		cancel:        cancel,
	}

	mc.wg.Add(1)

	go mc.flushLoop(ctx)

	return mc
}

// IncCounter increments a counter metric
func (mc *MetricsCollector) IncCounter(name string, labels map[string]string) {
	mc.AddCounter(name, 1, labels)
}

// AddCounter adds a value to a counter metric
func (mc *MetricsCollector) AddCounter(name string, value float64, labels map[string]string) {
	mc.update(name, MetricTypeCounter, labels, "", func(m *Metric) {
		m.Value += value
	})
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.SetGaugeWithUnit(name, value, labels, "")
}

// SetGaugeWithUnit sets a gauge metric value with a unit
func (mc *MetricsCollector) SetGaugeWithUnit(name string, value float64, labels map[string]string, unit string) {
	mc.update(name, MetricTypeGauge, labels, unit, func(m *Metric) {
		m.Value = value
	})
}

// ObserveHistogram adds an observation to a histogram metric
func (mc *MetricsCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	mc.update(name, MetricTypeHistogram, labels, "", func(m *Metric) {
		m.Value = value
		m.Count++
		m.Sum += value
	})
}

// RecordDuration records a duration in seconds as a histogram observation.
func (mc *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	mc.ObserveHistogram(name, duration.Seconds(), labels)
}

func (mc *MetricsCollector) update(name string, typ MetricType, labels map[string]string, unit string, fn func(*Metric)) {
	key := metricKey(name, labels)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.metrics[key]
	if !ok || m.Type != typ {
		m = &Metric{Name: name, Type: typ, Labels: copyLabels(labels), Unit: unit}
		mc.metrics[key] = m
	}

	if unit != "" {
		m.Unit = unit
	}

	fn(m)
	m.Timestamp = time.Now()
}

// GetMetrics returns a snapshot of all current metrics keyed by name and
// sorted labels.
func (mc *MetricsCollector) GetMetrics() map[string]*Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := make(map[string]*Metric, len(mc.metrics))
	for k, v := range mc.metrics {
		snapshot[k] = v.clone()
	}

	return snapshot
}

// GetMetric returns one metric by name and labels.
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) (*Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m, ok := mc.metrics[metricKey(name, labels)]
	if !ok {
		return nil, false
	}

	return m.clone(), true
}

// GetMetricsByType returns metrics filtered by type, sorted by name.
func (mc *MetricsCollector) GetMetricsByType(metricType MetricType) []*Metric {
	mc.mu.RLock()

	var filtered []*Metric

	for _, m := range mc.metrics {
		if m.Type == metricType {
			filtered = append(filtered, m.clone())
		}
	}
	mc.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })

	return filtered
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics = make(map[string]*Metric)
}

// Flush writes every metric to the metrics logger now.
func (mc *MetricsCollector) Flush() {
	mc.mu.RLock()

	pending := make([]*Metric, 0, len(mc.metrics))
	for _, m := range mc.metrics {
		pending = append(pending, m.clone())
	}
	mc.mu.RUnlock()

	for _, m := range pending {
		switch m.Type {
		case MetricTypeCounter:
			mc.logger.LogCounter(m.Name, int64(m.Value), m.Labels)
		case MetricTypeGauge:
			mc.logger.LogGauge(m.Name, m.Value, m.Labels)
		case MetricTypeHistogram:
			mc.logger.LogHistogram(m.Name, m.Mean(), m.Labels)
		}
	}
}

// Close stops the flush loop after a final flush.
func (mc *MetricsCollector) Close() {
	mc.closeOnce.Do(func() {
		mc.cancel()
		mc.wg.Wait()
	})
}

func (mc *MetricsCollector) flushLoop(ctx context.Context) {
	defer mc.wg.Done()

	var tick <-chan time.Time

	if mc.flushInterval > 0 {
		ticker := time.NewTicker(mc.flushInterval)
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			mc.Flush()

			return
		case <-tick:
			mc.Flush()
		}
	}
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder

	b.WriteString(name)

	for _, k := range keys {
		b.WriteString(",")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}

	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}

	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}

	return out
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}

	return "false"
}

// ApplicationMetrics names the metrics the daemon reports. It satisfies
// multiverse.FrameObserver, buttons.Recorder and marquee.FrameRecorder.
type ApplicationMetrics struct {
	collector *MetricsCollector
}

// NewApplicationMetrics creates application-specific metrics
func NewApplicationMetrics(collector *MetricsCollector) *ApplicationMetrics {
	return &ApplicationMetrics{
		collector: collector,
	}
}

// Collector returns the underlying collector.
func (am *ApplicationMetrics) Collector() *MetricsCollector {
	return am.collector
}

// ObserveFrame counts one serial frame write and its outcome.
func (am *ApplicationMetrics) ObserveFrame(device string, bytes int, duration time.Duration, err error) {
	labels := map[string]string{"device": device}

	if err != nil {
		am.collector.IncCounter("frames_dropped_total", labels)

		return
	}

	am.collector.IncCounter("frames_sent_total", labels)
	am.collector.AddCounter("frame_bytes_total", float64(bytes), labels)
	am.collector.RecordDuration("frame_write_duration_seconds", duration, labels)
}

// RecordTick records how long one refresh tick took, serial write included.
func (am *ApplicationMetrics) RecordTick(device string, duration time.Duration) {
	am.collector.RecordDuration("refresh_tick_duration_seconds", duration, map[string]string{"device": device})
}

// RecordAttractPattern counts attract patterns started.
func (am *ApplicationMetrics) RecordAttractPattern(device, pattern string) {
	am.collector.IncCounter("attract_patterns_total", map[string]string{
		"device":  device,
		"pattern": pattern,
	})
}

// RecordMarqueeFrame records one animation frame shown on the marquee.
func (am *ApplicationMetrics) RecordMarqueeFrame(display string, duration time.Duration) {
	am.collector.RecordDuration("marquee_frame_duration_seconds", duration, map[string]string{"display": display})
}

// StartConfigReload times a configuration reload. Pass the timer to
// FinishConfigReload.
func (am *ApplicationMetrics) StartConfigReload() *Timer {
	return am.collector.StartTimer("config_reload_duration_seconds", nil)
}

// FinishConfigReload counts the reload and records its duration.
func (am *ApplicationMetrics) FinishConfigReload(t *Timer, success bool) {
	am.collector.IncCounter("config_reloads_total", map[string]string{"success": boolLabel(success)})

	if t != nil {
		t.StopWithSuccess(success)
	}
}

// RecordDaemonUptime records daemon uptime
func (am *ApplicationMetrics) RecordDaemonUptime(uptime time.Duration) {
	am.collector.SetGaugeWithUnit("daemon_uptime_seconds", uptime.Seconds(), nil, "seconds")
}

// RecordMemoryUsage records Go heap statistics.
func (am *ApplicationMetrics) RecordMemoryUsage(heapAlloc, heapSys uint64, goroutines int) {
	am.collector.SetGaugeWithUnit("memory_heap_alloc_bytes", float64(heapAlloc), nil, "bytes")
	am.collector.SetGaugeWithUnit("memory_heap_sys_bytes", float64(heapSys), nil, "bytes")
	am.collector.SetGauge("goroutines_count", float64(goroutines), nil)
}

// RecordHealthCheck records one health check run and the component's
// current health as a 0/1 gauge.
func (am *ApplicationMetrics) RecordHealthCheck(component string, healthy bool, duration time.Duration) {
	labels := map[string]string{
		"component": component,
		"healthy":   boolLabel(healthy),
	}

	am.collector.IncCounter("health_checks_total", labels)
	am.collector.RecordDuration("health_check_duration_seconds", duration, labels)

	value := 0.0
	if healthy {
		value = 1
	}

	am.collector.SetGauge("component_health", value, map[string]string{"component": component})
}

// Timer measures one operation into a histogram.
type Timer struct {
	startTime time.Time
	name      string
	labels    map[string]string
	collector *MetricsCollector
}

// StartTimer creates and starts a new timer
func (mc *MetricsCollector) StartTimer(name string, labels map[string]string) *Timer {
	return &Timer{
		startTime: time.Now(),
		name:      name,
		labels:    copyLabels(labels),
		collector: mc,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.startTime)
	t.collector.RecordDuration(t.name, d, t.labels)

	return d
}

// StopWithSuccess records the duration with a success label added.
func (t *Timer) StopWithSuccess(success bool) time.Duration {
	labels := copyLabels(t.labels)
	if labels == nil {
		labels = make(map[string]string, 1)
	}

	labels["success"] = boolLabel(success)

	d := time.Since(t.startTime)
	t.collector.RecordDuration(t.name, d, labels)

	return d
}

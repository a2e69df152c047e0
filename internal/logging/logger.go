package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds the logger configuration
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"` // "stdout", "stderr", or file path
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns Info level text logging to stdout.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stdout",
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
	config Config
	writer io.Writer
}

// ParseLevel converts a config level to its slog equivalent. Unknown levels
// map to Info.
func ParseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a Logger from config. Timestamps in log records are
// rendered using RFC3339.
func NewLogger(config Config) (*Logger, error) {
	var writer io.Writer

	switch config.Output {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writer = f
	}

	return newLogger(config, writer), nil
}

// NewWriterLogger builds a Logger that writes to w regardless of
// config.Output. Useful for tests and for the simulator, which owns stdout.
func NewWriterLogger(config Config, w io.Writer) *Logger {
	return newLogger(config, w)
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return newLogger(DefaultConfig(), io.Discard)
}

func newLogger(config Config, writer io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}

			return a
		},
	}

	var handler slog.Handler

	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: config,
		writer: writer,
	}
}

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
		writer: l.writer,
	}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive("component", component)
}

// WithDevice tags records with the device name and its serial path.
func (l *Logger) WithDevice(name, path string) *Logger {
	return l.derive("device", name, "path", path)
}

// WithFields adds structured fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return l.derive(args...)
}

// Close closes the logger and any associated resources
func (l *Logger) Close() error {
	if l.writer == os.Stdout || l.writer == os.Stderr {
		return nil
	}

	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// LogEvent is one structured lifecycle event queued on an EventLogger.
type LogEvent struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// EventLogger writes lifecycle events from a background goroutine so that
// callers on the refresh path never block on log I/O.
type EventLogger struct {
	logger *Logger
	events chan LogEvent
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEventLogger starts an EventLogger with a 1000-event buffer. When the
// buffer is full events are written synchronously. Close drains the buffer.
func NewEventLogger(logger *Logger) *EventLogger {
	el := &EventLogger{
		logger: logger,
		events: make(chan LogEvent, 1000),
		done:   make(chan struct{}),
	}

	el.wg.Add(1)

	go el.processEvents()

	return el
}

// LogDevice logs events for a buttons or marquee device.
func (el *EventLogger) LogDevice(level LogLevel, message string, device string, fields map[string]interface{}) {
	el.logEvent(level, "device", message, withField(fields, "device", device), nil)
}

// LogAttract logs attract mode transitions and pattern changes.
func (el *EventLogger) LogAttract(level LogLevel, message string, pattern string, fields map[string]interface{}) {
	el.logEvent(level, "attract", message, withField(fields, "pattern", pattern), nil)
}

// LogConfig logs configuration-related events
func (el *EventLogger) LogConfig(level LogLevel, message string, configPath string, fields map[string]interface{}) {
	el.logEvent(level, "config", message, withField(fields, "config_path", configPath), nil)
}

// LogDaemon logs daemon lifecycle events
func (el *EventLogger) LogDaemon(level LogLevel, message string, action string, fields map[string]interface{}) {
	el.logEvent(level, "daemon", message, withField(fields, "action", action), nil)
}

// LogError logs an error together with its caller location.
func (el *EventLogger) LogError(err error, message string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}

	if pc, file, line, ok := runtime.Caller(1); ok {
		fields["caller_file"] = filepath.Base(file)
		fields["caller_line"] = line

		if fn := runtime.FuncForPC(pc); fn != nil {
			fields["caller_func"] = fn.Name()
		}
	}

	el.logEvent(LevelError, "error", message, fields, err)
}

func withField(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{}, 1)
	}

	fields[key] = value

	return fields
}

func (el *EventLogger) logEvent(level LogLevel, component, message string, fields map[string]interface{}, err error) {
	event := LogEvent{
		Level:     string(level),
		Message:   message,
		Component: component,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	if err != nil {
		event.Error = err.Error()
	}

	select {
	case <-el.done:
		return
	default:
	}

	select {
	case el.events <- event:
	default:
		el.logEventDirect(event)
	}
}

func (el *EventLogger) logEventDirect(event LogEvent) {
	logger := el.logger.WithComponent(event.Component)

	args := make([]any, 0, len(event.Fields)*2+2)
	for k, v := range event.Fields {
		args = append(args, k, v)
	}

	if event.Error != "" {
		args = append(args, "error", event.Error)
	}

	switch LogLevel(event.Level) {
	case LevelDebug:
		logger.Debug(event.Message, args...)
	case LevelWarn:
		logger.Warn(event.Message, args...)
	case LevelError:
		logger.Error(event.Message, args...)
	default:
		logger.Info(event.Message, args...)
	}
}

func (el *EventLogger) processEvents() {
	defer el.wg.Done()

	for {
		select {
		case event := <-el.events:
			el.logEventDirect(event)
		case <-el.done:
			for {
				select {
				case event := <-el.events:
					el.logEventDirect(event)
				default:
					return
				}
			}
		}
	}
}

// Close stops the event logger after writing any queued events.
func (el *EventLogger) Close() {
	el.once.Do(func() {
		close(el.done)
	})
	el.wg.Wait()
}

// MetricsLogger renders metric samples as structured log records.
type MetricsLogger struct {
	logger *Logger
}

// NewMetricsLogger returns a MetricsLogger scoped to the "metrics" component.
func NewMetricsLogger(logger *Logger) *MetricsLogger {
	return &MetricsLogger{
		logger: logger.WithComponent("metrics"),
	}
}

func (ml *MetricsLogger) log(msg, kind, name string, value any, labels map[string]string) {
	args := []any{"metric_type", kind, "metric_name", name, "value", value}
	for k, v := range labels {
		args = append(args, "label_"+k, v)
	}

	ml.logger.Info(msg, args...)
}

// LogCounter logs a counter metric
func (ml *MetricsLogger) LogCounter(name string, value int64, labels map[string]string) {
	ml.log("counter metric", "counter", name, value, labels)
}

// LogGauge logs a gauge metric
func (ml *MetricsLogger) LogGauge(name string, value float64, labels map[string]string) {
	ml.log("gauge metric", "gauge", name, value, labels)
}

// LogHistogram logs a histogram metric
func (ml *MetricsLogger) LogHistogram(name string, value float64, labels map[string]string) {
	ml.log("histogram metric", "histogram", name, value, labels)
}

// LogTiming logs timing information
func (ml *MetricsLogger) LogTiming(name string, duration time.Duration, labels map[string]string) {
	ml.log("timing metric", "timing", name, duration.String(), labels)
}

// PerformanceTracker times one operation and reports it through a MetricsLogger.
type PerformanceTracker struct {
	logger    *MetricsLogger
	startTime time.Time
	operation string
	labels    map[string]string
}

// StartTracking begins performance tracking for an operation
func (ml *MetricsLogger) StartTracking(operation string, labels map[string]string) *PerformanceTracker {
	return &PerformanceTracker{
		logger:    ml,
		startTime: time.Now(),
		operation: operation,
		labels:    labels,
	}
}

// Finish completes the performance tracking and logs the duration
func (pt *PerformanceTracker) Finish() time.Duration {
	return pt.FinishWithError(nil)
}

// FinishWithError completes tracking and records whether the operation failed.
func (pt *PerformanceTracker) FinishWithError(err error) time.Duration {
	duration := time.Since(pt.startTime)

	labels := make(map[string]string, len(pt.labels)+2)
	for k, v := range pt.labels {
		labels[k] = v
	}

	if err != nil {
		labels["error"] = "true"
		labels["error_message"] = err.Error()
	}

	pt.logger.LogTiming(pt.operation, duration, labels)

	return duration
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// SetGlobalLogger sets the logger used by the package-level helpers. Passing
// nil restores the lazily created default.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalLogger = logger
}

// GetGlobalLogger returns the package-level logger, creating a default one
// on first use.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()

	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		globalLogger = newLogger(DefaultConfig(), os.Stdout)
	}

	return globalLogger
}

// Debug logs at debug level using the global logger.
func Debug(msg string, args ...any) {
	GetGlobalLogger().Debug(msg, args...)
}

// Info logs at info level using the global logger.
func Info(msg string, args ...any) {
	GetGlobalLogger().Info(msg, args...)
}

// Warn logs at warn level using the global logger.
func Warn(msg string, args ...any) {
	GetGlobalLogger().Warn(msg, args...)
}

// Error logs at error level using the global logger.
func Error(msg string, args ...any) {
	GetGlobalLogger().Error(msg, args...)
}

// WithComponent derives a component logger from the global logger.
func WithComponent(component string) *Logger {
	return GetGlobalLogger().WithComponent(component)
}

// WithFields derives a logger carrying fields from the global logger.
func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

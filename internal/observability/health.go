package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusUnknown   HealthStatus = "unknown"
	StatusStarting  HealthStatus = "starting"
)

const (
	defaultCheckTimeout = 30 * time.Second
	maxConcurrentChecks = 5
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
	Timeout() time.Duration
}

// HealthMonitor runs registered checkers on an interval and keeps the latest
// result of each.
type HealthMonitor struct {
	checkers map[string]HealthChecker
	results  map[string]*HealthCheck
	logger   *logging.EventLogger
	metrics  *ApplicationMetrics
	mu       sync.RWMutex

	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	stopOnce      sync.Once

	checkSem chan struct{}
}

// NewHealthMonitor creates a monitor; metrics may be nil. A non-positive
// interval falls back to one second. Call Start to begin checking.
func NewHealthMonitor(logger *logging.Logger, metrics *ApplicationMetrics, checkInterval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	events := logging.NewEventLogger(logger)

	if checkInterval <= 0 {
		events.LogDaemon(logging.LevelWarn, "invalid health check interval, using default", "validate", map[string]interface{}{
			"provided_interval": checkInterval.String(),
			"default_interval":  time.Second.String(),
		})

		checkInterval = time.Second
	}

	return &HealthMonitor{
		checkers:      make(map[string]HealthChecker),
		results:       make(map[string]*HealthCheck),
		logger:        events,
		metrics:       metrics,
		checkInterval: checkInterval,
		ctx:           ctx,
		cancel:        cancel,
		checkSem:      make(chan struct{}, maxConcurrentChecks),
	}
}

// RegisterChecker registers a health checker
func (hm *HealthMonitor) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[checker.Name()] = checker
	hm.results[checker.Name()] = &HealthCheck{
		Name:        checker.Name(),
		Status:      StatusStarting,
		LastChecked: time.Now(),
	}

	hm.logger.LogDaemon(logging.LevelInfo, "health checker registered", "register", map[string]interface{}{
		"checker": checker.Name(),
	})
}

// Start begins health monitoring
func (hm *HealthMonitor) Start() {
	hm.wg.Add(1)

	go hm.monitorLoop()

	hm.logger.LogDaemon(logging.LevelInfo, "health monitor started", "start", nil)
}

// Stop cancels running checks and waits for the monitor loop.
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() {
		hm.cancel()
		hm.wg.Wait()

		hm.logger.LogDaemon(logging.LevelInfo, "health monitor stopped", "stop", nil)
		hm.logger.Close()
	})
}

// GetHealth returns the current health status of all components
func (hm *HealthMonitor) GetHealth() map[string]*HealthCheck {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]*HealthCheck, len(hm.results))
	for name, check := range hm.results {
		c := *check
		result[name] = &c
	}

	return result
}

// GetOverallHealth is unhealthy if any component is, starting if any has
// not been checked yet, and unknown with no checkers.
func (hm *HealthMonitor) GetOverallHealth() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	if len(hm.results) == 0 {
		return StatusUnknown
	}

	overall := StatusHealthy

	for _, check := range hm.results {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusStarting:
			overall = StatusStarting
		}
	}

	return overall
}

// IsHealthy returns true if all components are healthy
func (hm *HealthMonitor) IsHealthy() bool {
	return hm.GetOverallHealth() == StatusHealthy
}

// RunChecks runs every checker once and waits for them.
func (hm *HealthMonitor) RunChecks() {
	hm.mu.RLock()

	checkers := make([]HealthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		checkers = append(checkers, c)
	}
	hm.mu.RUnlock()

	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)

		go func(c HealthChecker) {
			defer wg.Done()

			select {
			case hm.checkSem <- struct{}{}:
				defer func() { <-hm.checkSem }()

				hm.runCheck(c)
			case <-hm.ctx.Done():
			}
		}(checker)
	}

	wg.Wait()
}

func (hm *HealthMonitor) monitorLoop() {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	hm.RunChecks()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			hm.RunChecks()
		}
	}
}

func (hm *HealthMonitor) runCheck(checker HealthChecker) {
	start := time.Now()

	timeout := checker.Timeout()
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	ctx, cancel := context.WithTimeout(hm.ctx, timeout)
	defer cancel()

	err := checker.Check(ctx)
	duration := time.Since(start)

	result := &HealthCheck{
		Name:        checker.Name(),
		Status:      StatusHealthy,
		Message:     "OK",
		LastChecked: time.Now(),
		Duration:    duration,
	}

	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		result.Error = err.Error()
	}

	hm.mu.Lock()
	hm.results[checker.Name()] = result
	hm.mu.Unlock()

	if hm.metrics != nil {
		hm.metrics.RecordHealthCheck(checker.Name(), err == nil, duration)
	}

	level := logging.LevelDebug
	if err != nil {
		level = logging.LevelWarn
	}

	hm.logger.LogDaemon(level, "health check completed", "health_check", map[string]interface{}{
		"checker":  checker.Name(),
		"status":   string(result.Status),
		"duration": duration.String(),
		"error":    err,
	})
}

// FuncHealthChecker adapts a function to HealthChecker.
type FuncHealthChecker struct {
	name    string
	check   func(ctx context.Context) error
	timeout time.Duration
}

// NewFuncHealthChecker wraps fn. A nil fn always fails.
func NewFuncHealthChecker(name string, timeout time.Duration, fn func(ctx context.Context) error) *FuncHealthChecker {
	return &FuncHealthChecker{name: name, check: fn, timeout: timeout}
}

func (f *FuncHealthChecker) Name() string           { return f.name }
func (f *FuncHealthChecker) Timeout() time.Duration { return f.timeout }

func (f *FuncHealthChecker) Check(ctx context.Context) error {
	if f.check == nil {
		return errors.New("no check function provided")
	}

	return f.check(ctx)
}

// DeviceHealthChecker verifies that a serial device node exists and is
// writable. The transport reopens the port every frame, so an unplugged
// board shows up here rather than as a stale handle.
type DeviceHealthChecker struct {
	name    string
	path    string
	timeout time.Duration
}

// NewDeviceHealthChecker checks path under the given checker name.
func NewDeviceHealthChecker(name, path string) *DeviceHealthChecker {
	return &DeviceHealthChecker{
		name:    name,
		path:    path,
		timeout: 2 * time.Second,
	}
}

func (d *DeviceHealthChecker) Name() string           { return d.name }
func (d *DeviceHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DeviceHealthChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d.path == "" {
		return errors.New("no device path configured")
	}

	return deviceWritable(d.path)
}

// MemoryHealthChecker fails when the resident set size of this process
// exceeds a limit.
type MemoryHealthChecker struct {
	name           string
	maxMemoryBytes uint64
	timeout        time.Duration
	pid            int32
}

// NewMemoryHealthChecker checks the current process against maxMemoryBytes.
// A zero limit only verifies that memory can be read.
func NewMemoryHealthChecker(name string, maxMemoryBytes uint64) *MemoryHealthChecker {
	return &MemoryHealthChecker{
		name:           name,
		maxMemoryBytes: maxMemoryBytes,
		timeout:        time.Second,
		pid:            int32(os.Getpid()),
	}
}

func (m *MemoryHealthChecker) Name() string           { return m.name }
func (m *MemoryHealthChecker) Timeout() time.Duration { return m.timeout }

func (m *MemoryHealthChecker) Check(ctx context.Context) error {
	rss, err := m.residentBytes(ctx)
	if err != nil {
		return err
	}

	if m.maxMemoryBytes > 0 && rss > m.maxMemoryBytes {
		return fmt.Errorf("resident memory %d bytes exceeds limit %d", rss, m.maxMemoryBytes)
	}

	return nil
}

func (m *MemoryHealthChecker) residentBytes(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, m.pid)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect process %d: %w", m.pid, err)
	}

	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory info: %w", err)
	}

	return info.RSS, nil
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/takama/daemon"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/buttons"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/config"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/marquee"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/observability"
)

var (
	ErrButtonsDisabled = errors.New("buttons device is not enabled")
	ErrMarqueeDisabled = errors.New("marquee device is not enabled")
	ErrNotInitialized  = errors.New("service not initialized")
)

// Service runs the button board and marquee described by a Config and
// manages the daemon's installation as a system service.
type Service struct {
	daemon.Daemon

	configPath string
	logger     *logging.Logger
	ownsLogger bool
	events     *logging.EventLogger

	collector *observability.MetricsCollector
	metrics   *observability.ApplicationMetrics
	health    *observability.HealthMonitor
	watcher   *config.Watcher

	mu          sync.Mutex
	config      *config.Config
	program     []buttons.Pattern
	buttons     *buttons.Buttons
	marquee     *marquee.Matrix
	initialized bool

	buttonsWriter buttons.FrameWriter
	marqueeWriter marquee.FrameWriter

	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopReq   sync.Once
	stopOnce  sync.Once
}

// Option customises a Service.
type Option func(*Service)

// WithButtonsWriter sends button frames to w instead of a serial transport.
func WithButtonsWriter(w buttons.FrameWriter) Option {
	return func(s *Service) { s.buttonsWriter = w }
}

// WithMarqueeWriter sends marquee frames to w instead of a serial transport.
func WithMarqueeWriter(w marquee.FrameWriter) Option {
	return func(s *Service) { s.marqueeWriter = w }
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSystemDaemon replaces the platform service manager.
func WithSystemDaemon(d daemon.Daemon) Option {
	return func(s *Service) { s.Daemon = d }
}

// NewService builds a Service for cfg. configPath is used for reloads and
// file watching and may be empty.
func NewService(cfg *config.Config, configPath string, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		config:     cfg,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.Daemon == nil {
		d, err := daemon.New(cfg.Daemon.Name, cfg.Daemon.Description, daemon.SystemDaemon)
		if err != nil {
			cancel()

			return nil, fmt.Errorf("failed to create daemon: %w", err)
		}

		s.Daemon = d
	}

	if s.logger == nil {
		l, err := logging.NewLogger(cfg.Logging.LoggerConfig())
		if err != nil {
			cancel()

			return nil, fmt.Errorf("failed to create logger: %w", err)
		}

		s.logger = l
		s.ownsLogger = true
		logging.SetGlobalLogger(l)
	}

	s.events = logging.NewEventLogger(s.logger)

	return s, nil
}

// AttractProgram converts the configured attract steps into patterns.
func AttractProgram(bc config.ButtonsConfig) ([]buttons.Pattern, error) {
	program := make([]buttons.Pattern, 0, len(bc.AttractProgram))

	for i, step := range bc.AttractProgram {
		p, err := buttons.PatternFromConfig(step.Pattern, buttons.PatternParams{
			Direction: step.Params.Direction,
			ColorOn:   step.Params.ColorOn,
			ColorOff:  step.Params.ColorOff,
			Delay:     step.Params.Delay,
			Pause:     step.Params.Pause,
		})
		if err != nil {
			return nil, fmt.Errorf("attract_program[%d]: %w", i, err)
		}

		program = append(program, p)
	}

	return program, nil
}

// Initialize builds metrics, health checks and the configured devices. The
// buttons refresh loop starts here.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	tracker := logging.NewMetricsLogger(s.logger).StartTracking("service_initialize", nil)

	err := s.initializeLocked()
	tracker.FinishWithError(err)

	return err
}

func (s *Service) initializeLocked() error {
	cfg := s.config
	s.logger.Info("Initializing Pixel Multiverse daemon")

	if cfg.Observability.MetricsEnabled {
		s.collector = observability.NewMetricsCollector(s.logger.WithComponent("metrics"), cfg.Observability.MetricsInterval)
		s.metrics = observability.NewApplicationMetrics(s.collector)
	}

	if cfg.Observability.HealthEnabled {
		s.health = observability.NewHealthMonitor(s.logger.WithComponent("health"), s.metrics, cfg.Observability.HealthInterval)
		s.health.RegisterChecker(observability.NewMemoryHealthChecker("memory", uint64(cfg.Observability.MemoryLimitMB*1024*1024)))
	}

	if cfg.Buttons.Enabled {
		if err := s.initButtons(cfg.Buttons); err != nil {
			s.teardownLocked()

			return err
		}
	}

	if cfg.Marquee.Enabled {
		if err := s.initMarquee(cfg.Marquee); err != nil {
			s.teardownLocked()

			return err
		}
	}

	s.initialized = true
	s.logger.Info("Daemon initialized", "buttons", s.buttons != nil, "marquee", s.marquee != nil)

	return nil
}

func (s *Service) transportOptions(compress bool) []multiverse.Option {
	opts := []multiverse.Option{multiverse.WithCompression(compress)}
	if s.metrics != nil {
		opts = append(opts, multiverse.WithObserver(s.metrics))
	}

	return opts
}

func (s *Service) initButtons(bc config.ButtonsConfig) error {
	program, err := AttractProgram(bc)
	if err != nil {
		return err
	}

	order, err := ledcolor.ParseOrder(bc.ColorOrder)
	if err != nil {
		return fmt.Errorf("buttons: %w", err)
	}

	path := bc.Connection
	writer := s.buttonsWriter

	if writer == nil {
		path, err = multiverse.ResolvePort(bc.Connection)
		if err != nil {
			return fmt.Errorf("buttons: %w", err)
		}

		writer = multiverse.NewTransport("buttons", path, s.transportOptions(bc.Compress)...)

		if s.health != nil {
			s.health.RegisterChecker(observability.NewDeviceHealthChecker("buttons_device", path))
		}
	}

	opts := buttons.Options{
		Name:        "buttons",
		NumLEDs:     bc.NumLEDs,
		RefreshRate: bc.RefreshRate,
		Masks:       multiverse.Masks{Color: bc.ColorMask, Brightness: bc.BrightnessMask},
		Order:       order,
	}

	if s.metrics != nil {
		opts.Metrics = s.metrics
	}

	b, err := buttons.New(opts, bc.Layout(), writer, s.logger.WithDevice("buttons", path))
	if err != nil {
		return fmt.Errorf("failed to create buttons device: %w", err)
	}

	s.buttons = b
	s.program = program
	s.events.LogDevice(logging.LevelInfo, "buttons device ready", "buttons", map[string]interface{}{
		"path":     path,
		"num_leds": bc.NumLEDs,
		"patterns": len(program),
	})

	return nil
}

func (s *Service) initMarquee(mc config.MarqueeConfig) error {
	display, err := marquee.DisplayByName(mc.Type)
	if err != nil {
		return err
	}

	order, err := ledcolor.ParseOrder(mc.ColorOrder)
	if err != nil {
		return fmt.Errorf("marquee: %w", err)
	}

	path := mc.Connection
	writer := s.marqueeWriter

	if writer == nil {
		path, err = multiverse.ResolvePort(mc.Connection)
		if err != nil {
			return fmt.Errorf("marquee: %w", err)
		}

		writer = multiverse.NewTransport("marquee", path, s.transportOptions(mc.Compress)...)

		if s.health != nil {
			s.health.RegisterChecker(observability.NewDeviceHealthChecker("marquee_device", path))
		}
	}

	m := marquee.New(display, writer, order, s.logger.WithDevice("marquee", path))
	if s.metrics != nil {
		m.SetRecorder(s.metrics)
	}

	s.marquee = m
	s.events.LogDevice(logging.LevelInfo, "marquee device ready", "marquee", map[string]interface{}{
		"path":    path,
		"display": display.String(),
	})

	return nil
}

// Start initializes the service and starts background work: attract mode
// and the default image when configured, health checks, signal handling
// and config watching.
func (s *Service) Start() error {
	s.logger.Info("Starting Pixel Multiverse daemon")

	if err := s.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	s.startTime = time.Now()
	cfg := s.Config()

	if err := s.writePidFile(cfg.Daemon.PidFile); err != nil {
		s.logger.Warn("Failed to write pid file", "path", cfg.Daemon.PidFile, "error", err)
	}

	if s.buttons != nil && cfg.Buttons.AttractOnStart {
		if err := s.StartAttract(); err != nil {
			s.logger.Warn("Failed to start attract mode", "error", err)
		}
	}

	if s.marquee != nil && cfg.Marquee.DefaultImage != "" {
		if err := s.DisplayImage(cfg.Marquee.DefaultImage); err != nil {
			s.logger.Warn("Failed to show default image", "file", cfg.Marquee.DefaultImage, "error", err)
		}
	}

	if s.health != nil {
		s.health.Start()
	}

	if s.metrics != nil && cfg.Observability.MetricsInterval > 0 {
		s.wg.Add(1)

		go s.runRuntimeMetrics(cfg.Observability.MetricsInterval)
	}

	if cfg.Daemon.WatchConfig && s.configPath != "" {
		w, err := config.NewWatcher(s.configPath, config.DefaultDebounce, s.onConfigChange)
		if err != nil {
			s.logger.Warn("Config file watching disabled", "path", s.configPath, "error", err)
		} else {
			s.watcher = w
		}
	}

	s.wg.Add(1)

	go s.handleSignals()

	s.events.LogDaemon(logging.LevelInfo, "daemon started", "start", nil)

	return nil
}

// Stop shuts everything down: attract mode and the refresh loop are joined
// before it returns. It is safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping Pixel Multiverse daemon")

		s.requestStop()
		s.cancel()

		if s.watcher != nil {
			if err := s.watcher.Close(); err != nil {
				s.logger.Warn("Failed to close config watcher", "error", err)
			}
		}

		s.wg.Wait()

		s.mu.Lock()
		s.teardownLocked()
		pidFile := s.config.Daemon.PidFile
		s.mu.Unlock()

		s.removePidFile(pidFile)

		s.events.LogDaemon(logging.LevelInfo, "daemon stopped", "stop", nil)
		s.events.Close()
		s.logger.Info("Daemon stopped")

		if s.ownsLogger {
			_ = s.logger.Close()
		}
	})

	return nil
}

// teardownLocked stops devices and observability. Callers hold s.mu.
func (s *Service) teardownLocked() {
	if s.buttons != nil {
		s.buttons.Stop()
	}

	if s.marquee != nil {
		s.marquee.Stop()
	}

	if s.health != nil {
		s.health.Stop()
	}

	if s.collector != nil {
		s.collector.Close()
	}
}

// Run starts the service and blocks until a stop signal arrives.
func (s *Service) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	<-s.stopCh

	return s.Stop()
}

// Shutdown asks a running Run to return.
func (s *Service) Shutdown() {
	s.requestStop()
}

func (s *Service) requestStop() {
	s.stopReq.Do(func() { close(s.stopCh) })
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.config
}

// Buttons returns the button device, or nil when disabled.
func (s *Service) Buttons() *buttons.Buttons {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buttons
}

// Marquee returns the marquee, or nil when disabled.
func (s *Service) Marquee() *marquee.Matrix {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.marquee
}

// Metrics returns the application metrics, or nil when disabled.
func (s *Service) Metrics() *observability.ApplicationMetrics {
	return s.metrics
}

// Health returns the health monitor, or nil when disabled.
func (s *Service) Health() *observability.HealthMonitor {
	return s.health
}

// StartAttract starts the configured attract program on the buttons.
func (s *Service) StartAttract() error {
	s.mu.Lock()
	b, program := s.buttons, s.program
	s.mu.Unlock()

	if b == nil {
		return ErrButtonsDisabled
	}

	if err := b.StartAttract(program); err != nil {
		return err
	}

	s.events.LogAttract(logging.LevelInfo, "attract mode started", "program", map[string]interface{}{
		"patterns": len(program),
	})

	return nil
}

// StopAttract stops attract mode and clears the buttons.
func (s *Service) StopAttract() error {
	b := s.Buttons()
	if b == nil {
		return ErrButtonsDisabled
	}

	b.StopAttract()
	s.events.LogAttract(logging.LevelInfo, "attract mode stopped", "program", nil)

	return nil
}

// DisplayImage shows an image on the marquee using the configured
// brightness, background and rescale settings.
func (s *Service) DisplayImage(path string) error {
	s.mu.Lock()
	m := s.marquee
	mc := s.config.Marquee
	s.mu.Unlock()

	if m == nil {
		return ErrMarqueeDisabled
	}

	return m.DisplayImage(path, marquee.ImageOptions{
		Rescale:    mc.Rescale,
		Background: mc.Background,
		Brightness: mc.Brightness,
	})
}

// Reload reads the config file again and applies it. A missing or broken
// file leaves the running config in place.
func (s *Service) Reload() error {
	if s.configPath == "" {
		return errors.New("no config file to reload")
	}

	cfg, err := config.ReadConfig(s.configPath)
	if err != nil {
		s.finishReload(s.startReload(), false)

		return fmt.Errorf("failed to load config: %w", err)
	}

	return s.ApplyConfig(cfg)
}

// ApplyConfig swaps in cfg. The attract program and marquee image options
// take effect immediately; a running attract program restarts with the new
// patterns. Device wiring and layout changes need a restart.
func (s *Service) ApplyConfig(cfg *config.Config) error {
	timer := s.startReload()

	program, err := AttractProgram(cfg.Buttons)
	if err != nil {
		s.finishReload(timer, false)
		s.events.LogError(err, "rejected configuration", map[string]interface{}{"path": s.configPath})

		return err
	}

	s.mu.Lock()
	s.config = cfg
	s.program = program
	b := s.buttons
	s.mu.Unlock()

	if b != nil && b.AttractActive() {
		b.StopAttract()

		if err := b.StartAttract(program); err != nil {
			s.finishReload(timer, false)

			return fmt.Errorf("failed to restart attract mode: %w", err)
		}
	}

	s.finishReload(timer, true)
	s.events.LogConfig(logging.LevelInfo, "configuration reloaded", s.configPath, map[string]interface{}{
		"patterns": len(program),
	})

	return nil
}

func (s *Service) startReload() *observability.Timer {
	if s.metrics == nil {
		return nil
	}

	return s.metrics.StartConfigReload()
}

func (s *Service) finishReload(timer *observability.Timer, ok bool) {
	if s.metrics != nil {
		s.metrics.FinishConfigReload(timer, ok)
	}
}

func (s *Service) onConfigChange(cfg *config.Config, err error) {
	if err != nil {
		s.finishReload(s.startReload(), false)
		s.events.LogError(err, "failed to reload changed config", map[string]interface{}{"path": s.configPath})

		return
	}

	if err := s.ApplyConfig(cfg); err != nil {
		s.logger.Warn("Failed to apply changed config", "error", err)
	}
}

func (s *Service) handleSignals() {
	defer s.wg.Done()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	defer signal.Stop(sigCh)

	for {
		select {
		case <-s.ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				s.logger.Info("Received signal, shutting down", "signal", sig.String())
				s.requestStop()

				return
			case syscall.SIGHUP:
				s.logger.Info("Received SIGHUP, reloading configuration")

				if err := s.Reload(); err != nil {
					s.logger.Warn("Failed to reload config", "error", err)
				}
			}
		}
	}
}

func (s *Service) runRuntimeMetrics(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats

			runtime.ReadMemStats(&ms)
			s.metrics.RecordMemoryUsage(ms.HeapAlloc, ms.HeapSys, runtime.NumGoroutine())
			s.metrics.RecordDaemonUptime(time.Since(s.startTime))
		}
	}
}

func (s *Service) writePidFile(path string) error {
	if path == "" {
		return nil
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func (s *Service) removePidFile(path string) {
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove pid file", "path", path, "error", err)
	}
}

// Install registers the daemon as a system service that runs "run" with
// the current config file.
func (s *Service) Install() (string, error) {
	args := []string{}
	if s.configPath != "" {
		args = append(args, "-config", s.configPath)
	}

	d := s.Config().Daemon
	if d.User != "" || d.Group != "" {
		if err := s.Daemon.SetTemplate(withServiceAccount(s.Daemon.GetTemplate(), d.User, d.Group)); err != nil {
			return "", fmt.Errorf("failed to set service account: %w", err)
		}
	}

	return s.Daemon.Install(append(args, "run")...)
}

// withServiceAccount adds User= and Group= to the [Service] section of a
// systemd unit template. Other init system templates are returned as is.
func withServiceAccount(tmpl, user, group string) string {
	const section = "[Service]\n"

	i := strings.Index(tmpl, section)
	if i < 0 {
		return tmpl
	}

	var lines strings.Builder
	if user != "" {
		lines.WriteString("User=" + user + "\n")
	}

	if group != "" {
		lines.WriteString("Group=" + group + "\n")
	}

	at := i + len(section)

	return tmpl[:at] + lines.String() + tmpl[at:]
}

func (s *Service) Remove() (string, error) {
	return s.Daemon.Remove()
}

func (s *Service) Status() (string, error) {
	return s.Daemon.Status()
}

func (s *Service) StartService() (string, error) {
	return s.Daemon.Start()
}

func (s *Service) StopService() (string, error) {
	return s.Daemon.Stop()
}

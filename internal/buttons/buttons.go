package buttons

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
)

var (
	ErrLEDOutOfRange    = errors.New("LED index out of range")
	ErrButtonOutOfRange = errors.New("button number out of range")
	ErrEmptyProgram     = errors.New("attract program has no patterns")
	ErrAttractRunning   = errors.New("attract mode already running")
	ErrNoCoordinates    = errors.New("layout has no mapped coordinates")
	ErrBadOptions       = errors.New("invalid buttons options")
)

// FrameWriter delivers a packed frame to the hardware. multiverse.Transport
// implements it.
type FrameWriter interface {
	Send(payload []byte) error
}

// Recorder receives timing and attract mode samples. The observability
// package's ApplicationMetrics implements it.
type Recorder interface {
	RecordTick(device string, duration time.Duration)
	RecordAttractPattern(device, pattern string)
}

// Options configures a Buttons device.
type Options struct {
	Name        string
	NumLEDs     int
	RefreshRate float64
	Masks       multiverse.Masks
	Order       ledcolor.Order
	Metrics     Recorder
}

// DefaultOptions matches the stock 32 button board.
func DefaultOptions() Options {
	return Options{
		Name:        "buttons",
		NumLEDs:     128,
		RefreshRate: 60,
		Masks:       multiverse.DefaultMasks,
		Order:       ledcolor.OrderRGB,
	}
}

func (o Options) validate() error {
	if o.NumLEDs <= 0 {
		return fmt.Errorf("%w: num_leds must be positive, got %d", ErrBadOptions, o.NumLEDs)
	}

	if o.RefreshRate <= 0 {
		return fmt.Errorf("%w: refresh rate must be positive, got %v", ErrBadOptions, o.RefreshRate)
	}

	return nil
}

// Buttons is one button LED board. All LED state lives behind a single
// mutex that is never held across serial I/O.
type Buttons struct {
	name    string
	mu      sync.Mutex
	engine  *engine
	layout  *layout.Layout
	writer  FrameWriter
	logger  *logging.Logger
	metrics Recorder

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	attractMu sync.Mutex
	attract   *attractTask
}

// New builds a Buttons device and starts its refresh loop. Call Stop to
// shut it down.
func New(opts Options, l *layout.Layout, w FrameWriter, logger *logging.Logger) (*Buttons, error) {
	b, err := newButtons(opts, l, w, logger)
	if err != nil {
		return nil, err
	}

	b.startRefresh()

	return b, nil
}

// newButtons builds the device without starting the refresh loop.
func newButtons(opts Options, l *layout.Layout, w FrameWriter, logger *logging.Logger) (*Buttons, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.Masks == (multiverse.Masks{}) {
		opts.Masks = multiverse.DefaultMasks
	}

	if opts.Order == (ledcolor.Order{}) {
		opts.Order = ledcolor.OrderRGB
	}

	if opts.Name == "" {
		opts.Name = "buttons"
	}

	if l == nil {
		l = layout.New(nil, nil, 4)
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Buttons{
		name:    opts.Name,
		engine:  newEngine(opts.NumLEDs, opts.RefreshRate, opts.Masks, opts.Order),
		layout:  l,
		writer:  w,
		logger:  logger.WithComponent("buttons"),
		metrics: opts.Metrics,
	}, nil
}

// Name returns the device label.
func (b *Buttons) Name() string {
	return b.name
}

// NumLEDs returns the number of LEDs on the board.
func (b *Buttons) NumLEDs() int {
	return len(b.engine.leds)
}

// Layout returns the button and coordinate maps.
func (b *Buttons) Layout() *layout.Layout {
	return b.layout
}

// SetLEDMode applies s to a single LED.
func (b *Buttons) SetLEDMode(led int, s Setting) error {
	if led < 0 || led >= len(b.engine.leds) {
		return fmt.Errorf("%w: %d (board has %d)", ErrLEDOutOfRange, led, len(b.engine.leds))
	}

	b.mu.Lock()
	s.apply(&b.engine.leds[led])
	b.mu.Unlock()

	return nil
}

// SetButtonMode applies s to every LED of button n.
func (b *Buttons) SetButtonMode(n int, s Setting) error {
	leds := b.layout.LEDsForButton(n)
	if n < 0 || leds[len(leds)-1] >= len(b.engine.leds) {
		return fmt.Errorf("%w: %d", ErrButtonOutOfRange, n)
	}

	b.mu.Lock()
	for _, led := range leds {
		s.apply(&b.engine.leds[led])
	}
	b.mu.Unlock()

	return nil
}

// SetButtonModeByLabel applies s to the button with the given label. An
// unknown label is logged and ignored.
func (b *Buttons) SetButtonModeByLabel(label string, s Setting) error {
	n, ok := b.layout.Button(label)
	if !ok {
		b.logger.Debug("ignoring unknown button label", "label", label)

		return nil
	}

	return b.SetButtonMode(n, s)
}

// SetLEDModeByCoord applies s to the LED mapped at c. An unmapped
// coordinate is logged and ignored.
func (b *Buttons) SetLEDModeByCoord(c layout.Coord, s Setting) error {
	led, ok := b.layout.LED(c)
	if !ok {
		b.logger.Debug("ignoring unmapped coordinate", "x", c.X, "y", c.Y)

		return nil
	}

	return b.SetLEDMode(led, s)
}

// SetAllLEDs applies s to every LED on the board.
func (b *Buttons) SetAllLEDs(s Setting) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.engine.leds {
		s.apply(&b.engine.leds[i])
	}
}

// Status returns a copy of one LED's state.
func (b *Buttons) Status(led int) (Status, error) {
	if led < 0 || led >= len(b.engine.leds) {
		return Status{}, fmt.Errorf("%w: %d", ErrLEDOutOfRange, led)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.engine.leds[led], nil
}

// Frame returns a copy of the most recently packed frame.
func (b *Buttons) Frame() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.engine.snapshot()
}

// Tick advances the animation by one step without sending anything.
func (b *Buttons) Tick() {
	b.mu.Lock()
	b.engine.tick()
	b.mu.Unlock()
}

// WriteToDisplay sends the current frame. Failures are logged and returned;
// the frame is not retried.
func (b *Buttons) WriteToDisplay() error {
	return b.send(b.Frame())
}

func (b *Buttons) send(frame []byte) error {
	if b.writer == nil {
		return nil
	}

	if err := b.writer.Send(frame); err != nil {
		b.logger.Warn("dropping frame", "error", err)

		return err
	}

	return nil
}

// Stop ends attract mode and the refresh loop and waits for both to exit.
// It is safe to call more than once.
func (b *Buttons) Stop() {
	b.stopOnce.Do(func() {
		b.StopAttract()

		if b.cancel != nil {
			b.cancel()
		}

		b.wg.Wait()
	})
}

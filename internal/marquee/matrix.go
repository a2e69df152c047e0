package marquee

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"sync"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

const (
	// DefaultBrightness is the alpha byte written for every pixel.
	DefaultBrightness uint8 = 127

	// initialBackground is the grey level the background buffer starts at.
	initialBackground = 20
)

var (
	ErrImageUnavailable = errors.New("image unavailable")
	ErrNoFrames         = errors.New("no frames to display")
)

// FrameWriter delivers an RGBA frame to the board. multiverse.Transport
// implements it.
type FrameWriter interface {
	Send(payload []byte) error
}

// FrameRecorder is told about every frame the playback task shows.
type FrameRecorder interface {
	RecordMarqueeFrame(display string, duration time.Duration)
}

// ImageOptions controls how an image is placed on the matrix.
type ImageOptions struct {
	// Rescale scales the image to the display. When false the image is
	// center cropped.
	Rescale bool
	// Background, when set, clears the buffer to this color first and makes
	// it the new blend background.
	Background *ledcolor.Color
	Brightness uint8
}

// DefaultImageOptions crops without a background color at DefaultBrightness.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{Brightness: DefaultBrightness}
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Matrix owns the marquee frame buffer.
type Matrix struct {
	display Display
	writer  FrameWriter
	order   ledcolor.Order
	logger  *logging.Logger
	metrics FrameRecorder

	mu         sync.Mutex
	buffer     []byte
	background []byte

	// opMu serializes the public display operations so only one of them
	// can own the playback task.
	opMu sync.Mutex
	play *playback
}

// New creates a Matrix for d. The display buffer starts black and the
// blend background starts dark grey.
func New(d Display, w FrameWriter, order ledcolor.Order, logger *logging.Logger) *Matrix {
	if order == (ledcolor.Order{}) {
		order = ledcolor.OrderRGB
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	background := make([]byte, d.BufferSize())
	for i := range background {
		background[i] = initialBackground
	}

	return &Matrix{
		display:    d,
		writer:     w,
		order:      order,
		logger:     logger.WithComponent("marquee"),
		buffer:     make([]byte, d.BufferSize()),
		background: background,
	}
}

// SetRecorder installs a FrameRecorder. Call before displaying anything.
func (m *Matrix) SetRecorder(r FrameRecorder) {
	m.metrics = r
}

// Display returns the board description.
func (m *Matrix) Display() Display {
	return m.display
}

// Buffer returns a copy of the current RGBA buffer, before color order
// translation.
func (m *Matrix) Buffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]byte(nil), m.buffer...)
}

// Background returns a copy of the blend background.
func (m *Matrix) Background() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]byte(nil), m.background...)
}

// Playing reports whether an animation is running.
func (m *Matrix) Playing() bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.play != nil
}

// ClearWithBackground fills the buffer with c. The color's brightness is
// written as the alpha byte. Nothing is sent to the board.
func (m *Matrix) ClearWithBackground(c ledcolor.Color) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fillLocked(c)
}

func (m *Matrix) fillLocked(c ledcolor.Color) {
	for i := 0; i+3 < len(m.buffer); i += 4 {
		m.buffer[i] = c.Red
		m.buffer[i+1] = c.Green
		m.buffer[i+2] = c.Blue
		m.buffer[i+3] = c.Brightness
	}
}

// WriteToDisplay sends the buffer, in the board's color order.
func (m *Matrix) WriteToDisplay() error {
	m.mu.Lock()
	frame := m.order.TranslateRGBA(m.buffer)
	m.mu.Unlock()

	if m.writer == nil {
		return nil
	}

	if err := m.writer.Send(frame); err != nil {
		m.logger.Warn("Failed to write marquee frame", "error", err)

		return err
	}

	return nil
}

// DisplayImage stops any animation and shows the image at path. A missing
// or undecodable file puts a short message on the matrix instead and
// returns an error wrapping ErrImageUnavailable.
func (m *Matrix) DisplayImage(path string, opts ImageOptions) error {
	frames, err := LoadFrames(path)
	if err != nil {
		msg := "Bad image"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "Not found"
		}

		m.logger.Warn("Cannot display image", "file", path, "error", err)

		if terr := m.DisplayText(msg, opts.Brightness); terr != nil {
			m.logger.Debug("Failed to show fallback text", "error", terr)
		}

		return fmt.Errorf("%w: %s: %w", ErrImageUnavailable, path, err)
	}

	m.logger.Info("Displaying image", "file", path, "frames", len(frames))

	return m.DisplayFrames(frames, opts)
}

// DisplayFrames stops any animation and shows frames. A single frame is
// drawn once; more than one starts a looping playback task.
func (m *Matrix) DisplayFrames(frames []Frame, opts ImageOptions) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stopLocked()

	if len(frames) == 0 {
		return ErrNoFrames
	}

	m.mu.Lock()
	if opts.Background != nil {
		m.fillLocked(*opts.Background)
	}

	copy(m.background, m.buffer)
	m.mu.Unlock()

	fitted := make([]*image.NRGBA, len(frames))
	for i, f := range frames {
		fitted[i] = fit(f.Image, m.display.Width, m.display.Height, opts.Rescale)
	}

	if len(frames) == 1 {
		return m.showFrame(fitted[0], opts.Brightness)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &playback{cancel: cancel, done: make(chan struct{})}
	m.play = p

	go m.animate(ctx, p.done, frames, fitted, opts.Brightness)

	return nil
}

// DisplayText stops any animation and shows msg centered in white. The
// blend background is left as it is.
func (m *Matrix) DisplayText(msg string, brightness uint8) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stopLocked()

	return m.showFrame(renderText(msg, m.display.Width, m.display.Height), brightness)
}

// Stop ends the playback task, if any, and waits for it.
func (m *Matrix) Stop() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stopLocked()
}

func (m *Matrix) stopLocked() {
	if m.play == nil {
		return
	}

	m.play.cancel()
	<-m.play.done
	m.play = nil
}

func (m *Matrix) animate(ctx context.Context, done chan struct{}, frames []Frame, fitted []*image.NRGBA, brightness uint8) {
	defer close(done)

	for {
		for i, img := range fitted {
			start := time.Now()

			_ = m.showFrame(img, brightness)

			elapsed := time.Since(start)
			if m.metrics != nil {
				m.metrics.RecordMarqueeFrame(m.display.Name, elapsed)
			}

			if !sleepCtx(ctx, frames[i].Duration-elapsed) {
				return
			}
		}
	}
}

// showFrame blends img over the background and sends the result.
func (m *Matrix) showFrame(img *image.NRGBA, brightness uint8) error {
	m.mu.Lock()
	blend(m.buffer, m.background, img, m.display.Width, brightness)
	m.mu.Unlock()

	return m.WriteToDisplay()
}

// blend composites img over bg into dst. Each channel is
// src*a/255 + bg*(1-a/255), truncated; the alpha byte becomes brightness.
func blend(dst, bg []byte, img *image.NRGBA, width int, brightness uint8) {
	b := img.Bounds()

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx() && x < width; x++ {
			idx := (y*width + x) * 4
			if idx+3 >= len(dst) {
				return
			}

			p := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			alpha := float64(img.Pix[p+3]) / 255

			for ch := 0; ch < 3; ch++ {
				src := float64(img.Pix[p+ch])
				dst[idx+ch] = uint8(src*alpha + float64(bg[idx+ch])*(1-alpha))
			}

			dst[idx+3] = brightness
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return ctx.Err() == nil
	}
}

package multiverse

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
)

const (
	DefaultBaudRate = 115200

	// AutoConnection asks for the first USB serial port to be used.
	AutoConnection = "auto"
)

// OpenFunc opens a serial port. serial.Open satisfies it.
type OpenFunc func(path string, mode *serial.Mode) (serial.Port, error)

// FrameObserver is told about every Send attempt.
type FrameObserver interface {
	ObserveFrame(device string, bytes int, duration time.Duration, err error)
}

// Transport pushes frames to one serial device. Each Send opens the port,
// writes a single frame and closes it again, so an unplugged or resetting
// board only costs the frames sent while it is away.
type Transport struct {
	name     string
	path     string
	mode     *serial.Mode
	compress bool
	open     OpenFunc
	observer FrameObserver
}

// Option configures a Transport.
type Option func(*Transport)

// WithCompression selects zlib framing.
func WithCompression(enabled bool) Option {
	return func(t *Transport) {
		t.compress = enabled
	}
}

// WithBaudRate overrides DefaultBaudRate.
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.mode.BaudRate = baud
	}
}

// WithOpener replaces serial.Open, mainly for tests.
func WithOpener(open OpenFunc) Option {
	return func(t *Transport) {
		t.open = open
	}
}

// WithObserver registers a FrameObserver.
func WithObserver(o FrameObserver) Option {
	return func(t *Transport) {
		t.observer = o
	}
}

// NewTransport returns a Transport for the device at path. name labels the
// device in metrics.
func NewTransport(name, path string, opts ...Option) *Transport {
	t := &Transport{
		name: name,
		path: path,
		mode: &serial.Mode{
			BaudRate: DefaultBaudRate,
		},
		open: serial.Open,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Name returns the device label.
func (t *Transport) Name() string {
	return t.name
}

// Path returns the serial device path.
func (t *Transport) Path() string {
	return t.path
}

// Compressed reports whether frames are zlib framed.
func (t *Transport) Compressed() bool {
	return t.compress
}

// Send encodes payload and writes it to the device.
func (t *Transport) Send(payload []byte) (err error) {
	start := time.Now()
	written := 0

	defer func() {
		if t.observer != nil {
			t.observer.ObserveFrame(t.name, written, time.Since(start), err)
		}
	}()

	frame, err := Encode(payload, t.compress)
	if err != nil {
		return err
	}

	port, err := t.open(t.path, t.mode)
	if err != nil {
		return fmt.Errorf("failed to open port %s: %w", t.path, err)
	}

	n, err := port.Write(frame)
	written = n

	closeErr := port.Close()

	if err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", t.path, err)
	}

	if n != len(frame) {
		return fmt.Errorf("short write to %s: %d of %d bytes", t.path, n, len(frame))
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close port %s: %w", t.path, closeErr)
	}

	return nil
}

// PortLister returns the serial ports present on the system.
type PortLister func() ([]*enumerator.PortDetails, error)

// DiscoverPort picks the first USB serial port, falling back to the first
// port of any kind.
func DiscoverPort() (string, error) {
	return discoverPort(enumerator.GetDetailedPortsList)
}

func discoverPort(list PortLister) (string, error) {
	ports, err := list()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate ports: %w", err)
	}

	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}

	for _, port := range ports {
		if port.IsUSB {
			logging.Debug("found USB serial port", "port", port.Name, "vid", port.VID, "pid", port.PID)

			return port.Name, nil
		}
	}

	return ports[0].Name, nil
}

// ResolvePort returns connection unchanged unless it is empty or "auto", in
// which case a port is discovered.
func ResolvePort(connection string) (string, error) {
	if connection != "" && !strings.EqualFold(connection, AutoConnection) {
		return connection, nil
	}

	port, err := DiscoverPort()
	if err != nil {
		return "", fmt.Errorf("failed to discover port: %w", err)
	}

	return port, nil
}

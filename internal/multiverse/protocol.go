// Package multiverse implements the serial wire protocol spoken by the
// Pixel Multiverse button and marquee boards.
package multiverse

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
)

// Frame prefixes. A data frame is PrefixData followed by the raw payload. A
// compressed frame is PrefixCompressed, a little-endian uint32 length, and
// that many bytes of zlib stream.
const (
	PrefixData       = "multiverse:data"
	PrefixCompressed = "multiverse:zdat"
)

// BytesPerLED is the width of one LED (or one marquee pixel) on the wire.
const BytesPerLED = 4

var (
	ErrBadPrefix  = errors.New("frame has no multiverse prefix")
	ErrShortFrame = errors.New("frame shorter than its declared length")
)

// Masks clip each channel to the bit depth the hardware supports.
type Masks struct {
	Color      uint8
	Brightness uint8
}

// DefaultMasks matches the button board firmware: 8-bit color, 5-bit
// global brightness.
var DefaultMasks = Masks{Color: 0xFF, Brightness: 0x1F}

// PutLED writes c into buf at led using wire order [B, G, R, L].
func PutLED(buf []byte, led int, c ledcolor.Color, m Masks) {
	off := led * BytesPerLED
	buf[off] = c.Blue & m.Color
	buf[off+1] = c.Green & m.Color
	buf[off+2] = c.Red & m.Color
	buf[off+3] = c.Brightness & m.Brightness
}

// LEDAt reads back the color stored at led by PutLED.
func LEDAt(buf []byte, led int) ledcolor.Color {
	off := led * BytesPerLED

	return ledcolor.New(buf[off+2], buf[off+1], buf[off], buf[off+3])
}

// Encode frames payload for transmission.
func Encode(payload []byte, compress bool) ([]byte, error) {
	if !compress {
		out := make([]byte, 0, len(PrefixData)+len(payload))
		out = append(out, PrefixData...)

		return append(out, payload...), nil
	}

	var z bytes.Buffer

	w := zlib.NewWriter(&z)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress frame: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress frame: %w", err)
	}

	out := make([]byte, 0, len(PrefixCompressed)+4+z.Len())
	out = append(out, PrefixCompressed...)
	out = binary.LittleEndian.AppendUint32(out, uint32(z.Len()))

	return append(out, z.Bytes()...), nil
}

// Decode reverses Encode and returns the payload.
func Decode(frame []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(frame, []byte(PrefixData)):
		return bytes.Clone(frame[len(PrefixData):]), nil
	case bytes.HasPrefix(frame, []byte(PrefixCompressed)):
		rest := frame[len(PrefixCompressed):]
		if len(rest) < 4 {
			return nil, ErrShortFrame
		}

		n := binary.LittleEndian.Uint32(rest)

		rest = rest[4:]
		if uint64(len(rest)) < uint64(n) {
			return nil, fmt.Errorf("%w: have %d, want %d", ErrShortFrame, len(rest), n)
		}

		r, err := zlib.NewReader(bytes.NewReader(rest[:n]))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress frame: %w", err)
		}
		defer r.Close()

		payload, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress frame: %w", err)
		}

		return payload, nil
	default:
		return nil, ErrBadPrefix
	}
}

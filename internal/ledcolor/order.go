package ledcolor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadOrder is returned by ParseOrder for anything that is not a
// permutation of "RGB".
var ErrBadOrder = errors.New("invalid color order")

// Order says which logical channel (0=red, 1=green, 2=blue) drives each
// physical output channel. Brightness is never permuted.
type Order [3]int

// Supported channel orders.
var (
	OrderRGB = Order{0, 1, 2}
	OrderRBG = Order{0, 2, 1}
	OrderGBR = Order{1, 2, 0}
	OrderGRB = Order{1, 0, 2}
	OrderBGR = Order{2, 1, 0}
	OrderBRG = Order{2, 0, 1}
)

var namedOrders = map[string]Order{
	"RGB": OrderRGB,
	"RBG": OrderRBG,
	"GBR": OrderGBR,
	"GRB": OrderGRB,
	"BGR": OrderBGR,
	"BRG": OrderBRG,
}

// ParseOrder maps a name such as "grb" to its Order. The empty string is RGB.
func ParseOrder(name string) (Order, error) {
	if name == "" {
		return OrderRGB, nil
	}

	o, ok := namedOrders[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrBadOrder, name)
	}

	return o, nil
}

// String returns the three-letter name of the order.
func (o Order) String() string {
	const letters = "RGB"

	var b strings.Builder
	for _, ch := range o {
		if ch < 0 || ch > 2 {
			return fmt.Sprintf("Order%v", [3]int(o))
		}
		b.WriteByte(letters[ch])
	}

	return b.String()
}

// Apply permutes the color channels of c.
func (o Order) Apply(c Color) Color {
	ch := [3]uint8{c.Red, c.Green, c.Blue}

	return Color{
		Red:        ch[o[0]],
		Green:      ch[o[1]],
		Blue:       ch[o[2]],
		Brightness: c.Brightness,
	}
}

// TranslateRGBA returns a copy of buf, a sequence of 4-byte RGBA pixels, with
// the color channels of every pixel permuted. Trailing partial pixels are
// copied unchanged.
func (o Order) TranslateRGBA(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)

	for i := 0; i+3 < len(buf); i += 4 {
		out[i] = buf[i+o[0]]
		out[i+1] = buf[i+o[1]]
		out[i+2] = buf[i+o[2]]
	}

	return out
}

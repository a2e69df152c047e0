package buttons

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
)

// Direction orders the steps of a sweep.
type Direction string

const (
	LeftToRight   Direction = "left_to_right"
	RightToLeft   Direction = "right_to_left"
	TopToBottom   Direction = "top_to_bottom"
	BottomToTop   Direction = "bottom_to_top"
	Outward       Direction = "outward"
	Inward        Direction = "inward"
	Clockwise     Direction = "clockwise"
	Anticlockwise Direction = "anticlockwise"
)

// Pattern names as they appear in attract programs.
const (
	PatternLinear   = "linear"
	PatternCircular = "circular"
	PatternRadial   = "radial"
)

const (
	DefaultStepDelay   = 50 * time.Millisecond
	DefaultSweepPause  = 200 * time.Millisecond
	DefaultRadialPause = 500 * time.Millisecond
)

var (
	defaultSweepOn  = ledcolor.New(31, 31, 31, 5)
	defaultRadialOn = ledcolor.New(31, 31, 0, 5)
)

// Sweep holds the parameters every pattern shares: the pattern lights each
// step with On, waits Pause, then turns the same steps to Off in the same
// order. Delay is the wait after each step.
type Sweep struct {
	On    ledcolor.Color
	Off   ledcolor.Color
	Delay time.Duration
	Pause time.Duration
}

// Pattern is one entry of an attract program. The set of implementations is
// closed: Linear, Circular and Radial.
type Pattern interface {
	Name() string
	sweep() Sweep
}

// Linear sweeps the bounding rectangle of the coordinate map one column
// (left/right) or row (top/bottom) at a time.
type Linear struct {
	Direction Direction
	Sweep
}

// Circular sweeps rings of equal integer distance from the layout center.
type Circular struct {
	Direction Direction
	Sweep
}

// Radial sweeps coordinates one at a time in order of their angle around
// the layout center.
type Radial struct {
	Direction Direction
	Sweep
}

func (Linear) Name() string   { return PatternLinear }
func (Circular) Name() string { return PatternCircular }
func (Radial) Name() string   { return PatternRadial }

func (p Linear) sweep() Sweep   { return p.Sweep }
func (p Circular) sweep() Sweep { return p.Sweep }
func (p Radial) sweep() Sweep   { return p.Sweep }

// NewLinear returns a Linear pattern with the stock colors and timing.
func NewLinear(d Direction) Linear {
	return Linear{Direction: d, Sweep: Sweep{On: defaultSweepOn, Delay: DefaultStepDelay, Pause: DefaultSweepPause}}
}

// NewCircular returns a Circular pattern with the stock colors and timing.
func NewCircular(d Direction) Circular {
	return Circular{Direction: d, Sweep: Sweep{On: defaultSweepOn, Delay: DefaultStepDelay, Pause: DefaultSweepPause}}
}

// NewRadial returns a Radial pattern with the stock colors and timing.
func NewRadial(d Direction) Radial {
	return Radial{Direction: d, Sweep: Sweep{On: defaultRadialOn, Delay: DefaultStepDelay, Pause: DefaultRadialPause}}
}

// PatternParams is the loosely typed pattern description read from config.
// Nil colors and zero durations take the pattern's defaults.
type PatternParams struct {
	Direction string
	ColorOn   *ledcolor.Color
	ColorOff  *ledcolor.Color
	Delay     time.Duration
	Pause     time.Duration
}

// PatternFromConfig converts a named pattern and its parameters into a
// Pattern, checking the direction is valid for that pattern.
func PatternFromConfig(name string, params PatternParams) (Pattern, error) {
	d := Direction(params.Direction)

	var p Pattern

	switch name {
	case PatternLinear:
		if !slices.Contains([]Direction{LeftToRight, RightToLeft, TopToBottom, BottomToTop}, d) {
			return nil, fmt.Errorf("linear pattern: unknown direction %q", params.Direction)
		}

		l := NewLinear(d)
		params.override(&l.Sweep)
		p = l
	case PatternCircular:
		if d != Outward && d != Inward {
			return nil, fmt.Errorf("circular pattern: unknown direction %q", params.Direction)
		}

		c := NewCircular(d)
		params.override(&c.Sweep)
		p = c
	case PatternRadial:
		if d != Clockwise && d != Anticlockwise {
			return nil, fmt.Errorf("radial pattern: unknown direction %q", params.Direction)
		}

		r := NewRadial(d)
		params.override(&r.Sweep)
		p = r
	default:
		return nil, fmt.Errorf("unknown attract pattern %q", name)
	}

	return p, nil
}

func (pp PatternParams) override(s *Sweep) {
	if pp.ColorOn != nil {
		s.On = *pp.ColorOn
	}

	if pp.ColorOff != nil {
		s.Off = *pp.ColorOff
	}

	if pp.Delay > 0 {
		s.Delay = pp.Delay
	}

	if pp.Pause > 0 {
		s.Pause = pp.Pause
	}
}

// Steps returns the groups of coordinates p lights together, in order.
func Steps(l *layout.Layout, p Pattern) ([][]layout.Coord, error) {
	switch p := p.(type) {
	case Linear:
		return linearSteps(l, p.Direction)
	case Circular:
		return circularSteps(l, p.Direction)
	case Radial:
		return radialSteps(l, p.Direction)
	default:
		return nil, fmt.Errorf("unsupported pattern %T", p)
	}
}

func span(from, to int, reverse bool) []int {
	out := make([]int, 0, to-from+1)
	for v := from; v <= to; v++ {
		out = append(out, v)
	}

	if reverse {
		slices.Reverse(out)
	}

	return out
}

func linearSteps(l *layout.Layout, d Direction) ([][]layout.Coord, error) {
	r, ok := l.Bounds()
	if !ok {
		return nil, nil
	}

	var (
		outer, inner []int
		byColumn     bool
	)

	switch d {
	case LeftToRight, RightToLeft:
		outer = span(r.Min.X, r.Max.X, d == RightToLeft)
		inner = span(r.Min.Y, r.Max.Y, false)
		byColumn = true
	case TopToBottom, BottomToTop:
		outer = span(r.Min.Y, r.Max.Y, d == BottomToTop)
		inner = span(r.Min.X, r.Max.X, false)
	default:
		return nil, fmt.Errorf("linear pattern: unknown direction %q", d)
	}

	steps := make([][]layout.Coord, 0, len(outer))

	for _, o := range outer {
		var step []layout.Coord

		for _, i := range inner {
			c := layout.Coord{X: i, Y: o}
			if byColumn {
				c = layout.Coord{X: o, Y: i}
			}

			if _, ok := l.LED(c); ok {
				step = append(step, c)
			}
		}

		steps = append(steps, step)
	}

	return steps, nil
}

func circularSteps(l *layout.Layout, d Direction) ([][]layout.Coord, error) {
	if d != Outward && d != Inward {
		return nil, fmt.Errorf("circular pattern: unknown direction %q", d)
	}

	coords := l.Coords()
	if len(coords) == 0 {
		return nil, nil
	}

	cx, cy := l.Center()

	dist := make([]float64, len(coords))
	maxDist := 0.0

	for i, c := range coords {
		dist[i] = math.Hypot(float64(c.X)-cx, float64(c.Y)-cy)
		maxDist = max(maxDist, dist[i])
	}

	order := make([]int, len(coords))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	steps := make([][]layout.Coord, int(maxDist)+1)
	for _, i := range order {
		ring := int(dist[i])
		steps[ring] = append(steps[ring], coords[i])
	}

	if d == Inward {
		slices.Reverse(steps)
	}

	return steps, nil
}

func radialSteps(l *layout.Layout, d Direction) ([][]layout.Coord, error) {
	if d != Clockwise && d != Anticlockwise {
		return nil, fmt.Errorf("radial pattern: unknown direction %q", d)
	}

	coords := l.Coords()
	cx, cy := l.Center()

	angle := make(map[layout.Coord]float64, len(coords))
	for _, c := range coords {
		a := math.Atan2(float64(c.Y)-cy, float64(c.X)-cx)
		angle[c] = math.Mod(a+2*math.Pi, 2*math.Pi)
	}

	sort.SliceStable(coords, func(i, j int) bool {
		if d == Anticlockwise {
			return angle[coords[i]] > angle[coords[j]]
		}

		return angle[coords[i]] < angle[coords[j]]
	})

	steps := make([][]layout.Coord, len(coords))
	for i, c := range coords {
		steps[i] = []layout.Coord{c}
	}

	return steps, nil
}

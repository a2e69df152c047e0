// Package layout holds the static lookup tables that tie physical button
// labels and 2-D positions to LED indices.
package layout

import (
	"sort"
)

// Coord is an integer position on the control panel grid.
type Coord struct {
	X int
	Y int
}

// Rect is an inclusive bounding box over coordinates.
type Rect struct {
	Min Coord
	Max Coord
}

// Layout maps button labels to button numbers, button numbers to groups of
// LEDs, and coordinates to individual LEDs. It is immutable once built and
// safe for concurrent readers.
type Layout struct {
	buttons       map[string]int
	coords        map[Coord]int
	sorted        []Coord
	ledsPerButton int
}

// New builds a Layout. The maps are copied, so later changes by the caller
// are not observed. ledsPerButton below 1 is treated as 1.
func New(buttonMap map[string]int, coordMap map[Coord]int, ledsPerButton int) *Layout {
	if ledsPerButton < 1 {
		ledsPerButton = 1
	}

	l := &Layout{
		buttons:       make(map[string]int, len(buttonMap)),
		coords:        make(map[Coord]int, len(coordMap)),
		sorted:        make([]Coord, 0, len(coordMap)),
		ledsPerButton: ledsPerButton,
	}

	for label, n := range buttonMap {
		l.buttons[label] = n
	}

	for c, led := range coordMap {
		l.coords[c] = led
		l.sorted = append(l.sorted, c)
	}

	sort.Slice(l.sorted, func(i, j int) bool {
		if l.sorted[i].Y != l.sorted[j].Y {
			return l.sorted[i].Y < l.sorted[j].Y
		}

		return l.sorted[i].X < l.sorted[j].X
	})

	return l
}

// LEDsPerButton returns the group size used by LEDsForButton.
func (l *Layout) LEDsPerButton() int {
	return l.ledsPerButton
}

// Button returns the button number for a label.
func (l *Layout) Button(label string) (int, bool) {
	n, ok := l.buttons[label]

	return n, ok
}

// Labels returns every known button label, sorted.
func (l *Layout) Labels() []string {
	labels := make([]string, 0, len(l.buttons))
	for label := range l.buttons {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	return labels
}

// LEDsForButton returns the LED indices driven by button n.
func (l *Layout) LEDsForButton(n int) []int {
	leds := make([]int, l.ledsPerButton)
	for i := range leds {
		leds[i] = n*l.ledsPerButton + i
	}

	return leds
}

// LED returns the LED index mapped at c.
func (l *Layout) LED(c Coord) (int, bool) {
	led, ok := l.coords[c]

	return led, ok
}

// Coords returns all mapped coordinates ordered by row, then column.
func (l *Layout) Coords() []Coord {
	out := make([]Coord, len(l.sorted))
	copy(out, l.sorted)

	return out
}

// Len is the number of mapped coordinates.
func (l *Layout) Len() int {
	return len(l.sorted)
}

// Bounds returns the smallest rectangle containing every mapped coordinate.
// ok is false when the coordinate map is empty.
func (l *Layout) Bounds() (Rect, bool) {
	if len(l.sorted) == 0 {
		return Rect{}, false
	}

	r := Rect{Min: l.sorted[0], Max: l.sorted[0]}
	for _, c := range l.sorted[1:] {
		r.Min.X = min(r.Min.X, c.X)
		r.Min.Y = min(r.Min.Y, c.Y)
		r.Max.X = max(r.Max.X, c.X)
		r.Max.Y = max(r.Max.Y, c.Y)
	}

	return r, true
}

// Center returns the midpoint of Bounds.
func (l *Layout) Center() (x, y float64) {
	r, ok := l.Bounds()
	if !ok {
		return 0, 0
	}

	return float64(r.Min.X+r.Max.X) / 2, float64(r.Min.Y+r.Max.Y) / 2
}

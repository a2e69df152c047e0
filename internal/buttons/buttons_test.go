package buttons

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/testutils"
)

// gridLayout maps a 3x2 grid (x 0..2, y 0..1) to LEDs 0..5 and two buttons.
func gridLayout() *layout.Layout {
	coords := make(map[layout.Coord]int)

	for y := 0; y <= 1; y++ {
		for x := 0; x <= 2; x++ {
			coords[layout.Coord{X: x, Y: y}] = y*3 + x
		}
	}

	return layout.New(map[string]int{"P1:A": 0, "P1:B": 1}, coords, 4)
}

func testButtons(t *testing.T, w FrameWriter) *Buttons {
	t.Helper()

	opts := DefaultOptions()
	opts.NumLEDs = 8

	b, err := newButtons(opts, gridLayout(), w, nil)
	require.NoError(t, err)

	return b
}

func snapshotStatuses(t *testing.T, b *Buttons) []Status {
	t.Helper()

	out := make([]Status, b.NumLEDs())
	for i := range out {
		st, err := b.Status(i)
		require.NoError(t, err)
		out[i] = st
	}

	return out
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{NumLEDs: 0, RefreshRate: 60}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrBadOptions)

	_, err = New(Options{NumLEDs: 4, RefreshRate: 0}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrBadOptions)
}

func TestSetLEDMode(t *testing.T) {
	b := testButtons(t, nil)

	require.NoError(t, b.SetLEDMode(3, Blinking(red, blue, time.Second)))

	st, err := b.Status(3)
	require.NoError(t, err)
	assert.Equal(t, Blink, st.Mode)
	assert.Equal(t, red, st.To)
	assert.Equal(t, blue, st.From)
	assert.Equal(t, time.Second, st.Transition)

	before := snapshotStatuses(t, b)

	for _, led := range []int{-1, 8, 100} {
		err := b.SetLEDMode(led, Solid(red))
		assert.ErrorIs(t, err, ErrLEDOutOfRange)
	}

	assert.Equal(t, before, snapshotStatuses(t, b), "rejected calls must not change state")

	_, err = b.Status(8)
	assert.ErrorIs(t, err, ErrLEDOutOfRange)
}

func TestSetButtonMode(t *testing.T) {
	b := testButtons(t, nil)

	require.NoError(t, b.SetButtonMode(1, Solid(red)))

	for led := 0; led < 8; led++ {
		st, _ := b.Status(led)
		if led >= 4 {
			assert.Equal(t, red, st.To, "led %d", led)
		} else {
			assert.Equal(t, ledcolor.Off, st.To, "led %d", led)
		}
	}

	assert.ErrorIs(t, b.SetButtonMode(2, Solid(red)), ErrButtonOutOfRange)
	assert.ErrorIs(t, b.SetButtonMode(-1, Solid(red)), ErrButtonOutOfRange)
}

func TestSetButtonModeByLabel(t *testing.T) {
	b := testButtons(t, nil)

	require.NoError(t, b.SetButtonModeByLabel("P1:A", Fading(black, white, time.Second)))

	st, _ := b.Status(2)
	assert.Equal(t, Fade, st.Mode)

	before := snapshotStatuses(t, b)

	assert.NoError(t, b.SetButtonModeByLabel("P2:START", Solid(red)))
	assert.Equal(t, before, snapshotStatuses(t, b))
}

func TestSetLEDModeByCoord(t *testing.T) {
	b := testButtons(t, nil)

	require.NoError(t, b.SetLEDModeByCoord(layout.Coord{X: 2, Y: 1}, Solid(red)))

	st, _ := b.Status(5)
	assert.Equal(t, red, st.To)

	before := snapshotStatuses(t, b)

	assert.NoError(t, b.SetLEDModeByCoord(layout.Coord{X: 7, Y: 7}, Solid(blue)))
	assert.Equal(t, before, snapshotStatuses(t, b))
}

func TestSetAllLEDs(t *testing.T) {
	b := testButtons(t, nil)

	b.SetAllLEDs(Sweeping(black, white, time.Second))

	for _, st := range snapshotStatuses(t, b) {
		assert.Equal(t, FadeSweep, st.Mode)
		assert.Equal(t, white, st.To)
	}
}

func TestWriteToDisplay(t *testing.T) {
	w := testutils.NewRecordingWriter()
	b := testButtons(t, w)

	require.NoError(t, b.SetLEDMode(0, Solid(ledcolor.New(1, 2, 3, 4))))
	b.Tick()
	require.NoError(t, b.WriteToDisplay())

	require.Equal(t, 1, w.Count())
	frame := w.Last()
	require.Len(t, frame, 8*multiverse.BytesPerLED)
	assert.Equal(t, []byte{3, 2, 1, 4}, frame[:4])

	w.SetError(errors.New("port vanished"))
	assert.Error(t, b.WriteToDisplay(), "errors are reported to direct callers")
}

func TestFrameIsACopy(t *testing.T) {
	b := testButtons(t, nil)
	b.Tick()

	f := b.Frame()
	f[0] = 0xEE

	assert.NotEqual(t, byte(0xEE), b.Frame()[0])
}

type recorder struct {
	mu       sync.Mutex
	ticks    int
	patterns []string
}

func (r *recorder) RecordTick(string, time.Duration) {
	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()
}

func (r *recorder) RecordAttractPattern(_ string, pattern string) {
	r.mu.Lock()
	r.patterns = append(r.patterns, pattern)
	r.mu.Unlock()
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ticks
}

func TestRefreshLoopSendsFramesUntilStopped(t *testing.T) {
	w := testutils.NewRecordingWriter()
	rec := &recorder{}

	opts := DefaultOptions()
	opts.NumLEDs = 4
	opts.RefreshRate = 200
	opts.Metrics = rec

	b, err := New(opts, gridLayout(), w, nil)
	require.NoError(t, err)

	require.NoError(t, b.SetLEDMode(0, Solid(red)))

	testutils.WaitForCondition(t, func() bool { return w.Count() >= 5 }, 2*time.Second, "refresh loop never sent frames")

	b.Stop()
	b.Stop()

	sent := w.Count()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, sent, w.Count(), "no frames after Stop returns")
	assert.GreaterOrEqual(t, rec.tickCount(), 5)

	last := w.Last()
	assert.Equal(t, []byte{0, 0, 200, 31}, last[:4])
}

func TestRefreshLoopSurvivesWriteErrors(t *testing.T) {
	w := testutils.NewRecordingWriter()
	w.SetError(errors.New("device busy"))

	opts := DefaultOptions()
	opts.NumLEDs = 4
	opts.RefreshRate = 200

	b, err := New(opts, nil, w, nil)
	require.NoError(t, err)
	defer b.Stop()

	testutils.WaitForCondition(t, func() bool { return w.Attempts() >= 3 }, 2*time.Second, "loop stopped after a failed write")
}

func TestConcurrentModeChanges(t *testing.T) {
	w := testutils.NewRecordingWriter()

	opts := DefaultOptions()
	opts.NumLEDs = 8
	opts.RefreshRate = 500

	b, err := New(opts, gridLayout(), w, nil)
	require.NoError(t, err)
	defer b.Stop()

	testutils.RunConcurrently(t,
		func() {
			for i := 0; i < 200; i++ {
				_ = b.SetLEDMode(i%8, Blinking(red, blue, 100*time.Millisecond))
			}
		},
		func() {
			for i := 0; i < 200; i++ {
				_ = b.SetButtonModeByLabel("P1:B", Fading(black, white, 50*time.Millisecond))
			}
		},
		func() {
			for i := 0; i < 200; i++ {
				b.SetAllLEDs(Solid(white))
				_ = b.Frame()
			}
		},
	)
}

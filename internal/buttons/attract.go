package buttons

import (
	"context"
	"fmt"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
)

type attractTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// colorSetter is what a sweep drives. Buttons sets LEDs by coordinate; tests
// record the calls.
type colorSetter func(c layout.Coord, color ledcolor.Color)

// StartAttract starts cycling through program on a background goroutine.
// Callers should not set LED modes themselves until StopAttract returns.
func (b *Buttons) StartAttract(program []Pattern) error {
	if len(program) == 0 {
		return ErrEmptyProgram
	}

	if b.layout.Len() == 0 {
		return ErrNoCoordinates
	}

	plans := make([][][]layout.Coord, len(program))

	for i, p := range program {
		steps, err := Steps(b.layout, p)
		if err != nil {
			return fmt.Errorf("attract program step %d: %w", i, err)
		}

		plans[i] = steps
	}

	b.attractMu.Lock()
	defer b.attractMu.Unlock()

	if b.attract != nil {
		return ErrAttractRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &attractTask{cancel: cancel, done: make(chan struct{})}
	b.attract = task

	go func() {
		defer close(task.done)
		b.runAttract(ctx, program, plans)
	}()

	b.logger.Info("attract mode started", "patterns", len(program))

	return nil
}

// StopAttract cancels attract mode, waits for it to exit and turns every
// LED off. It clears the LEDs even when attract mode was not running.
func (b *Buttons) StopAttract() {
	b.attractMu.Lock()
	task := b.attract
	b.attract = nil

	if task != nil {
		task.cancel()
		<-task.done
		b.logger.Info("attract mode stopped")
	}
	b.attractMu.Unlock()

	b.SetAllLEDs(Solid(ledcolor.Off))
}

// AttractActive reports whether attract mode is running.
func (b *Buttons) AttractActive() bool {
	b.attractMu.Lock()
	defer b.attractMu.Unlock()

	return b.attract != nil
}

func (b *Buttons) runAttract(ctx context.Context, program []Pattern, plans [][][]layout.Coord) {
	set := func(c layout.Coord, color ledcolor.Color) {
		_ = b.SetLEDModeByCoord(c, Solid(color))
	}

	for i := 0; ; i = (i + 1) % len(program) {
		if b.metrics != nil {
			b.metrics.RecordAttractPattern(b.name, program[i].Name())
		}

		if !runSweep(ctx, plans[i], program[i].sweep(), set) {
			return
		}
	}
}

// runSweep lights every step with s.On, pauses, then turns the same steps
// off in the same order. It returns false as soon as ctx is cancelled.
func runSweep(ctx context.Context, steps [][]layout.Coord, s Sweep, set colorSetter) bool {
	for pass, color := range []ledcolor.Color{s.On, s.Off} {
		for _, step := range steps {
			for _, c := range step {
				set(c, color)
			}

			if !sleepCtx(ctx, s.Delay) {
				return false
			}
		}

		if pass == 0 && !sleepCtx(ctx, s.Pause) {
			return false
		}
	}

	return true
}

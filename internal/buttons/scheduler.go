package buttons

import (
	"context"
	"time"
)

func (b *Buttons) startRefresh() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)

	go b.refreshLoop(ctx)
}

// period is the time budget of one tick.
func (b *Buttons) period() time.Duration {
	return time.Duration(float64(time.Second) / b.engine.refreshRate)
}

// refreshLoop ticks and sends at the configured rate. A slow tick shortens
// the following sleep; missed ticks are never made up.
func (b *Buttons) refreshLoop(ctx context.Context) {
	defer b.wg.Done()

	period := b.period()

	for ctx.Err() == nil {
		start := time.Now()

		b.mu.Lock()
		b.engine.tick()
		frame := b.engine.snapshot()
		b.mu.Unlock()

		_ = b.send(frame)

		elapsed := time.Since(start)
		if b.metrics != nil {
			b.metrics.RecordTick(b.name, elapsed)
		}

		if !sleepCtx(ctx, period-elapsed) {
			return
		}
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the caller
// should keep going.
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

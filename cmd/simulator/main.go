package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/buttons"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/config"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/daemon"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/logging"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/marquee"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
)

const (
	demoColumns = 8
	demoRows    = 4
)

var (
	// These are set by the build system via -ldflags.
	version   = "dev"
	buildTime = "unknown"
)

type simOptions struct {
	duration time.Duration
	interval time.Duration
	gain     float64
	clear    bool
	pattern  string
	image    string
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		duration   = flag.Duration("duration", 30*time.Second, "How long to run simulation")
		interval   = flag.Duration("interval", 100*time.Millisecond, "Screen redraw interval")
		gain       = flag.Float64("gain", 8, "Multiplier applied to LED channel values for display")
		pattern    = flag.String("pattern", "", "Run a single pattern, e.g. radial:anticlockwise")
		image      = flag.String("image", "", "Image to preview on the marquee")
		noClear    = flag.Bool("no-clear", false, "Append frames instead of redrawing in place")
	)

	flag.Parse()

	fmt.Println("Pixel Multiverse Simulator", version)
	fmt.Println("==========================")

	cfg := config.DefaultConfig()

	if *configPath != "" {
		var err error

		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := simOptions{
		duration: *duration,
		interval: *interval,
		gain:     *gain,
		clear:    !*noClear,
		pattern:  *pattern,
		image:    *image,
	}

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	fmt.Println("\nSimulation completed!")
}

// simProgram returns the attract program to preview: a single pattern given
// as name[:direction], or the configured program.
func simProgram(cfg *config.Config, choice string) ([]buttons.Pattern, error) {
	if choice == "" {
		return daemon.AttractProgram(cfg.Buttons)
	}

	name, direction, _ := strings.Cut(choice, ":")
	if direction == "" {
		direction = map[string]string{
			buttons.PatternLinear:   string(buttons.LeftToRight),
			buttons.PatternCircular: string(buttons.Outward),
			buttons.PatternRadial:   string(buttons.Clockwise),
		}[name]
	}

	p, err := buttons.PatternFromConfig(name, buttons.PatternParams{Direction: direction})
	if err != nil {
		return nil, err
	}

	return []buttons.Pattern{p}, nil
}

// simLayout uses the configured coordinates, or a demo grid when none are
// mapped.
func simLayout(cfg *config.Config) *layout.Layout {
	l := cfg.Buttons.Layout()
	if l.Len() > 0 {
		return l
	}

	return demoLayout(demoColumns, demoRows, max(cfg.Buttons.LEDsPerButton, 1))
}

func run(ctx context.Context, cfg *config.Config, opts simOptions, out io.Writer) error {
	program, err := simProgram(cfg, opts.pattern)
	if err != nil {
		return err
	}

	l := simLayout(cfg)
	numLEDs := max(cfg.Buttons.NumLEDs, demoColumns*demoRows*max(cfg.Buttons.LEDsPerButton, 1))
	logger := logging.NewNopLogger()
	sink := &frameSink{}

	b, err := buttons.New(buttons.Options{
		Name:        "simulator",
		NumLEDs:     numLEDs,
		RefreshRate: cfg.Buttons.RefreshRate,
		Masks:       multiverse.Masks{Color: cfg.Buttons.ColorMask, Brightness: cfg.Buttons.BrightnessMask},
		Order:       ledcolor.OrderRGB,
	}, l, sink, logger)
	if err != nil {
		return err
	}
	defer b.Stop()

	if err := b.StartAttract(program); err != nil {
		return fmt.Errorf("failed to start attract mode: %w", err)
	}

	var (
		matrix *marquee.Matrix
		mSink  *frameSink
	)

	if opts.image != "" {
		display, err := marquee.DisplayByName(cfg.Marquee.Type)
		if err != nil {
			return err
		}

		mSink = &frameSink{}
		matrix = marquee.New(display, mSink, ledcolor.OrderRGB, logger)

		defer matrix.Stop()

		err = matrix.DisplayImage(opts.image, marquee.ImageOptions{
			Rescale:    cfg.Marquee.Rescale,
			Background: cfg.Marquee.Background,
			Brightness: cfg.Marquee.Brightness,
		})
		if err != nil && !errors.Is(err, marquee.ErrImageUnavailable) {
			return err
		}
	}

	interval := opts.interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.After(opts.duration)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		case <-ticker.C:
			frame, frames := sink.Snapshot()

			if opts.clear {
				fmt.Fprint(out, "\033[2J\033[H")
			}

			fmt.Fprintf(out, "%s | program: %d patterns | frames: %d\n\n", time.Now().Format("15:04:05"), len(program), frames)
			renderButtons(out, l, frame, opts.gain)

			if matrix != nil {
				mframe, _ := mSink.Snapshot()

				fmt.Fprintf(out, "\n%s\n", matrix.Display())
				renderMarquee(out, matrix.Display(), mframe)
			}
		}
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/config"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/daemon"
)

const (
	name = "pixel-multiverse-daemon"
)

var (
	// These are set by the build system via -ldflags.
	version   = "dev"     // Set via -X main.version=...
	buildTime = "unknown" // Set via -X main.buildTime=...
)

var (
	configPath   = flag.String("config", "", "Path to configuration file")
	showVersion  = flag.Bool("version", false, "Show version information")
	showHelp     = flag.Bool("help", false, "Show help information")
	logLevel     = flag.String("log-level", "", "Set log level (debug, info, warn, error)")
	buttonsPort  = flag.String("buttons-port", "", "Serial port for the button board, or \"auto\"")
	marqueePort  = flag.String("marquee-port", "", "Serial port for the marquee, or \"auto\"")
	marqueeImage = flag.String("image", "", "Image to show on the marquee at start")
	brightness   = flag.Int("brightness", -1, "Marquee brightness (0-255)")
)

func main() {
	flag.Parse()

	if *showHelp {
		showUsage(os.Stdout)
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("%s version %s\n", name, version)
		fmt.Printf("Build time: %s\n", buildTime)
		os.Exit(0)
	}

	cfg, path, err := loadConfiguration()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	applyCommandLineOverrides(cfg)

	if flag.NArg() < 1 {
		showUsage(os.Stdout)
		os.Exit(1)
	}

	command := flag.Arg(0)

	switch command {
	case "config":
		showConfiguration(os.Stdout, cfg, path)

		return
	case "init":
		target, err := writeConfiguration(cfg, *configPath)
		if err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}

		fmt.Printf("Configuration written to %s\n", target)

		return
	case "test":
		if err := testConnection(cfg); err != nil {
			log.Fatalf("Connection test failed: %v", err)
		}

		fmt.Println("Connection test successful!")

		return
	case "attract":
		cfg.Buttons.AttractOnStart = true
		command = "run"
	}

	service, err := daemon.NewService(cfg, path)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch command {
	case "run":
		if err := service.Run(); err != nil {
			log.Fatalf("Failed to run service: %v", err)
		}
	case "install":
		printStatus(service.Install())
	case "remove", "uninstall":
		printStatus(service.Remove())
	case "start":
		printStatus(service.StartService())
	case "stop":
		printStatus(service.StopService())
	case "status":
		printStatus(service.Status())
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		showUsage(os.Stdout)
		os.Exit(1)
	}
}

func printStatus(status string, err error) {
	if err != nil {
		log.Fatalf("Service command failed: %v", err)
	}

	fmt.Println(status)
}

// loadConfiguration returns the config and the file it came from. The path
// is empty when no file exists and defaults are used.
func loadConfiguration() (*config.Config, string, error) {
	if *configPath != "" {
		cfg, err := config.LoadConfig(*configPath)

		return cfg, *configPath, err
	}

	configFile, err := config.FindConfig()
	if err != nil {
		log.Printf("No configuration file found, using defaults")

		return config.DefaultConfig(), "", nil //nolint:nilerr
	}

	cfg, err := config.LoadConfig(configFile)

	return cfg, configFile, err
}

func applyCommandLineOverrides(cfg *config.Config) {
	if *buttonsPort != "" {
		cfg.Buttons.Connection = *buttonsPort
	}

	if *marqueePort != "" {
		cfg.Marquee.Connection = *marqueePort
		cfg.Marquee.Enabled = true
	}

	if *marqueeImage != "" {
		cfg.Marquee.DefaultImage = *marqueeImage
	}

	if *brightness >= 0 && *brightness <= 255 {
		cfg.Marquee.Brightness = uint8(*brightness)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Pixel Multiverse button and marquee LED daemon

USAGE:
    %s [OPTIONS] <COMMAND>

COMMANDS:
    run                 Run the daemon in foreground mode
    attract             Run in foreground with attract mode on
    install             Install the daemon as a system service
    remove, uninstall   Remove the daemon service
    start               Start the installed daemon service
    stop                Stop the running daemon service
    status              Show the daemon service status
    config              Show current configuration
    init                Write the current configuration to -config or the default path
    test                Send a blank frame to every enabled device

OPTIONS:
    -config string        Path to configuration file
    -buttons-port string  Serial port for the button board ("auto" to discover)
    -marquee-port string  Serial port for the marquee (enables it)
    -image string         Image to show on the marquee at start
    -brightness int       Marquee brightness (0-255)
    -log-level string     Set log level (debug, info, warn, error)
    -version              Show version information
    -help                 Show this help message

EXAMPLES:
    %s run                                   # Run in foreground
    %s -config /etc/pixel-multiverse.yaml run # Run with custom config
    %s -buttons-port auto attract            # Light show on the first USB port
    %s -marquee-port /dev/ttyACM1 -image logo.gif run
    %s install                               # Install as system service

CONFIGURATION:
    The daemon looks for configuration files in the following order:
    1. Path specified by -config flag
    2. $XDG_CONFIG_HOME/pixel-multiverse/config.yaml
       (or $HOME/.config/pixel-multiverse/config.yaml)
    3. /etc/pixel-multiverse/config.yaml
    4. /usr/local/etc/pixel-multiverse/config.yaml
    5. ./configs/config.yaml

    Send SIGHUP or edit the file to reload the attract program.

`, name, name, name, name, name, name, name)
}

func showConfiguration(w io.Writer, cfg *config.Config, path string) {
	source := path
	if source == "" {
		source = "(defaults)"
	}

	fmt.Fprintf(w, "Current Configuration (%s):\n", source)
	fmt.Fprintf(w, "  Buttons:\n")
	fmt.Fprintf(w, "    Enabled: %t\n", cfg.Buttons.Enabled)
	fmt.Fprintf(w, "    Connection: %s\n", cfg.Buttons.Connection)
	fmt.Fprintf(w, "    LEDs: %d (%d per button)\n", cfg.Buttons.NumLEDs, cfg.Buttons.LEDsPerButton)
	fmt.Fprintf(w, "    Refresh Rate: %.0f Hz\n", cfg.Buttons.RefreshRate)
	fmt.Fprintf(w, "    Color Order: %s\n", cfg.Buttons.ColorOrder)
	fmt.Fprintf(w, "    Masks: color=0x%02X brightness=0x%02X\n", cfg.Buttons.ColorMask, cfg.Buttons.BrightnessMask)
	fmt.Fprintf(w, "    Compress: %t\n", cfg.Buttons.Compress)
	fmt.Fprintf(w, "    Buttons Mapped: %d\n", len(cfg.Buttons.ButtonMap))
	fmt.Fprintf(w, "    Coordinates Mapped: %d\n", len(cfg.Buttons.LEDMap))
	fmt.Fprintf(w, "    Attract Program:\n")

	for _, step := range cfg.Buttons.AttractProgram {
		fmt.Fprintf(w, "      - %s %s\n", step.Pattern, step.Params.Direction)
	}

	fmt.Fprintf(w, "    Attract On Start: %t\n", cfg.Buttons.AttractOnStart)
	fmt.Fprintf(w, "  Marquee:\n")
	fmt.Fprintf(w, "    Enabled: %t\n", cfg.Marquee.Enabled)
	fmt.Fprintf(w, "    Type: %s\n", cfg.Marquee.Type)
	fmt.Fprintf(w, "    Connection: %s\n", cfg.Marquee.Connection)
	fmt.Fprintf(w, "    Brightness: %d\n", cfg.Marquee.Brightness)
	fmt.Fprintf(w, "    Rescale: %t\n", cfg.Marquee.Rescale)

	if cfg.Marquee.DefaultImage != "" {
		fmt.Fprintf(w, "    Default Image: %s\n", cfg.Marquee.DefaultImage)
	}

	fmt.Fprintf(w, "  Logging: level=%s format=%s output=%s\n", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
}

// writeConfiguration saves cfg to path, or to the first standard location
// when path is empty, and returns where it went.
func writeConfiguration(cfg *config.Config, path string) (string, error) {
	if path == "" {
		path = config.GetConfigPaths()[0]
	}

	if err := cfg.SaveConfig(path); err != nil {
		return "", err
	}

	return path, nil
}

// testConnection pushes one frame of the current (blank) state to every
// enabled device.
func testConnection(cfg *config.Config, opts ...daemon.Option) error {
	log.Printf("Testing connection to Pixel Multiverse devices...")

	probe := *cfg
	probe.Buttons.AttractOnStart = false
	probe.Marquee.DefaultImage = ""
	probe.Daemon.WatchConfig = false
	probe.Observability.HealthEnabled = false

	service, err := daemon.NewService(&probe, "", opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer func() { _ = service.Stop() }()

	if err := service.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	var errs []error

	if b := service.Buttons(); b != nil {
		if err := b.WriteToDisplay(); err != nil {
			errs = append(errs, fmt.Errorf("buttons: %w", err))
		}
	}

	if m := service.Marquee(); m != nil {
		if err := m.WriteToDisplay(); err != nil {
			errs = append(errs, fmt.Errorf("marquee: %w", err))
		}
	}

	if service.Buttons() == nil && service.Marquee() == nil {
		return errors.New("no devices enabled")
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Printf("Connection test completed successfully")

	return nil
}

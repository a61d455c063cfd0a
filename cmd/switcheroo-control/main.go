// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xzl01/switcheroo-control/lib/clock"
	"github.com/xzl01/switcheroo-control/lib/config"
	"github.com/xzl01/switcheroo-control/lib/control"
	"github.com/xzl01/switcheroo-control/lib/gpu"
	"github.com/xzl01/switcheroo-control/lib/journal"
	"github.com/xzl01/switcheroo-control/lib/logging"
	"github.com/xzl01/switcheroo-control/lib/metrics"
	"github.com/xzl01/switcheroo-control/lib/pciids"
	"github.com/xzl01/switcheroo-control/lib/uevent"
	"github.com/xzl01/switcheroo-control/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
		overrides   cliOverrides
	)

	flag.StringVar(&configPath, "config", "", "YAML config file (default: $SWITCHEROO_CONFIG if set)")
	flag.StringVar(&overrides.socket, "socket", config.DefaultSocket, "control socket path")
	flag.StringVar(&overrides.pciIDs, "pci-ids", "", "pci.ids database path (default: search system locations)")
	flag.StringVar(&overrides.journalPath, "journal", "", "state journal path (empty disables journaling)")
	flag.StringVar(&overrides.metricsListen, "metrics-listen", "", "Prometheus /metrics listen address (empty disables)")
	flag.StringVar(&overrides.deviceFixture, "device-fixture", "", "JSONC device fixture served instead of sysfs")
	flag.DurationVar(&overrides.resyncInterval, "resync-interval", 30*time.Second, "how often to re-scan sysfs (0 disables)")
	flag.StringVar(&overrides.logLevel, "log-level", "info", "minimum log severity: debug, info, warn, error")
	flag.StringVar(&overrides.logFormat, "log-format", "auto", "log output format: text, json, auto")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("switcheroo-control %s\n", version.Info())
		return nil
	}

	overrides.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { overrides.set[f.Name] = true })

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	overrides.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("switcheroo-control starting",
		"version", version.Info(),
		"socket", cfg.Socket,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PCI ID database. A missing or unreadable pci.ids file costs only
	// display-name quality, never the daemon.
	names, err := pciids.Open(cfg.PCIIDs)
	if err != nil {
		logger.Warn("pci id database unavailable, using builtin vendor names", "error", err)
		names = pciids.Builtin()
	}

	server := control.NewServer(cfg.Socket, logger)

	daemonMetrics := metrics.New()
	daemonMetrics.RegisterWatcherCount(server.Watchers)

	var journalWriter *journal.Writer
	if cfg.Journal != "" {
		journalWriter, err = journal.Create(cfg.Journal)
		if err != nil {
			logger.Warn("state journal disabled", "path", cfg.Journal, "error", err)
		} else {
			defer journalWriter.Close()
			logger.Info("state journal open", "path", cfg.Journal)
		}
	}

	wallClock := clock.Real()
	publisher := &statePublisher{
		server:  server,
		metrics: daemonMetrics,
		journal: journalWriter,
		clock:   wallClock,
		logger:  logger,
	}
	coordinator := gpu.NewCoordinator(names, publisher, logger)

	daemon := &Daemon{
		coordinator: coordinator,
		metrics:     daemonMetrics,
		clock:       wallClock,
		resyncEvery: cfg.ResyncEvery(),
		logger:      logger,
	}

	// Device source: real sysfs plus kernel uevents, or a fixture file
	// for development on machines without the hardware under test.
	// Losing the ability to see device changes is the one condition
	// the daemon cannot degrade through; everything downstream would
	// silently serve stale state.
	var events <-chan gpu.DeviceEvent
	var monitorErr chan error
	if cfg.Devices.Fixture != "" {
		devices, err := uevent.LoadFixture(cfg.Devices.Fixture)
		if err != nil {
			return fmt.Errorf("loading device fixture: %w", err)
		}
		logger.Info("serving fixture devices",
			"path", cfg.Devices.Fixture,
			"devices", len(devices),
		)
		daemon.rescan = func() ([]gpu.RawDevice, error) {
			return uevent.LoadFixture(cfg.Devices.Fixture)
		}
		coordinator.Seed(devices)
	} else {
		scanner := uevent.NewScanner()
		monitor, err := uevent.OpenMonitor(scanner, logger)
		if err != nil {
			return fmt.Errorf("subscribing to device events: %w", err)
		}
		defer monitor.Close()
		daemon.rescan = scanner.Scan

		devices, err := scanner.Scan()
		if err != nil {
			logger.Warn("initial device scan failed, starting empty", "error", err)
		}
		coordinator.Seed(devices)

		monitorEvents := make(chan gpu.DeviceEvent, 16)
		monitorErr = make(chan error, 1)
		go func() {
			monitorErr <- monitor.Run(ctx, monitorEvents)
			close(monitorEvents)
		}()
		events = monitorEvents
	}

	// SIGHUP forces an immediate rescan, on top of the periodic one.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	daemon.hup = hup

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := daemonMetrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- daemon.run(ctx, events) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		// Let the control server drain connections and remove its
		// socket file.
		<-serveErr
		return nil
	case err := <-serveErr:
		return fmt.Errorf("control socket: %w", err)
	case err := <-monitorErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("device event feed lost: %w", err)
		}
		return nil
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			// The loop ends when the event feed closes under it; the
			// monitor already holds the root cause at that point.
			if monitorErr != nil {
				if cause := <-monitorErr; cause != nil && !errors.Is(cause, context.Canceled) {
					return fmt.Errorf("device event feed lost: %w", cause)
				}
			}
			return err
		}
		return nil
	}
}

// loadConfig loads the file named by --config, falling back to
// SWITCHEROO_CONFIG, then to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// cliOverrides carries the flag values that back the config-file
// settings. Only flags the user actually set (per the set map) are
// applied, so precedence is flags over file over defaults.
type cliOverrides struct {
	set map[string]bool

	socket         string
	pciIDs         string
	journalPath    string
	metricsListen  string
	deviceFixture  string
	resyncInterval time.Duration
	logLevel       string
	logFormat      string
}

func (o cliOverrides) apply(cfg *config.Config) {
	if o.set["socket"] {
		cfg.Socket = o.socket
	}
	if o.set["pci-ids"] {
		cfg.PCIIDs = o.pciIDs
	}
	if o.set["journal"] {
		cfg.Journal = o.journalPath
	}
	if o.set["metrics-listen"] {
		cfg.Metrics.Listen = o.metricsListen
	}
	if o.set["device-fixture"] {
		cfg.Devices.Fixture = o.deviceFixture
	}
	if o.set["resync-interval"] {
		cfg.Devices.ResyncInterval = o.resyncInterval.String()
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if o.set["log-format"] {
		cfg.Log.Format = o.logFormat
	}
}

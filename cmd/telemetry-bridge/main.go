// Telemetry Bridge - MQTT device telemetry gateway
//
// The bridge holds one connection to an MQTT broker, chosen from an
// ordered list of broker profiles, keeps the device's latest state and a
// bounded history of its readings in memory, and serves both over HTTP
// alongside endpoints that publish commands back to the device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/iotbed/telemetry-bridge/internal/bridge"
	"github.com/iotbed/telemetry-bridge/internal/connection"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
	"github.com/iotbed/telemetry-bridge/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("telemetry-bridge", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "telemetry-bridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting telemetry bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", *configPath,
		"profile", cfg.Bridge.Profile,
		"brokers", len(cfg.Brokers),
	)

	b, err := bridge.New(ctx, cfg, bridge.Options{Logger: log, Version: version})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			log.Error("error during shutdown", "error", closeErr)
		}
	}()

	if err := b.Start(ctx); err != nil {
		return err
	}

	// The HTTP surface is up whether or not a broker answers, so the
	// first connect outcome is only logged.
	go func() {
		err := b.WaitConnected(ctx)
		switch {
		case err == nil:
			log.Info("broker connection established", "broker", b.Manager().Status().Broker)
		case errors.Is(err, connection.ErrAllBrokersFailed):
			log.Error("no broker profile accepted the connection; use POST /api/reconnect to retry", "error", err)
		case errors.Is(err, context.Canceled):
		default:
			log.Warn("initial connection did not complete", "error", err)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns BRIDGE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

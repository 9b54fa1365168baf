package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"adaptive-manip-core/utils"
)

func main() {
	var (
		iface     = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath   = flag.String("map", "config/can_map.csv", "Path to the bus definition CSV")
		cfgPath   = flag.String("config", "config/controller.defaults.json", "Controller gain/bound config, reloaded at each activation")
		cmdFrame  = flag.String("frame", "ACT_CMD", "Actuator command frame; its cycle_ms sets the control period")
		telemetry = flag.String("telemetry", "", "Optional CSV telemetry file for offline analysis")
		logLevel  = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("controller.log", utils.ParseLogLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open controller.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:     *iface,
		MapPath:       *mapPath,
		ConfigPath:    *cfgPath,
		CmdFrame:      *cmdFrame,
		TelemetryPath: *telemetry,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}

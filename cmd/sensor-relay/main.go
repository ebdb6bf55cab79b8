package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/relay"
)

func main() {
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	logFormat := flag.String("log-format", "console", "console or json")
	flag.Parse()

	level := logger.LevelFromEnv("warn")
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	}
	appLogger := logger.New(*logFormat, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayed, rejected, err := relay.New(appLogger).Run(ctx, os.Stdin, os.Stdout)
	if err != nil {
		appLogger.Error("SensorRelay", err, nil)
		os.Exit(1)
	}

	appLogger.Info("SensorRelay", "input exhausted", map[string]interface{}{
		"relayed":  relayed,
		"rejected": rejected,
	})
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"terrain-classifier/internal/decoder"
	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/matching"
	"terrain-classifier/internal/opencv/memory"
)

func main() {
	imagePath := flag.String("image", "", "query image file")
	refDir := flag.String("dir", "", "directory of reference images")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Parse()

	if *imagePath == "" || *refDir == "" {
		fmt.Fprintln(os.Stderr, "usage: reference-match -image query.jpg -dir references/")
		os.Exit(2)
	}

	level := logger.LevelFromEnv("info")
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	}
	appLogger := logger.NewConsoleLogger(level)

	if err := run(*imagePath, *refDir, appLogger); err != nil {
		appLogger.Error("ReferenceMatch", err, map[string]interface{}{
			"image": *imagePath,
			"dir":   *refDir,
		})
		os.Exit(1)
	}
}

func run(imagePath, refDir string, appLogger logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read query image: %w", err)
	}

	tracker := memory.NewTracker(appLogger)
	query, err := decoder.DecodeBytes(data, tracker)
	if err != nil {
		return err
	}
	defer query.Close()

	matches, err := matching.NewMatcher(appLogger, tracker).MatchDirectory(ctx, query, refDir)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(matches)
}

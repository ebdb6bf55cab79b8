package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"terrain-classifier/internal/config"
	"terrain-classifier/internal/logger"
	"terrain-classifier/internal/opencv/memory"
	"terrain-classifier/internal/services"
	"terrain-classifier/internal/shutdown"
	"terrain-classifier/internal/terrain"
)

const (
	AppName    = "terrain-classifier"
	AppVersion = "1.0.0"
)

// Application wires the classifier behind the stdin/stdout line service.
type Application struct {
	logger   logger.Logger
	service  *services.ClassificationService
	tracker  *memory.Tracker
	shutdown *shutdown.Manager
}

func main() {
	configPath := flag.String("config", "", "path to a YAML threshold file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config and LOG_LEVEL)")
	strategy := flag.String("strategy", "", "preprocessing strategy: simple or enhanced")
	diagnostics := flag.Bool("diagnostics", true, "include resolucion, tiempo_procesamiento and ajustes in results")
	logFile := flag.String("log-file", "", "write logs to this file instead of log.output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "diagnostics" {
			cfg.Output.Diagnostics = *diagnostics
		}
	})
	if *strategy != "" {
		cfg.Thresholds.Preprocess.Strategy = *strategy
		if err := cfg.Thresholds.Validate(); err != nil {
			log.Fatalf("Configuration failed: %v", err)
		}
	}

	level := logger.LevelFromEnv(cfg.Log.Level)
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	}

	if *logFile != "" {
		cfg.Log.Output = *logFile
	}
	logOut, closeLog, err := logger.OpenOutput(cfg.Log.Output)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	app := NewApplication(context.Background(), cfg, logger.NewWithWriter(logOut, cfg.Log.Format, level))
	if err := app.Run(os.Stdin, os.Stdout, os.Stderr); err != nil {
		app.logger.Error("Application", err, nil)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func NewApplication(ctx context.Context, cfg *config.Config, appLogger logger.Logger) *Application {
	tracker := memory.NewTracker(appLogger)
	classifier := terrain.NewClassifier(cfg.Thresholds, appLogger, tracker)

	app := &Application{
		logger:   appLogger,
		service:  services.NewClassificationService(classifier, appLogger, cfg.Output.Diagnostics),
		tracker:  tracker,
		shutdown: shutdown.NewManager(ctx, appLogger),
	}

	app.shutdown.Register("memory_report", shutdown.Func(app.reportMemory))

	appLogger.Debug("Application", "starting", map[string]interface{}{
		"version":     AppVersion,
		"strategy":    cfg.Thresholds.Preprocess.Strategy,
		"diagnostics": cfg.Output.Diagnostics,
		"go_version":  runtime.Version(),
	})

	return app
}

// Run serves until EOF or a termination signal. Lifecycle logs stay at debug so a logger
// sharing errOut leaves one JSON line per failed input there.
func (app *Application) Run(in io.Reader, out, errOut io.Writer) error {
	app.shutdown.Listen()
	defer app.shutdown.Shutdown()

	stats, err := app.service.Run(app.shutdown.Context(), in, out, errOut)
	if err != nil {
		return fmt.Errorf("classification loop: %w", err)
	}

	fields := app.service.TimingSummary()
	fields["lines"] = stats.Lines
	fields["succeeded"] = stats.Succeeded
	fields["failed"] = stats.Failed
	app.logger.Debug("Application", "finished", fields)
	return nil
}

func (app *Application) reportMemory() {
	stats := app.tracker.Stats()
	fields := map[string]interface{}{
		"allocations": stats.Allocations,
		"active_mats": stats.ActiveMats,
		"peak_bytes":  stats.PeakBytes,
	}
	if stats.ActiveMats > 0 {
		fields["leaked"] = app.tracker.Leaked()
		app.logger.Warning("Application", "Mats still allocated at exit", fields)
		return
	}
	app.logger.Debug("Application", "memory released", fields)
}

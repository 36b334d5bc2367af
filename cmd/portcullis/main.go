package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/portcullis-io/portcullis/internal/telemetry"
	"github.com/portcullis-io/portcullis/pkg/portcullis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("portcullis", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()
	telemetry.MustRegister()

	cfg, err := portcullis.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	rt, err := portcullis.New(cfg, portcullis.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}

	// Handlers registered here serve the operations declared in the contract
	// artifact. The standalone binary only registers operations it knows
	// about; embedders register their own before Start.
	registerBuiltins(rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("Failed to start runtime: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// registerBuiltins installs the operations the standalone binary serves.
func registerBuiltins(rt *portcullis.Runtime) {
	err := rt.Registry().RegisterFunc("health.check", func(ctx context.Context, inv *portcullis.Invocation) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	if err != nil {
		log.Fatalf("Failed to register handler: %v", err)
	}
}

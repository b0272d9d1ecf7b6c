package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storekit/internal/config"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Bootstrap logger, replaced once the config is known
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfig), logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := cfg.ApplyEnv(); err != nil {
		logger.Fatal("Invalid environment override", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}

	logger, err = buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d, err := newDaemon(cfg, logger, reg)
	if err != nil {
		logger.Fatal("Failed to set up storekitd", zap.Error(err))
	}

	logger.Info("Starting storekitd",
		zap.String("listen", cfg.Listen),
		zap.String("mode", cfg.Mode),
		zap.Bool("read_only", cfg.ReadOnly),
		zap.Strings("middleware", cfg.Middleware))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")
		cancel()
	}()

	if err := d.run(ctx); err != nil {
		logger.Fatal("storekitd failed", zap.Error(err))
	}
}

// buildLogger creates the production or development logger at the
// configured level
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

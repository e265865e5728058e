package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fedidetect "github.com/fedidetect/fedidetect"
	"github.com/fedidetect/fedidetect/config"
	"github.com/fedidetect/fedidetect/detecting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable names
const (
	EnvDatabaseURL = "FEDIDETECT_DATABASE_URL"
	EnvConfigYAML  = "FEDIDETECT_CONFIG_YAML"
)

func main() {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configDB := flag.String("database-url", "", "PostgreSQL connection string for configuration")
	configYAML := flag.String("config-yaml", "", "Path to YAML configuration file")
	target := flag.String("target", "", "One-shot mode: detect the platform behind this host or URL and exit")
	timeoutMs := flag.Int("timeout-ms", 5000, "Per-phase network timeout for one-shot mode")
	flag.Parse()

	// One-shot mode needs no configuration source.
	if *target != "" {
		detector := detecting.New(&http.Client{}, time.Duration(*timeoutMs)*time.Millisecond, logger)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		fmt.Println(detector.Detect(ctx, *target))
		return
	}

	if *configDB != "" && *configYAML != "" {
		logger.Fatal("Cannot specify both database-url and config-yaml")
	}

	dbURL := os.Getenv(EnvDatabaseURL)
	if *configDB != "" {
		dbURL = *configDB
	}
	yamlPath := os.Getenv(EnvConfigYAML)
	if *configYAML != "" {
		yamlPath = *configYAML
	}
	if yamlPath == "" && dbURL == "" {
		yamlPath = "config.yaml"
	}

	var cfg config.IConfig
	if dbURL != "" {
		logger.Info("Loading configuration from database")
		cfg, err = config.NewDatabaseConfig(dbURL, logger)
		if err != nil {
			logger.Fatal("Failed to create database config", zap.Error(err))
		}
	} else {
		logger.Info("Loading configuration from YAML file", zap.String("path", yamlPath))
		cfg, err = config.NewYamlConfig(yamlPath, logger)
		if err != nil {
			logger.Fatal("Failed to create YAML config", zap.Error(err))
		}
	}
	defer cfg.Close()

	// Update logger level based on configuration
	logLevel, err := cfg.LogLevel()
	if err != nil {
		logger.Warn("Failed to get log level from config, using default", zap.Error(err))
	} else if logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			logger.Warn("Invalid log level in config, using default", zap.String("level", logLevel), zap.Error(err))
		} else {
			loggerConfig.Level = zap.NewAtomicLevelAt(level)
			newLogger, err := loggerConfig.Build()
			if err != nil {
				logger.Warn("Failed to create logger with new level, keeping default", zap.Error(err))
			} else {
				logger.Info("Updating log level", zap.String("level", logLevel))
				logger = newLogger
			}
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received termination signal")
		cancel()
	}()

	node, err := fedidetect.Start(ctx, logger, cfg, "")
	if err != nil {
		logger.Fatal("Node failed to start", zap.Error(err))
	}

	<-ctx.Done()

	shutdownTimeout := 1 * time.Minute
	logger.Info("Waiting for node to shut down", zap.Duration("timeout", shutdownTimeout))
	if node.WaitForShutdown(shutdownTimeout) {
		logger.Info("Detection service stopped gracefully")
	} else {
		logger.Warn("Detection service shutdown timed out")
	}
}

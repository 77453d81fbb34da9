package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"farecast/config"
	fhttp "farecast/http"
	"farecast/logging"
	"farecast/ml"
)

func main() {
	// 1. Load config
	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	// 2. Logger
	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the log level is applied on reload; everything else needs a restart.
	err = config.Watch(ctx, configPath, logger, func(next *config.Config) {
		l, err := logging.ParseLevel(next.Log.Level)
		if err != nil {
			return
		}
		if l != level.Level() {
			level.SetLevel(l)
			logger.Info("log level changed", zap.Stringer("level", l))
		}
	})
	if err != nil {
		logger.Warn("config watcher not started", zap.String("path", configPath), zap.Error(err))
	}

	// 3. Model. A missing artifact is reported by /health and /api/predict/.
	modelPath := ml.ResolveModelPath(cfg.ML.ModelPath)
	var model ml.Predictor
	loaded, err := ml.LoadModel(cfg.ML.ModelType, modelPath)
	switch {
	case err == nil:
		model = loaded
		logger.Info("model loaded", zap.String("model_path", modelPath), zap.String("model_type", cfg.ML.ModelType))
	case errors.Is(err, ml.ErrModelNotFound):
		logger.Warn("model not found, predictions unavailable", zap.String("model_path", modelPath))
	default:
		logger.Error("model failed to load, predictions unavailable", zap.String("model_path", modelPath), zap.Error(err))
	}

	api := fhttp.NewAPI(model, fhttp.APIConfig{
		ModelPath:    modelPath,
		Format:       fhttp.PredictionFormat(cfg.HTTP.PredictionFormat),
		MaxBatch:     cfg.HTTP.MaxBatch,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, nil, logger)

	// 4. Start HTTP server
	server := fhttp.NewServer(fhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, api, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vericloud/vericloud-fusion/internal/api"
	"github.com/vericloud/vericloud-fusion/internal/cache"
	"github.com/vericloud/vericloud-fusion/internal/config"
	"github.com/vericloud/vericloud-fusion/internal/engine"
	"github.com/vericloud/vericloud-fusion/internal/fusion"
	"github.com/vericloud/vericloud-fusion/internal/metrics"
	"github.com/vericloud/vericloud-fusion/internal/modality"
	"github.com/vericloud/vericloud-fusion/internal/models"
	"github.com/vericloud/vericloud-fusion/internal/services"
	"github.com/vericloud/vericloud-fusion/internal/utils"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "Path to configuration file (.yaml or .toml)")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", slog.String("path", envFile), slog.Any("error", err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting vericloud-fusion",
		slog.String("http", cfg.Server.HTTPAddress),
		slog.String("grpc", cfg.Server.GRPCAddress),
		slog.String("policy", cfg.Fusion.Policy),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheProvider := newCache(ctx, cfg.Cache, logger)
	defer cacheProvider.Close()

	calculator, err := fusion.NewCalculator(fusion.Options{
		Weights: fusion.WeightTable{
			Full:        fusion.Weights(cfg.Fusion.Weights),
			WithoutFace: fusion.Weights(cfg.Fusion.WeightsNoFace),
		},
		Threshold:      cfg.Fusion.Threshold,
		HighConfidence: &cfg.Fusion.HighConfidence,
	})
	if err != nil {
		logger.Error("invalid fusion settings", slog.Any("error", err))
		os.Exit(1)
	}

	ttl := cfg.Cache.PredictionTTL
	predictors := []modality.Predictor{
		modality.WithCache(modality.NewTextClient(cfg.Modalities.Text.URL, cfg.Modalities.Text.Timeout), cacheProvider, ttl, logger),
		modality.WithCache(modality.NewFileClient(models.ModalityVoice, cfg.Modalities.Voice.URL, cfg.Modalities.Voice.Timeout), cacheProvider, ttl, logger),
		modality.WithCache(modality.NewFileClient(models.ModalityFace, cfg.Modalities.Face.URL, cfg.Modalities.Face.Timeout), cacheProvider, ttl, logger),
	}

	eng, err := engine.New(engine.Options{
		Logger:     logger,
		Calculator: calculator,
		Policy:     engine.Policy(cfg.Fusion.Policy),
		Predictors: predictors,
		Timeouts: map[models.Modality]time.Duration{
			models.ModalityText:  cfg.Modalities.Text.Timeout,
			models.ModalityVoice: cfg.Modalities.Voice.Timeout,
			models.ModalityFace:  cfg.Modalities.Face.Timeout,
		},
		Observer: metrics.ObserveModality,
	})
	if err != nil {
		logger.Error("failed to build fusion engine", slog.Any("error", err))
		os.Exit(1)
	}

	fusionService := services.NewFusionService(logger, eng, services.Upstreams{
		Text:  cfg.Modalities.Text.URL,
		Voice: cfg.Modalities.Voice.URL,
		Face:  cfg.Modalities.Face.URL,
	})

	grpcServer, err := api.NewGRPCServer(cfg.Server, fusionService.GRPC())
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	httpServer := api.NewHTTPServer(cfg.Server, api.NewRouter(fusionService, api.RouterOptions{
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}))

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
		if serveErr := grpcServer.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", slog.String("address", cfg.Server.HTTPAddress))
		if serveErr := httpServer.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("vericloud-fusion stopped", slog.Duration("fusion_p95", fusionService.LatencyP95()))
}

// newCache picks the prediction cache backend. A Valkey outage at startup
// degrades to no caching rather than failing the service.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Backend == "memory" {
		logger.Info("prediction cache enabled", slog.String("backend", "memory"), slog.Duration("ttl", cfg.PredictionTTL))
		return cache.NewMemoryProvider()
	}

	provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    "vericloud-fusion:",
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable, continuing without cache", slog.Any("error", err))
		return cache.NoopProvider{}
	}
	logger.Info("prediction cache enabled", slog.String("backend", "valkey"), slog.String("addr", cfg.Addr))
	return provider
}

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"cooksmart/internal/app"
	"cooksmart/internal/cache"
	"cooksmart/internal/cleanup"
	"cooksmart/internal/config"
	"cooksmart/internal/resilience"
	"cooksmart/internal/server"
	"cooksmart/internal/session"
	"cooksmart/internal/supa"
	"cooksmart/internal/util"
	"cooksmart/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	requestTimeout, err := config.ParseDurationOr(cfg.RequestTimeout, 5*time.Second)
	if err != nil {
		log.Fatalf("invalid requestTimeout: %v", err)
	}
	retryBase, err := config.ParseDurationOr(cfg.RetryBaseDelay, 500*time.Millisecond)
	if err != nil {
		log.Fatalf("invalid retryBaseDelay: %v", err)
	}
	retryMax, err := config.ParseDurationOr(cfg.RetryMaxDelay, 5*time.Second)
	if err != nil {
		log.Fatalf("invalid retryMaxDelay: %v", err)
	}
	revalidate, err := config.ParseDurationOr(cfg.SessionRevalidateInterval, 10*time.Minute)
	if err != nil {
		log.Fatalf("invalid sessionRevalidateInterval: %v", err)
	}
	probeTimeout, err := config.ParseDurationOr(cfg.SessionProbeTimeout, 2*time.Second)
	if err != nil {
		log.Fatalf("invalid sessionProbeTimeout: %v", err)
	}
	cacheTTL, err := config.ParseDurationOr(cfg.ListingCacheTTL, 2*time.Minute)
	if err != nil {
		log.Fatalf("invalid listingCacheTTL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	orphans, err := cleanup.NewQueue(rdb, cleanup.Config{})
	if err != nil {
		log.Fatalf("failed to init cleanup queue: %v", err)
	}

	appCore := app.New(app.Config{
		Client: supa.New(supa.Config{
			BaseURL: cfg.PlatformURL,
			APIKey:  cfg.PlatformAnonKey,
			Timeout: requestTimeout,
		}),
		Resilience: resilience.Config{
			Timeout:    requestTimeout,
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  retryBase,
			MaxDelay:   retryMax,
		},
		Cache:   cache.New(rdb, "cooksmart:listings", cacheTTL),
		Orphans: orphans,
		Logger:  logger,
	})
	orphans.Start(ctx, 1, appCore.RemoveRecipeRow)

	verifier := session.NewVerifier(appCore)
	monitor := session.NewMonitor(session.MonitorConfig{
		Interval:     revalidate,
		ProbeTimeout: probeTimeout,
		Validate:     verifier.Verify,
		Probe:        appCore.Probe,
		Reinit:       appCore.ReinitClient,
		Logger:       logger,
	})
	go monitor.Run(ctx)

	store, err := buildObjectStore(cfg, appCore)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trustedProxyCidrs: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Verifier:                verifier,
		Monitor:                 monitor,
		Store:                   store,
		Redis:                   rdb,
		AuthRateLimitPerMinute:  cfg.AuthRateLimitPerMinute,
		WriteRateLimitPerMinute: cfg.WriteRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		AllowedExtensions:       cfg.AllowedExtensions,
		TrustedProxies:          trusted,
		CORSAllowedOrigins:      cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildObjectStore(cfg config.FileConfig, appCore *app.App) (storage.ObjectStore, error) {
	bucket := cfg.RecipeImageBucket
	if bucket == "" {
		bucket = "recipe-images"
	}
	if cfg.StorageDriver == "s3" {
		return storage.NewMinioStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, bucket, cfg.S3PublicBase, cfg.S3UseSSL)
	}
	return appCore.Bucket(bucket), nil
}

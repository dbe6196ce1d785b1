package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hsportal/portal/internal/config"
	"github.com/hsportal/portal/internal/infra"
	"github.com/hsportal/portal/internal/logging"
	"github.com/hsportal/portal/internal/metrics"
	"github.com/hsportal/portal/internal/routes"
	"github.com/hsportal/portal/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := infra.Migrate(ctx, db); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, using in-memory session store")
	}

	var objects *s3.Client
	if cfg.Storage.Bucket != "" {
		objects, err = infra.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			logger.Error("configure storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("STORAGE_BUCKET not set, uploads are kept in memory")
	}

	srv, err := server.New(routes.Deps{
		Cfg:     cfg,
		DB:      db,
		Cache:   cache,
		S3:      objects,
		Logger:  logger,
		Metrics: metrics.New(),
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}
	srv.Start()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/config"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/handler"
	"github.com/pagesmith/internal/livefeed"
	"github.com/pagesmith/internal/logging"
	"github.com/pagesmith/internal/router"
	"github.com/pagesmith/internal/service"
	"github.com/pagesmith/internal/storage"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabaseDriver, cfg.DatabaseDSN); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	if _, err := db.EnsureUser(db.DB, cfg.HomeOwnerUserName, cfg.HomeOwnerPassword); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed home owner")
	}

	feed, err := newFeed(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start live feed")
	}
	defer feed.Close()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open image store")
	}

	api := handler.NewAPI(handler.Deps{
		DB:    db.DB,
		Feed:  feed,
		Blobs: blobs,
		Home: service.HomeSite{
			Enabled:       cfg.HomeBootstrap,
			Slug:          cfg.HomeSiteSlug,
			OwnerUsername: cfg.HomeOwnerUserName,
			OwnerPassword: cfg.HomeOwnerPassword,
		},
		CNAMETarget:    cfg.CNAMETarget,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	// 设置并运行 Gin 服务器
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router.SetupRouter(api, cfg.SessionSecret, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("failed to run server")
		feed.Close()
		os.Exit(1)
	}
}

// serve runs srv until ctx is done and then shuts it down. A listener failure
// is returned to the caller instead of exiting from the serving goroutine.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

func newFeed(cfg config.AppConfig, logger zerolog.Logger) (livefeed.Broker, error) {
	if cfg.RedisURL == "" {
		return livefeed.NewHub(), nil
	}
	return livefeed.NewRedisBroker(cfg.RedisURL, logger)
}

func newBlobStore(cfg config.AppConfig) (storage.BlobStore, error) {
	if cfg.ImageStore == "minio" {
		return storage.NewMinioStore(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return storage.NewDiskStore(cfg.UploadDir)
}

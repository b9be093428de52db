package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/internal/api"
	"pos-service/internal/api/handlers"
	"pos-service/internal/auth"
	"pos-service/internal/cache"
	"pos-service/internal/database"
	"pos-service/internal/notify"
	"pos-service/internal/repository"
	"pos-service/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := database.LoadConfig()
	if err != nil {
		return err
	}

	pool, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("connected to postgres", "host", cfg.Host, "db", cfg.DBName)

	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	var publisher notify.Publisher = notify.NopPublisher{}
	productRepo := repository.NewProductRepository(pool)
	var cachedProducts *cache.CachedProductRepository

	redisClient, err := cache.ConnectRedis(cfg)
	if err != nil {
		// the service degrades to uncached reads and no event delivery
		slog.Warn("redis unavailable, running without cache and notifications", "err", err)
	} else {
		defer redisClient.Close()
		cachedProducts = cache.NewCachedProductRepository(productRepo, redisClient)
		productRepo = cachedProducts
		publisher = notify.NewRedisPublisher(redisClient, cfg.EventPrefix)
		slog.Info("connected to redis", "addr", cfg.RedisURL)
	}

	orderRepo := repository.NewOrderRepository(pool)
	visitorRepo := repository.NewVisitorRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	files := storage.New(cfg.UploadDir, cfg.MaxUploadSize)

	var invalidator handlers.ProductInvalidator
	if cachedProducts != nil {
		invalidator = cachedProducts
	}

	router := api.NewRouter(api.RouterConfig{
		Orders:    handlers.NewOrderHandler(orderRepo, publisher, files, invalidator),
		Products:  handlers.NewProductHandler(productRepo, files),
		Visitors:  handlers.NewVisitorHandler(visitorRepo, publisher, files),
		Auth:      handlers.NewAuthHandler(adminRepo, tokens),
		Tokens:    tokens,
		Admins:    adminRepo,
		UploadDir: cfg.UploadDir,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

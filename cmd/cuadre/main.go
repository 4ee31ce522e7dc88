package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"cuadre/internal/backend"
	"cuadre/internal/cache"
	"cuadre/internal/cli"
	"cuadre/internal/config"
	apphttp "cuadre/internal/http"
	"cuadre/internal/lock"
	applog "cuadre/internal/log"
	"cuadre/internal/services"
	"cuadre/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sessionCleanup := cache.NewManager()
	var (
		store       session.Store
		saveLocker  services.KeyLocker
		sessLocker  session.Locker
		redisClient *redis.Client
	)
	switch cfg.SessionBackend {
	case config.SessionRedis:
		redisClient, err = cli.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		redisLock := lock.NewRedis(redisClient, 30*time.Second)
		store = session.NewRedisStore(redisClient, cfg.SessionTTL)
		saveLocker, sessLocker = redisLock, redisLock
		logger.Info("Using redis sessions", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	default:
		memStore := session.NewMemoryStore(10000, cfg.SessionTTL)
		sessionCleanup.Register(memStore.Cleaner())
		sessionCleanup.StartCleanup(5 * time.Minute)
		localLock := lock.NewLocal()
		store = memStore
		saveLocker, sessLocker = localLock, localLock
		logger.Info("Using in-memory sessions", "ttl", cfg.SessionTTL.String())
	}

	sessions, err := session.NewManager(store, session.ManagerConfig{
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Locker: sessLocker,
	})
	if err != nil {
		logger.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}

	service := services.NewReconciliationService(result.Backend, services.ReconciliationConfig{
		Locker:         saveLocker,
		Location:       cfg.Location(),
		GatewayTimeout: cfg.GoogleRequestTimeout,
	})

	srv, err := apphttp.NewServer(apphttp.ServerConfig{
		Addr:     ":" + cfg.Port,
		Service:  service,
		Sessions: sessions,
		Backend:  result,
		Logger:   logger,
		Location: cfg.Location(),
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		sessionCleanup.Stop()
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", "error", err)
			}
		}
	})

	logger.Info("Starting cuadre server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"sessions", cfg.SessionBackend,
		"timezone", cfg.Location().String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

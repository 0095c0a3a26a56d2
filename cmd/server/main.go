// Command server runs the call center backend HTTP API.
//
// @title                      Call Center Backend API
// @version                    1.0
// @description                Call lifecycle tracking for the medical call center: provider webhooks, dashboard projections and operator actions.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/callcenter-backend/docs"
	"github.com/tbourn/callcenter-backend/internal/auth"
	"github.com/tbourn/callcenter-backend/internal/cache"
	"github.com/tbourn/callcenter-backend/internal/config"
	httpapi "github.com/tbourn/callcenter-backend/internal/http"
	"github.com/tbourn/callcenter-backend/internal/observability"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/sysutil"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, "server")
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version := sysutil.Version()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.ServiceInfo{
		Name:        cfg.OTEL.ServiceName,
		Version:     version,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.Open(repo.Options{
		Driver: cfg.DB.Driver,
		DSN:    cfg.DB.DSN,
		Path:   cfg.DB.Path,
		Pool: repo.PoolConfig{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		},
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	snaps := openSnapshots(ctx, cfg.Cache)

	deps := httpapi.Deps{DB: db, Cache: snaps}
	if cfg.Auth.JWTSecret != "" {
		m, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("jwt manager")
		}
		deps.Tokens = m
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.AppEnv).
			Str("version", version).
			Str("db", cfg.DB.Driver).
			Bool("cache", cfg.Cache.RedisAddr != "").
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// openSnapshots connects to Redis when configured. The API keeps working
// without it, so connection failures only disable caching.
func openSnapshots(ctx context.Context, cfg config.CacheConfig) cache.Snapshots {
	if cfg.RedisAddr == "" {
		return cache.Nop{}
	}
	rdb, err := cache.OpenRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, dashboard cache disabled")
		return cache.Nop{}
	}
	return cache.NewRedisSnapshots(rdb, "", cfg.TTL)
}

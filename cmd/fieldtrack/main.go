package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/api"
	"github.com/braianpx/fieldtrack/internal/config"
	"github.com/braianpx/fieldtrack/internal/logger"
	"github.com/braianpx/fieldtrack/internal/store"
	"github.com/braianpx/fieldtrack/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "fieldtrack")
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("could not connect to Postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("could not prepare schema", zap.Error(err))
		}
		st = pg
		log.Info("connected to Postgres")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("could not connect to Redis", zap.Error(err))
		}
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	hub := ws.New(st, log, rdb)
	go hub.Run(ctx)

	loc, err := time.LoadLocation(cfg.StatsTimezone)
	if err != nil {
		log.Fatal("invalid stats timezone", zap.Error(err))
	}
	handlers := api.New(st, hub, log, cfg.JWTSecret, cfg.JWTTTL, loc)
	router := handlers.Routes()
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("server started", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}

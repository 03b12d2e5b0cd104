package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/attention/internal/app"
	"github.com/oggyb/attention/internal/cache"
	"github.com/oggyb/attention/internal/config"
	"github.com/oggyb/attention/internal/db"
	"github.com/oggyb/attention/internal/logger"
	"github.com/oggyb/attention/internal/push"
	"github.com/oggyb/attention/internal/server"
	"github.com/oggyb/attention/internal/service/attention"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	// Device messaging is connected lazily on first delivery
	var messenger *push.Messenger
	switch cfg.Push.Driver {
	case "log":
		messenger = push.Ready(push.NewLogSender(log))
	default:
		messenger = push.NewMessenger(push.RedisFactory(redisCache.Client, cfg.Push.ChannelPrefix))
	}

	// Inject logger into app context
	appCtx := app.New(database, redisCache, messenger, log)
	appCtx.FanoutLimit = cfg.Push.FanoutLimit

	registrars := []server.Registrar{
		attention.NewRegistrar(appCtx),
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "off" {
		metrics := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metrics.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
		log.Info("starting gRPC server", "addr", addr)
		return server.StartGRPCServer(gctx, cfg, log, registrars...)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
	}
}

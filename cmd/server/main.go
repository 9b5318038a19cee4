package main

import (
	"context"

	"github.com/aungmyo/thazin/internal/app"
	"github.com/aungmyo/thazin/internal/cache"
	"github.com/aungmyo/thazin/internal/config"
	"github.com/aungmyo/thazin/internal/db"
	"github.com/aungmyo/thazin/internal/logger"
	"github.com/aungmyo/thazin/internal/notify"
	"github.com/aungmyo/thazin/internal/server"
	"github.com/aungmyo/thazin/internal/service/discovery"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	appCtx := app.New(database, redisCache, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	// The log sink stands in until the bot transport attaches a real one.
	svc := discovery.NewService(appCtx, notify.NewLogNotifier(log), discovery.Config{
		RefillLimit:      cfg.Discovery.RefillLimit,
		BoostViewerLimit: cfg.Discovery.BoostViewerLimit,
		FreeLikesPerDay:  cfg.Discovery.FreeLikesPerDay,
		ThrottleInterval: cfg.Discovery.ThrottleInterval,
	})

	router := server.NewRouter(svc, log)

	addr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", "addr", addr)

	if err := server.StartHTTPServer(cfg, router); err != nil {
		log.Error("failed to start HTTP server", "err", err)
	}
}

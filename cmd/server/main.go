package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/maquiflow/fleet-portal/internal/cache"
	"github.com/maquiflow/fleet-portal/internal/config"
	"github.com/maquiflow/fleet-portal/internal/database"
	"github.com/maquiflow/fleet-portal/internal/handler"
	"github.com/maquiflow/fleet-portal/internal/janitor"
	"github.com/maquiflow/fleet-portal/internal/logger"
	"github.com/maquiflow/fleet-portal/internal/queue"
	"github.com/maquiflow/fleet-portal/internal/repository"
	"github.com/maquiflow/fleet-portal/internal/router"
	"github.com/maquiflow/fleet-portal/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment

	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, cache and rate limiting disabled")
	}
	responseCache := cache.New(config.LoadCacheConfig(), rdb)

	var store *storage.Client
	s3cfg := config.LoadS3Config()
	if s3cfg.Bucket != "" {
		store, err = storage.New(context.Background(), s3cfg)
		if err != nil {
			log.Fatal("storage init failed", zap.Error(err))
		}
	} else {
		log.Warn("blob storage not configured, uploads disabled")
	}

	identities := repository.NewIdentityRepo(db)
	modules := repository.NewTenantModuleRepo(db)
	machineTypes := repository.NewMachineTypeRepo(db)
	machines := repository.NewMachineRepo(db)

	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Error("audit consumer stopped", zap.Error(err))
		}
	}()

	j := janitor.New(identities, machineTypes, machines, cfg.RetentionDays, log)
	j.Start()
	defer j.Stop()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		Auth:         handler.NewAuthHandler(cfg, identities),
		Tenants:      handler.NewTenantHandler(identities, modules),
		Users:        handler.NewUserHandler(cfg, identities),
		MachineTypes: handler.NewMachineTypeHandler(machineTypes, responseCache),
		Machines:     handler.NewMachineHandler(machines, responseCache),
		Upload:       handler.NewUploadHandler(store),
		Health:       handler.NewHealthHandler(db),
		Cache:        responseCache,
		RateLimit:    config.LoadRateLimitConfig(),
		Redis:        rdb,
	})

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/gongdel/promptview/config"
	appcache "github.com/gongdel/promptview/internal/app/cache"
	appmodel "github.com/gongdel/promptview/internal/app/model"
	apprepository "github.com/gongdel/promptview/internal/app/repository"
	appserver "github.com/gongdel/promptview/internal/app/server"
	appservice "github.com/gongdel/promptview/internal/app/service"
	"github.com/gongdel/promptview/internal/infra/logger"
	infraNATS "github.com/gongdel/promptview/internal/infra/nats"
	infraPostgres "github.com/gongdel/promptview/internal/infra/postgres"
	infraPrometheus "github.com/gongdel/promptview/internal/infra/prometheus"
	infraRedis "github.com/gongdel/promptview/internal/infra/redis"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Duration("view_dedup_window", cfg.View.DuplicationCheckTTLDuration()),
		zap.Duration("view_count_cache_ttl", cfg.View.CountCacheTTLDuration()),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Prompt{},
		&appmodel.ViewRecord{},
		&appmodel.ViewCount{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	// Repositories and the view cache.
	promptRepo := apprepository.NewPromptRepository(gormDB)
	viewCountRepo := apprepository.NewViewCountRepository(gormDB)
	viewLogRepo := apprepository.NewViewLogRepository(gormDB)

	keys := appcache.NewKeyStrategy(
		cfg.View.DuplicationCheckTTLDuration(),
		cfg.View.CountCacheTTLDuration(),
	)
	viewCache := appcache.NewViewCache(redisClient, keys, log)

	// Async view persistence pipeline.
	publisher := appservice.NewViewPublisher(js)
	consumer := appservice.NewViewConsumer(js, log, viewLogRepo, viewCountRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start view event consumer", zap.Error(err))
	}

	// Prompt existence pre-filter.
	promptFilter := appservice.NewPromptFilter()
	if err := promptFilter.Warm(ctx, promptRepo); err != nil {
		log.Warn("Failed to warm prompt filter, passing all lookups through", zap.Error(err))
		promptFilter = nil
	}

	promptService := appservice.NewPromptService(promptRepo, promptFilter)
	viewService := appservice.NewViewService(viewCache, viewCountRepo, viewLogRepo, publisher, log)

	// Periodic cache-to-storage reconciliation.
	syncer := appservice.NewViewSyncer(log, viewCache, viewCountRepo, cfg.View.SyncIntervalDuration())
	syncer.Start()
	defer syncer.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:        log,
		Postgres:      pool,
		Redis:         redisClient,
		NATS:          natsConn,
		JetStream:     js,
		PromptService: promptService,
		ViewService:   viewService,
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}

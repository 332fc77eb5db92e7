package main

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/toky-team/toky-back-sub001/api"
	"github.com/toky-team/toky-back-sub001/config"
	"github.com/toky-team/toky-back-sub001/counters"
	"github.com/toky-team/toky-back-sub001/countersync"
	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
	"github.com/toky-team/toky-back-sub001/lock"
	"github.com/toky-team/toky-back-sub001/prediction"
	"github.com/toky-team/toky-back-sub001/pubsub"
	"github.com/toky-team/toky-back-sub001/reward"
	"github.com/toky-team/toky-back-sub001/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	bus := eventbus.New(logger)

	tickets := storage.NewRankingCache(storage.NewTicketStore(db), rc, cfg.RankingCacheTTL, logger)
	policy, err := reward.DefaultPolicy()
	if err != nil {
		log.Fatalf("reward policy: %v", err)
	}
	rewards := reward.NewDispatcher(policy, tickets, reward.NewRedisDeduper(rc, cfg.DeduperTTL), logger)
	rewards.Register(bus)
	defer rewards.Close()

	broker := pubsub.NewRedisBroker(rc, cfg.BrokerOptions(), logger)
	defer broker.Close()

	locker := lock.NewRedisLocker(rc)
	counterSvc := counters.NewService(counters.Deps{
		Repo:        storage.NewCounterStore(db),
		Locker:      locker,
		LockOptions: cfg.LockOptions(),
		Bus:         bus,
		Broker:      broker,
		Logger:      logger,
	})

	predictions := storage.NewPredictionStore(db)
	predictionSvc := prediction.NewService(prediction.Deps{
		Repo:        predictions,
		Bus:         bus,
		Locker:      locker,
		LockOptions: cfg.LockOptions(),
		IDs:         domain.UUIDGenerator{},
		Logger:      logger,
	})
	comparer := prediction.NewAnswerComparer(predictions, logger)
	comparer.Register(bus)
	defer comparer.Close()

	gateway := api.NewGateway(logger)
	attachCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = gateway.Attach(attachCtx,
		countersync.NewScoreSync(broker, logger),
		countersync.NewLikeSync(broker, logger),
		countersync.NewCheerSync(broker, logger),
	)
	cancel()
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, api.Deps{
		Counters:    counterSvc,
		Rankings:    tickets,
		Predictions: predictionSvc,
		Events:      bus,
		Gateway:     gateway,
		Logger:      logger,
		PageSize:    cfg.RankingPageSize,
		MaxPageSize: cfg.RankingMaxPageSize,
		Health: func(ctx context.Context) error {
			if err := rc.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return nil
		},
	})

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

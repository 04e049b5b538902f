// cmd/ticket-service/main.go
package main

import (
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"

	"ticketrush/internal/pkg/bootstrap"
	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/metrics"
	"ticketrush/internal/pkg/mq"
	"ticketrush/internal/pkg/redis"
	"ticketrush/internal/service/ticket/application"
	"ticketrush/internal/service/ticket/infrastructure"
	"ticketrush/internal/service/ticket/infrastructure/adapter"
	"ticketrush/internal/service/ticket/interfaces"
)

const serviceName = "ticket-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	if err := bootstrap.Init(); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel)

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, redis.Options{
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to connect to redis")
	}
	store, err := adapter.NewTicketRedisAdapter(redisClient, cfg.App.RestoreMarkerTTL)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize ticket store")
	}

	db, err := infrastructure.OpenMySQL(infrastructure.MySQLOptions{
		Host:         cfg.Infra.MySQL.Host,
		Port:         cfg.Infra.MySQL.Port,
		User:         cfg.Infra.MySQL.User,
		Password:     cfg.Infra.MySQL.Password,
		Database:     cfg.Infra.MySQL.Database,
		MaxOpenConns: cfg.Infra.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.Infra.MySQL.MaxIdleConns,
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to get sql.DB")
	}

	node, err := snowflake.NewNode(cfg.App.SnowflakeNode)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to create snowflake node")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	scheduler := adapter.NewSchedulerKafkaAdapter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CompensationTopic)
	tickets := infrastructure.NewCachedTicketRepository(
		infrastructure.NewGormTicketRepository(db, cfg.App.DefaultPaymentTimeout), cfg.App.CatalogCacheTTL)

	svc, err := application.NewTicketApplicationService(
		tickets,
		infrastructure.NewGormOrderRepository(db),
		store, store, store,
		scheduler,
		cfg.App.ClaimLockTTL,
		application.WithMetrics(m),
		application.WithSnowflakeNode(node),
		application.WithScheduleRetry(cfg.App.ScheduleRetry.Attempts, cfg.App.ScheduleRetry.Backoff),
	)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to create ticket service")
	}

	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DLTTopic)
	consumer := interfaces.NewCompensationConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CompensationTopic, cfg.Infra.Kafka.ConsumerGroup),
		svc,
		mq.NewFailureHandler(dltWriter),
		m,
		cfg.App.ConsumerRetry.Attempts,
		cfg.App.ConsumerRetry.Backoff,
	)
	dltConsumer := interfaces.NewDltConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DLTTopic, cfg.Infra.Kafka.ConsumerGroup+"-dlt"),
	)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewTicketHandler(svc, prometheus.DefaultGatherer).RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{consumer, dltConsumer},
		Closers: []func() error{scheduler.Close, dltWriter.Close, redisClient.Close, sqlDB.Close},
	})
	if err != nil {
		logger.L().Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
}

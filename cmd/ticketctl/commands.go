package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"ticketrush/internal/pkg/bootstrap"
	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/redis"
	"ticketrush/internal/service/ticket/application"
	"ticketrush/internal/service/ticket/domain"
	"ticketrush/internal/service/ticket/infrastructure"
	"ticketrush/internal/service/ticket/infrastructure/adapter"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the tickets and orders tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		if err := infrastructure.AutoMigrate(db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var prepareStock int64

var prepareCmd = &cobra.Command{
	Use:   "prepare <ticket-id>",
	Short: "Initialize the stock counter of a ticket",
	Long: `Initialize the stock counter of a ticket. Without --stock the counter is set to
total stock minus pending and paid orders, so the counter matches the order ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		var stock *int64
		if cmd.Flags().Changed("stock") {
			stock = &prepareStock
		}
		value, err := svc.PrepareTicket(cmd.Context(), ticketID, stock)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticket %d stock set to %d\n", ticketID, value)
		return nil
	},
}

var stockCmd = &cobra.Command{
	Use:   "stock <ticket-id>",
	Short: "Show the live stock of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticketID, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		view, err := svc.GetStock(cmd.Context(), ticketID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticket %d stock: %d\n", view.TicketID, view.Stock)
		return nil
	},
}

var payCmd = &cobra.Command{
	Use:   "pay <order-id>",
	Short: "Mark a pending order as paid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		order, err := svc.ConfirmPayment(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "order %s (%s) is now %s\n", order.ID, order.Serial, order.Status)
		return nil
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim <order-id>",
	Short: "Run the timeout compensation of an order now",
	Long: `Run the timeout compensation of an order immediately. A pending order is cancelled,
its stock unit is restored and the user's claim lock is released. Used for orders whose
compensation task was dead-lettered. Repeated runs restore stock at most once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newService()
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := svc.HandleCompensation(cmd.Context(), domain.CompensationTask{OrderID: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "order %s compensation: %s\n", args[0], outcome)
		return nil
	},
}

func init() {
	prepareCmd.Flags().Int64Var(&prepareStock, "stock", 0, "explicit stock value")
	rootCmd.AddCommand(migrateCmd, prepareCmd, stockCmd, payCmd, reclaimCmd)
}

func loadConfig() (*bootstrap.Config, error) {
	if err := bootstrap.Init(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := bootstrap.GetCurrentConfig()
	logger.Init("ticketctl", cfg.App.LogLevel)
	return cfg, nil
}

func openDB(cfg *bootstrap.Config) (*gorm.DB, error) {
	return infrastructure.OpenMySQL(infrastructure.MySQLOptions{
		Host:     cfg.Infra.MySQL.Host,
		Port:     cfg.Infra.MySQL.Port,
		User:     cfg.Infra.MySQL.User,
		Password: cfg.Infra.MySQL.Password,
		Database: cfg.Infra.MySQL.Database,
	})
}

// newService 组装一个不消费 Kafka 的应用服务，管理命令不会调度补偿任务
func newService() (*application.TicketApplicationService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, redis.Options{
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = redisClient.Close()
		_ = sqlDB.Close()
	}

	store, err := adapter.NewTicketRedisAdapter(redisClient, cfg.App.RestoreMarkerTTL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	scheduler := adapter.NewSchedulerKafkaAdapter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CompensationTopic)
	svc, err := application.NewTicketApplicationService(
		infrastructure.NewGormTicketRepository(db, cfg.App.DefaultPaymentTimeout),
		infrastructure.NewGormOrderRepository(db),
		store, store, store,
		scheduler,
		cfg.App.ClaimLockTTL,
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, func() {
		_ = scheduler.Close()
		cleanup()
	}, nil
}

func parseTicketID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ticket id %q", v)
	}
	return id, nil
}

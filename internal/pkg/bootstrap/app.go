// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/nacos"
	"ticketrush/internal/pkg/tracing"
)

// Worker 是随服务启动、随服务关停的后台任务（例如 Kafka 消费者）
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 允许每个服务注册自己的 HTTP 路由
	Workers          []Worker
	// Closers 在所有组件停止之后按注册顺序执行，用于关闭连接池等资源
	Closers []func() error
}

// StartService 封装了服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		if ip, err = nacos.GetOutboundIP(); err != nil {
			return err
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, w := range info.Workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Str("service", info.ServiceName).Msg("shutting down service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关停顺序与启动顺序相反
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				logger.L().Error().Err(err).Msg("error deregistering from nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down http server")
		}
		for i := len(info.Workers) - 1; i >= 0; i-- {
			info.Workers[i].Stop(shutdownCtx)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down tracer provider")
		}
		for _, c := range info.Closers {
			if err := c(); err != nil {
				logger.L().Error().Err(err).Msg("error closing resource")
			}
		}
		return nil
	})

	err = g.Wait()
	logger.L().Info().Str("service", info.ServiceName).Msg("service gracefully shut down")
	return err
}

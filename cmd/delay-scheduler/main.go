// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"ticketrush/internal/pkg/bootstrap"
	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/mq"
	"ticketrush/internal/pkg/tracing"
)

const serviceName = "delay-scheduler"

// writerPool 按业务主题缓存 writer，所有延迟级别共享
type writerPool struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func (p *writerPool) get(topic string) mq.MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = mq.NewKafkaWriter(p.brokers, topic)
		p.writers[topic] = w
	}
	return w
}

func (p *writerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			logger.L().Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

func main() {
	if err := bootstrap.Init(); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := &writerPool{brokers: cfg.Infra.Kafka.Brokers, writers: make(map[string]*kafka.Writer)}
	g, gctx := errgroup.WithContext(ctx)
	for _, level := range mq.DelayLevels {
		reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, level.Topic, serviceName+"-group-"+level.Topic)
		forwarder := mq.NewDelayForwarder(level, reader, pool.get)
		g.Go(func() error { return forwarder.Run(gctx) })
	}

	err = g.Wait()
	pool.close()
	if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
		logger.L().Error().Err(shutdownErr).Msg("error shutting down tracer provider")
	}
	if err != nil {
		logger.L().Error().Err(err).Msg("delay scheduler exited with error")
		os.Exit(1)
	}
	logger.L().Info().Msg("delay scheduler stopped")
}

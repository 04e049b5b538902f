package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/metrics"
	"ticketrush/internal/pkg/mq"
	"ticketrush/internal/service/ticket/domain"
)

// CompensationProcessor 处理一个到期的补偿任务
type CompensationProcessor interface {
	HandleCompensation(ctx context.Context, task domain.CompensationTask) (domain.CompensationOutcome, error)
}

// CompensationConsumerAdapter 是一个驱动适配器，监听补偿主题并驱动应用服务。
// 处理失败会一直重试直到成功或消费者关闭，只有无法解码的消息写入死信主题。
// offset 只在处理成功或写入死信主题之后提交。
type CompensationConsumerAdapter struct {
	reader         mq.MessageReader
	processor      CompensationProcessor
	failureHandler *mq.FailureHandler
	metrics        *metrics.Metrics

	retries    uint64
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewCompensationConsumerAdapter 创建补偿消费者。
// 连续失败超过 retries 次后输出告警，但仍然继续重试。
func NewCompensationConsumerAdapter(reader mq.MessageReader, processor CompensationProcessor, failureHandler *mq.FailureHandler,
	m *metrics.Metrics, retries uint64, backoff time.Duration) *CompensationConsumerAdapter {
	if m == nil {
		m = metrics.New(nil)
	}
	return &CompensationConsumerAdapter{
		reader:         reader,
		processor:      processor,
		failureHandler: failureHandler,
		metrics:        m,
		retries:        retries,
		backoff:        backoff,
		maxBackoff:     30 * time.Second,
		now:            time.Now,
		sleep:          mq.SleepContext,
	}
}

// Start 开始监听 Kafka 主题，立即返回。
func (a *CompensationConsumerAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Msg("compensation consumer started")
		for {
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("compensation consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				if a.sleep(ctx, time.Second) != nil {
					return
				}
				continue
			}

			if err := a.handleMessage(ctx, msg); err != nil {
				// 只有在关闭过程中才会走到这里，消息未提交，重启后会重新投递
				logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("message left uncommitted")
				return
			}
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者
func (a *CompensationConsumerAdapter) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to close compensation reader")
	}
	logger.Ctx(ctx).Info().Msg("compensation consumer stopped")
}

// handleMessage 返回 nil 表示消息可以提交
func (a *CompensationConsumerAdapter) handleMessage(ctx context.Context, msg kafka.Message) error {
	if err := a.waitUntilDue(ctx, msg); err != nil {
		return err
	}

	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)

	var task domain.CompensationTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return a.deadLetter(msgCtx, msg, fmt.Errorf("decode compensation task: %w", err))
	}

	var attempts uint64
	b := retry.WithCappedDuration(a.maxBackoff, retry.NewExponential(a.backoff))
	// 基础设施错误不进入死信主题，丢弃补偿任务会永久少回补库存
	return retry.Do(msgCtx, b, func(ctx context.Context) error {
		outcome, err := a.processor.HandleCompensation(ctx, task)
		if err != nil {
			attempts++
			ev := logger.Ctx(ctx).Warn()
			if attempts == a.retries+1 {
				ev = logger.Alert(ctx)
			}
			ev.Err(err).
				Str("order_id", task.OrderID).
				Uint64("attempt", attempts).
				Msg("compensation attempt failed, retrying")
			return retry.RetryableError(err)
		}
		logger.Ctx(ctx).Debug().Str("order_id", task.OrderID).Str("outcome", string(outcome)).Msg("compensation handled")
		return nil
	})
}

// waitUntilDue 等待到 delay-timestamp 指定的时间。
// 延迟主题按级别向下取整，剩余的时间在这里补齐。
func (a *CompensationConsumerAdapter) waitUntilDue(ctx context.Context, msg kafka.Message) error {
	raw := mq.GetHeader(msg.Headers, mq.HeaderDelayTimestamp)
	if raw == "" {
		return nil
	}
	fireAt, err := mq.ParseDelayTimestamp(raw)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("ignoring malformed delay timestamp")
		return nil
	}
	if wait := fireAt.Sub(a.now()); wait > 0 {
		return a.sleep(ctx, wait)
	}
	return nil
}

// deadLetter 将消息写入死信主题，写入失败时持续重试，直到成功或者消费者关闭。
func (a *CompensationConsumerAdapter) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	for {
		err := a.failureHandler.Handle(ctx, msg, cause)
		if err == nil {
			a.metrics.CompensationDeadLettered.Inc()
			return nil
		}
		if a.sleep(ctx, time.Second) != nil {
			return err
		}
	}
}

// internal/pkg/mq/forwarder.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketrush/internal/pkg/logger"
)

// MessageReader 是 *kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DelayForwarder 消费一个延迟级别主题，到期后把消息转发到 real-topic 头指定的业务主题。
// 离 delay-timestamp 还差一个级别以上的消息转入对应的更小级别。
// 同一主题内延迟相同，所以只要等待队头到期即可，不会出现队头阻塞。
type DelayForwarder struct {
	level     DelayLevel
	reader    MessageReader
	writerFor func(topic string) MessageWriter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDelayForwarder 创建转发器。writerFor 按业务主题返回 writer，调用方负责缓存和关闭。
func NewDelayForwarder(level DelayLevel, reader MessageReader, writerFor func(topic string) MessageWriter) *DelayForwarder {
	return &DelayForwarder{
		level:     level,
		reader:    reader,
		writerFor: writerFor,
		now:       time.Now,
		sleep:     SleepContext,
	}
}

// Run 阻塞运行直到 ctx 结束
func (f *DelayForwarder) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("level", f.level.Topic).Dur("delay", f.level.Delay).Msg("delay forwarder started")
	defer func() {
		if err := f.reader.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("level", f.level.Topic).Msg("failed to close reader")
		}
	}()

	for {
		msg, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("level", f.level.Topic).Msg("delay forwarder shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Str("level", f.level.Topic).Msg("could not fetch message, retrying")
			if f.sleep(ctx, time.Second) != nil {
				return nil
			}
			continue
		}

		if err := f.forward(ctx, msg); err != nil {
			// 只在关闭时发生，消息未提交，重启后会重新转发
			return nil
		}
	}
}

// forward 等待消息到期并投递，成功后提交 offset。只有 ctx 结束时才返回错误。
func (f *DelayForwarder) forward(ctx context.Context, msg kafka.Message) error {
	due := msg.Time.Add(f.level.Delay)
	if wait := due.Sub(f.now()); wait > 0 {
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
	}

	spanCtx := ExtractTraceContext(ctx, msg.Headers)
	spanCtx, span := otel.Tracer("delay-scheduler").Start(spanCtx, "scheduler.Forward", trace.WithAttributes(
		attribute.String("delay.level", f.level.Topic),
		attribute.Int64("message.offset", msg.Offset),
	))
	defer span.End()

	realTopic := GetHeader(msg.Headers, HeaderRealTopic)
	if realTopic == "" {
		// 无法投递的消息也要提交，否则会被一直重复消费
		logger.Ctx(spanCtx).Error().Str("level", f.level.Topic).Int64("offset", msg.Offset).Msg("real-topic header missing, skipping message")
		span.SetStatus(codes.Error, "real-topic header missing")
		return f.commit(spanCtx, msg)
	}

	target := realTopic
	out := kafka.Message{Key: msg.Key, Value: msg.Value}
	if ts := GetHeader(msg.Headers, HeaderDelayTimestamp); ts != "" {
		out.Headers = append(out.Headers, kafka.Header{Key: HeaderDelayTimestamp, Value: []byte(ts)})
		// 剩余时间不小于最小级别时转入更小的级别，业务消费端最多只需等待不足 5s 的零头
		if fireAt, err := ParseDelayTimestamp(ts); err == nil {
			if remaining := fireAt.Sub(f.now()); remaining >= DelayLevels[0].Delay {
				target = PickDelayLevel(remaining).Topic
				out.Headers = append(out.Headers, kafka.Header{Key: HeaderRealTopic, Value: []byte(realTopic)})
				span.SetAttributes(attribute.String("delay.next_level", target))
			}
		}
	}
	InjectTraceContext(spanCtx, &out.Headers)

	backoff := 500 * time.Millisecond
	for {
		err := f.writerFor(target).WriteMessages(spanCtx, out)
		if err == nil {
			break
		}
		logger.Ctx(spanCtx).Error().Err(err).Str("target_topic", target).Msg("failed to publish message, retrying")
		span.RecordError(err)
		if err := f.sleep(ctx, backoff); err != nil {
			return err
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
	span.AddEvent("message forwarded", trace.WithAttributes(attribute.String("target.topic", target)))
	return f.commit(spanCtx, msg)
}

func (f *DelayForwarder) commit(ctx context.Context, msg kafka.Message) error {
	if err := f.reader.CommitMessages(ctx, msg); err != nil {
		// 提交失败最多导致重复投递，补偿处理器是幂等的
		logger.Ctx(ctx).Error().Err(err).Str("level", f.level.Topic).Int64("offset", msg.Offset).Msg("failed to commit message")
	}
	return nil
}

// SleepContext 等待 d 或者 ctx 结束
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"ticketrush/internal/pkg/mq"
	"ticketrush/internal/service/ticket/domain"
)

// SchedulerKafkaAdapter 实现了 port.CompensationScheduler。
// 任务先写入延迟级别主题，由 delay-scheduler 到期后转发到 realTopic。
type SchedulerKafkaAdapter struct {
	writers   map[string]mq.MessageWriter
	realTopic string
	closers   []func() error
}

// NewSchedulerKafkaAdapter 为每个延迟级别创建一个 writer
func NewSchedulerKafkaAdapter(brokers []string, realTopic string) *SchedulerKafkaAdapter {
	writers := make(map[string]mq.MessageWriter, len(mq.DelayLevels))
	var closers []func() error
	for _, lvl := range mq.DelayLevels {
		w := mq.NewKafkaWriter(brokers, lvl.Topic)
		writers[lvl.Topic] = w
		closers = append(closers, w.Close)
	}
	return &SchedulerKafkaAdapter{writers: writers, realTopic: realTopic, closers: closers}
}

// NewSchedulerWithWriters 使用已有的 writer（测试或自定义投递方式）
func NewSchedulerWithWriters(writers map[string]mq.MessageWriter, realTopic string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{writers: writers, realTopic: realTopic}
}

// Schedule 实现了发送延迟消息的逻辑。
func (a *SchedulerKafkaAdapter) Schedule(ctx context.Context, task domain.CompensationTask) error {
	if task.TraceID == "" {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
			task.TraceID = sc.TraceID().String()
		}
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "marshal compensation task")
	}

	base := task.CreatedAt
	if base.IsZero() {
		base = time.Now()
	}
	level := mq.PickDelayLevel(task.FireAt.Sub(base))
	writer, ok := a.writers[level.Topic]
	if !ok {
		return fmt.Errorf("no writer for delay topic %s", level.Topic)
	}

	msg := kafka.Message{
		Key:   []byte(task.OrderID),
		Value: taskBytes,
		Headers: []kafka.Header{
			{Key: mq.HeaderRealTopic, Value: []byte(a.realTopic)},
			{Key: mq.HeaderDelayTimestamp, Value: []byte(mq.FormatDelayTimestamp(task.FireAt))},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write compensation task of order %s to %s", task.OrderID, level.Topic)
	}
	return nil
}

// Close 关闭底层的 Kafka writer
func (a *SchedulerKafkaAdapter) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

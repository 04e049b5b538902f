package interfaces

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketrush/internal/pkg/logger"
	"ticketrush/internal/pkg/mq"
)

// DltConsumerAdapter 监听补偿任务的死信主题并记录告警日志
type DltConsumerAdapter struct {
	reader mq.MessageReader
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDltConsumerAdapter(reader mq.MessageReader) *DltConsumerAdapter {
	return &DltConsumerAdapter{reader: reader}
}

func (a *DltConsumerAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Msg("DLT consumer started")
		for {
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("DLT consumer shutting down")
					return
				}
				if mq.SleepContext(ctx, time.Second) != nil {
					return
				}
				continue
			}

			logDeadLetter(ctx, msg)

			// 死信消息记录日志即视为处理完成
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dead letter message")
			}
		}
	}()
	return nil
}

func (a *DltConsumerAdapter) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	_ = a.reader.Close()
	logger.Ctx(ctx).Info().Msg("DLT consumer stopped")
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("CRITICAL: undecodable compensation task dead-lettered, reclaim the order with `ticketctl reclaim <order-id>`")
}

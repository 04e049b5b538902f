// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ticketrush/internal/pkg/logger"
)

// 死信消息携带的原始消息元数据
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// MessageWriter 是 *kafka.Writer 的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// FailureHandler 将处理失败的消息转发到死信主题 (DLT)。
type FailureHandler struct {
	dltWriter MessageWriter
}

// NewFailureHandler 创建失败处理器
func NewFailureHandler(dltWriter MessageWriter) *FailureHandler {
	return &FailureHandler{dltWriter: dltWriter}
}

// Handle 把消息连同失败原因写入 DLT。
// 返回错误时调用方不能提交 offset，否则这条消息会被永久丢弃。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	for _, hd := range msg.Headers {
		headers = append(headers, hd)
	}
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)

	dead := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := h.dltWriter.WriteMessages(ctx, dead); err != nil {
		logger.Alert(ctx).Err(err).
			Str("original_topic", msg.Topic).
			Int64("original_offset", msg.Offset).
			Msg("failed to publish message to dead letter topic")
		return fmt.Errorf("publish to dead letter topic: %w", err)
	}

	logger.Ctx(ctx).Error().Err(cause).
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Msg("message moved to dead letter topic")
	return nil
}

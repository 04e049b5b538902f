// internal/pkg/mq/delay.go
package mq

import (
	"fmt"
	"time"
)

const (
	// HeaderRealTopic 延迟消息到期后要投递的业务主题
	HeaderRealTopic = "real-topic"
	// HeaderDelayTimestamp 消息的精确到期时间 (RFC3339Nano)
	HeaderDelayTimestamp = "delay-timestamp"
)

// DelayLevel 是一个固定延迟的中转主题。
// Kafka 不支持按消息延迟，所以按级别拆分主题：同一主题内延迟相同，队头未到期时后续消息一定也未到期。
type DelayLevel struct {
	Topic string
	Delay time.Duration
}

// DelayLevels 按延迟从小到大排列
var DelayLevels = []DelayLevel{
	{Topic: "delay_topic_5s", Delay: 5 * time.Second},
	{Topic: "delay_topic_1m", Delay: time.Minute},
	{Topic: "delay_topic_5m", Delay: 5 * time.Minute},
	{Topic: "delay_topic_10m", Delay: 10 * time.Minute},
	{Topic: "delay_topic_30m", Delay: 30 * time.Minute},
	{Topic: "delay_topic_1h", Delay: time.Hour},
}

// PickDelayLevel 选出不超过 d 的最大延迟级别。
// 剩余时间由转发器逐级转入更小的级别，不足最小级别的部分由消费端根据 delay-timestamp 补齐。
// d 小于最小级别时返回最小级别，此时消息会比目标时间稍晚到达。
func PickDelayLevel(d time.Duration) DelayLevel {
	picked := DelayLevels[0]
	for _, lvl := range DelayLevels {
		if lvl.Delay <= d {
			picked = lvl
		}
	}
	return picked
}

// FormatDelayTimestamp 与 ParseDelayTimestamp 成对使用
func FormatDelayTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseDelayTimestamp 解析 delay-timestamp 消息头
func ParseDelayTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s header %q: %w", HeaderDelayTimestamp, v, err)
	}
	return t, nil
}

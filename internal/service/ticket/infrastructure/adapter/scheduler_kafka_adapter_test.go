package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketrush/internal/pkg/mq"
	"ticketrush/internal/service/ticket/domain"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newRecordingScheduler() (*SchedulerKafkaAdapter, map[string]*recordingWriter) {
	recs := make(map[string]*recordingWriter)
	writers := make(map[string]mq.MessageWriter)
	for _, lvl := range mq.DelayLevels {
		w := &recordingWriter{}
		recs[lvl.Topic] = w
		writers[lvl.Topic] = w
	}
	return NewSchedulerWithWriters(writers, "ticket-compensation-topic"), recs
}

func TestScheduleWritesToDelayLevel(t *testing.T) {
	s, recs := newRecordingScheduler()
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	task := domain.CompensationTask{
		OrderID:   "o-1",
		TicketID:  3,
		UserID:    "u-1",
		CreatedAt: created,
		FireAt:    created.Add(15 * time.Minute),
	}

	require.NoError(t, s.Schedule(context.Background(), task))

	w := recs["delay_topic_10m"]
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	assert.Equal(t, "ticket-compensation-topic", mq.GetHeader(msg.Headers, mq.HeaderRealTopic))

	fireAt, err := mq.ParseDelayTimestamp(mq.GetHeader(msg.Headers, mq.HeaderDelayTimestamp))
	require.NoError(t, err)
	assert.True(t, fireAt.Equal(task.FireAt))

	var decoded domain.CompensationTask
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, task.OrderID, decoded.OrderID)
	assert.Equal(t, task.TicketID, decoded.TicketID)
	assert.Equal(t, task.UserID, decoded.UserID)
}

func TestScheduleShortTimeoutUsesSmallestLevel(t *testing.T) {
	s, recs := newRecordingScheduler()
	now := time.Now()
	task := domain.CompensationTask{OrderID: "o-2", CreatedAt: now, FireAt: now.Add(2 * time.Second)}

	require.NoError(t, s.Schedule(context.Background(), task))
	assert.Len(t, recs["delay_topic_5s"].msgs, 1)
}

func TestScheduleWriteError(t *testing.T) {
	s, recs := newRecordingScheduler()
	recs["delay_topic_1m"].err = errors.New("broker down")
	now := time.Now()

	err := s.Schedule(context.Background(), domain.CompensationTask{OrderID: "o-3", CreatedAt: now, FireAt: now.Add(time.Minute)})
	assert.Error(t, err)
}

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"study-assistant-backend/config"
	"study-assistant-backend/service/rag"

	"github.com/apache/rocketmq-client-go/v2"
	c "github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/apache/rocketmq-client-go/v2/rlog"
	"github.com/avast/retry-go/v4"
)

const (
	topicIngest = "topic_study_ingest"
	tagIndex    = "tag_index"

	consumeGroupIngest = "cg_study_ingest"

	sendMessageAttempts  = 3
	maxReconsumeTimes    = 5
	consumeGoroutineNums = 10
)

// MQQueue distributes ingestion tasks over RocketMQ so any instance of the
// server can pick them up. Tasks submitted here should reference the file
// by URL; inline bytes survive the JSON round trip but bloat messages.
type MQQueue struct {
	engine   *rag.Engine
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
}

func NewMQQueue(cfg config.MQConfig, engine *rag.Engine) (*MQQueue, error) {
	rlog.SetLogLevel("warn")

	consumer, err := rocketmq.NewPushConsumer(
		c.WithNameServer(cfg.NameServer),
		c.WithGroupName(consumeGroupIngest),
		c.WithConsumerModel(c.Clustering),
		c.WithConsumeFromWhere(c.ConsumeFromLastOffset),
		c.WithMaxReconsumeTimes(maxReconsumeTimes),
		c.WithConsumeGoroutineNums(consumeGoroutineNums),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	prod, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &MQQueue{engine: engine, producer: prod, consumer: consumer}, nil
}

func (q *MQQueue) Start() error {
	selector := c.MessageSelector{Type: c.TAG, Expression: tagIndex}
	err := q.consumer.Subscribe(topicIngest, selector, func(ctx context.Context, messages ...*primitive.MessageExt) (c.ConsumeResult, error) {
		for _, msg := range messages {
			if err := q.handle(ctx, msg); err != nil {
				slog.Error("failed to process ingestion message",
					"topic", msg.Topic,
					"msg_id", msg.MsgId,
					"err", err)
				return c.ConsumeRetryLater, err
			}
		}
		return c.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topicIngest, err)
	}

	if err := q.producer.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}
	if err := q.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

func (q *MQQueue) handle(ctx context.Context, msg *primitive.MessageExt) error {
	var t Task
	if err := json.Unmarshal(msg.Body, &t); err != nil {
		// a malformed message will never parse on redelivery, drop it
		slog.Error("dropping malformed ingestion message", "msg_id", msg.MsgId, "err", err)
		return nil
	}
	return run(ctx, q.engine, t)
}

func (q *MQQueue) Submit(ctx context.Context, t Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion task: %w", err)
	}
	msg := primitive.NewMessage(topicIngest, payload).WithTag(tagIndex)

	err = retry.Do(
		func() error {
			_, err := q.producer.SendSync(ctx, msg)
			return err
		},
		retry.Attempts(sendMessageAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("retrying ingestion message send",
				"attempt", n+1,
				"document_id", t.DocumentID,
				"err", err)
		}),
	)
	if err != nil {
		q.engine.Jobs().Fail(t.DocumentID, "Không gửi được yêu cầu xử lý")
		return fmt.Errorf("failed to send ingestion message after retries: %w", err)
	}
	return nil
}

func (q *MQQueue) Shutdown() {
	if q.producer != nil {
		q.producer.Shutdown()
	}
	if q.consumer != nil {
		q.consumer.Shutdown()
	}
}

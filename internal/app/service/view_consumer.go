package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gongdel/promptview/internal/app/model"
	"github.com/gongdel/promptview/internal/app/repository"
)

// ViewConsumer drains published view events and writes the durable side:
// one audit row per event plus an upsert-increment of the prompt's count.
type ViewConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	logs   repository.ViewLogRepository
	counts repository.ViewCountRepository
}

// NewViewConsumer creates a view event consumer.
func NewViewConsumer(
	js nats.JetStreamContext,
	logger *zap.Logger,
	logs repository.ViewLogRepository,
	counts repository.ViewCountRepository,
) *ViewConsumer {
	return &ViewConsumer{js: js, logger: logger, logs: logs, counts: counts}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *ViewConsumer) Start() error {
	_, err := c.js.StreamInfo(model.ViewStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.ViewStreamName,
			Subjects: []string{model.ViewStreamSubject},
			MaxBytes: model.ViewStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.ViewStreamName, model.ViewConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.ViewStreamName, &nats.ConsumerConfig{
			Durable:   model.ViewConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.ViewStreamSubject, model.ViewConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *ViewConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch view events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var record model.ViewRecord
			if err := json.Unmarshal(msg.Data, &record); err != nil {
				c.logger.Error("failed to unmarshal view event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.logs.Create(ctx, &record); err != nil {
				c.logger.Error("failed to store view log",
					zap.String("id", record.ID),
					zap.Int64("prompt_id", record.PromptID),
					zap.Error(err))
				msg.Nak()
				continue
			}

			if _, err := c.counts.Increment(ctx, record.PromptID); err != nil {
				// The log row made it; the count catches up via the sync job.
				c.logger.Error("failed to increment stored view count",
					zap.Int64("prompt_id", record.PromptID),
					zap.Error(err))
			}

			c.logger.Debug("view event stored",
				zap.String("id", record.ID),
				zap.Int64("prompt_id", record.PromptID),
				zap.Time("viewed_at", record.ViewedAt),
			)

			msg.Ack()
		}
	}
}

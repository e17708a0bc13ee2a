// Package publisher drains the order outbox into kafka. Events are written to
// the outbox in the same store as the order change, so a crash between the
// change and the publish loses nothing.
package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/repository"
)

const (
	// Topic carries every order lifecycle event, keyed by order id so one
	// order's events stay in sequence.
	Topic = "order-events"

	defaultBatchSize = 100
	defaultTick      = time.Second
)

// eventSource is the outbox slice of the order repository.
type eventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, eventID int64) error
}

// messageWriter matches kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	tick   time.Duration
	batch  int
	repo   eventSource
	writer messageWriter
	logger *zap.Logger
}

func NewOutboxPoller(repo eventSource, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:   defaultTick,
		batch:  defaultBatchSize,
		repo:   repo,
		writer: w,
		logger: logger,
	}
}

// Run polls until the context is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// drain publishes one batch. A failed publish leaves the event unprocessed
// for the next tick; a failed mark means the event will be published again,
// so consumers must treat deliveries as at-least-once.
func (p *OutboxPoller) drain(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.logger.Error("fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.AggregateID),
			Value: event.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("publish outbox event",
				zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("mark outbox event processed",
				zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
)

// EventPublisher delivers an encoded event to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
// An event is marked published only after the broker accepted it, so a
// crash between the two steps re-delivers rather than loses.
type OutboxPoller struct {
	db        repository.DBTX
	repo      repository.OutboxRepository
	publisher EventPublisher
	logger    *slog.Logger
	prefix    string
	interval  time.Duration
	batchSize int
}

// OutboxPollerConfig tunes the poller.
type OutboxPollerConfig struct {
	TopicPrefix string
	Interval    time.Duration
	BatchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(db repository.DBTX, repo repository.OutboxRepository, publisher EventPublisher, cfg OutboxPollerConfig, logger *slog.Logger) *OutboxPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &OutboxPoller{
		db:        db,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		prefix:    cfg.TopicPrefix,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Topic returns the Kafka topic an event type is published to.
func (p *OutboxPoller) Topic(eventType domain.EventType) string {
	if p.prefix == "" {
		return string(eventType)
	}
	return p.prefix + "." + string(eventType)
}

// PollOnce publishes one batch and returns how many events were marked published.
// It stops at the first publish failure to keep per-partition ordering.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.repo.FetchUnpublished(ctx, p.db, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	for _, e := range events {
		msg, err := json.Marshal(map[string]interface{}{
			"event_id":       e.EventID,
			"aggregate_type": e.AggregateType,
			"aggregate_id":   e.AggregateID,
			"event_type":     e.EventType,
			"payload":        json.RawMessage(e.Payload),
			"occurred_at":    e.OccurredAt,
		})
		if err != nil {
			p.logger.Error("encode outbox event", "event_id", e.EventID, "error", err)
			break
		}

		key := e.PartitionKey
		if key == "" {
			key = e.AggregateID
		}
		if err := p.publisher.Publish(ctx, p.Topic(e.EventType), []byte(key), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			break
		}
		published = append(published, e.ID)
	}

	if err := p.repo.MarkPublished(ctx, p.db, published); err != nil {
		return 0, err
	}

	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(events))
	return len(published), nil
}

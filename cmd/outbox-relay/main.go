package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/refnexus/platform/internal/infra"
	"github.com/refnexus/platform/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	var publisher infra.EventPublisher = producer
	if !producer.Enabled() {
		publisher = logPublisher{logger: logger}
	}

	poller := infra.NewOutboxPoller(pool, repository.NewOutboxRepository(), publisher, infra.OutboxPollerConfig{
		TopicPrefix: cfg.KafkaTopicPrefix,
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
	}, logger)

	logger.Info("outbox relay starting",
		"kafka", producer.Enabled(),
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
	)
	poller.Run(ctx)
	logger.Info("outbox relay stopped")
	return nil
}

// logPublisher stands in for Kafka when it is disabled: events are logged
// and then marked published.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.logger.Info("outbox event", "topic", topic, "key", string(key), "bytes", len(value))
	return nil
}

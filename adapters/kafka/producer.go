package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer writes portfolio events to the audit topic, keyed by user so one
// user's events stay ordered within a partition.
type Producer struct {
	writer *kafkago.Writer
	log    *slog.Logger
}

// NewProducer builds an asynchronous writer: Publish only enqueues, delivery
// failures are reported through the log.
func NewProducer(cfg config.KafkaConfig, log *slog.Logger) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafkago.RequiredAcks(cfg.RequiredAcks),
			MaxAttempts:            cfg.MaxAttempts,
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
			Async:                  true,
			Completion: func(messages []kafkago.Message, err error) {
				if err != nil {
					log.Error("failed to deliver portfolio events to kafka", "count", len(messages), "error", err)
				}
			},
		},
		log: log,
	}
}

func (p *Producer) Publish(ctx context.Context, event models.PortfolioEvent) error {
	const op = "adapters.kafka.Publish"

	msg, err := encode(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.log.Debug("portfolio event queued for kafka", "topic", p.writer.Topic, "userID", event.UserID, "op", event.Op)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(event models.PortfolioEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, err
	}

	return kafkago.Message{
		Key:   []byte(event.UserID.String()),
		Value: payload,
		Time:  event.Time,
		Headers: []kafkago.Header{
			{Key: "op", Value: []byte(event.Op)},
			{Key: "event-id", Value: []byte(event.EventID.String())},
		},
	}, nil
}

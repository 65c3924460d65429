package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event models.PortfolioEvent) error {
	const op = "storage.redis.Publish"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.client.Publish(ctx, PortfolioChannel(event.UserID.String()), payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

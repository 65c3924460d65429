package marketdata

import (
	"context"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
)

type Gateway interface {
	Search(ctx context.Context, query string) ([]models.Coin, error)
	Price(ctx context.Context, coinID string) (models.Price, error)
	History(ctx context.Context, coinID string, days int) (models.PriceSeries, error)
}

// Cache stores raw payloads. A miss is reported as errs.ErrNotFound.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

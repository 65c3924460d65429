package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
)

const keyPrefix = "marketdata:"

// CachedGateway serves repeated searches and history requests from a cache.
// Spot prices always go to the provider.
type CachedGateway struct {
	next  Gateway
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedGateway(next Gateway, cache Cache, ttl time.Duration, log *slog.Logger) *CachedGateway {
	return &CachedGateway{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func (g *CachedGateway) Search(ctx context.Context, query string) ([]models.Coin, error) {
	key := keyPrefix + "search:" + strings.ToLower(strings.TrimSpace(query))

	var coins []models.Coin
	if g.lookup(ctx, key, &coins) {
		return coins, nil
	}

	coins, err := g.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	g.store(ctx, key, coins)
	return coins, nil
}

func (g *CachedGateway) Price(ctx context.Context, coinID string) (models.Price, error) {
	return g.next.Price(ctx, coinID)
}

func (g *CachedGateway) History(ctx context.Context, coinID string, days int) (models.PriceSeries, error) {
	key := keyPrefix + "history:" + coinID + ":" + strconv.Itoa(days)

	var series models.PriceSeries
	if g.lookup(ctx, key, &series) {
		return series, nil
	}

	series, err := g.next.History(ctx, coinID, days)
	if err != nil {
		return models.PriceSeries{}, err
	}

	g.store(ctx, key, series)
	return series, nil
}

func (g *CachedGateway) lookup(ctx context.Context, key string, out any) bool {
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			g.log.Warn("market data cache read failed", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		g.log.Warn("market data cache entry is corrupted", "key", key, "error", err)
		return false
	}

	g.log.Debug("market data cache hit", "key", key)
	return true
}

func (g *CachedGateway) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		g.log.Warn("failed to encode market data for cache", "key", key, "error", err)
		return
	}

	if err := g.cache.Set(ctx, key, data, g.ttl); err != nil {
		g.log.Warn("market data cache write failed", "key", key, "error", err)
	}
}

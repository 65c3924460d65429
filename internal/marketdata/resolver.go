package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
)

type Resolver struct {
	gateway Gateway
	log     *slog.Logger
}

func NewResolver(gateway Gateway, log *slog.Logger) *Resolver {
	return &Resolver{
		gateway: gateway,
		log:     log,
	}
}

// Resolve maps a ticker to one coin. Among the search results, in provider
// order, the first coin whose symbol equals the ticker wins; with no exact
// match the first result is used.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (models.Coin, error) {
	const op = "marketdata.Resolve"

	candidates, err := r.gateway.Search(ctx, symbol)
	if err != nil {
		return models.Coin{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(candidates) == 0 {
		return models.Coin{}, fmt.Errorf("%s: %w: %q", op, errs.ErrSymbolNotFound, symbol)
	}

	var exact []models.Coin
	for _, coin := range candidates {
		if strings.EqualFold(coin.Symbol, symbol) {
			exact = append(exact, coin)
		}
	}

	if len(exact) > 1 {
		r.log.Warn("ticker matches several coins, using the first one",
			"symbol", symbol, "picked", exact[0].ID, "matches", len(exact))
	}

	if len(exact) > 0 {
		return exact[0], nil
	}
	return candidates[0], nil
}

// Lookup returns the coin with the given identifier from the search results
// for that identifier.
func (r *Resolver) Lookup(ctx context.Context, coinID string) (models.Coin, error) {
	const op = "marketdata.Lookup"

	candidates, err := r.gateway.Search(ctx, coinID)
	if err != nil {
		return models.Coin{}, fmt.Errorf("%s: %w", op, err)
	}

	for _, coin := range candidates {
		if coin.ID == coinID {
			return coin, nil
		}
	}

	return models.Coin{}, fmt.Errorf("%s: %w: coin id %q", op, errs.ErrSymbolNotFound, coinID)
}

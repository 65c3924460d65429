package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/marketdata"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/portfolio"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/repository"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/google/uuid"
)

const (
	DefaultHistoryDays = 30
	maxHistoryDays     = 365

	writeTimeout = 10 * time.Second
)

type AddAssetInput struct {
	Symbol string
	Amount string
	// CoinID skips ticker resolution when the caller already picked a coin
	// from the search results.
	CoinID string
}

// PortfolioService computes the next state of a portfolio and writes it.
// The returned portfolio is only produced once the write succeeded; on any
// error the caller keeps its current state.
type PortfolioService interface {
	Load(ctx context.Context, userID uuid.UUID) (models.Portfolio, error)
	AddAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, in AddAssetInput) (models.Portfolio, error)
	EditAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, index int, amount string) (models.Portfolio, error)
	RemoveAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, index int) (models.Portfolio, error)
	Search(ctx context.Context, query string) ([]models.Coin, error)
	History(ctx context.Context, coinID string, days int) (models.PriceSeries, error)
}

type portfolioService struct {
	repo     repository.PortfolioRepository
	market   marketdata.Gateway
	resolver *marketdata.Resolver
	log      *slog.Logger
	now      func() time.Time
}

func NewPortfolioService(repo repository.PortfolioRepository, market marketdata.Gateway, log *slog.Logger) PortfolioService {
	return &portfolioService{
		repo:     repo,
		market:   market,
		resolver: marketdata.NewResolver(market, log),
		log:      log,
		now:      time.Now,
	}
}

func (s *portfolioService) Load(ctx context.Context, userID uuid.UUID) (models.Portfolio, error) {
	const op = "service.Load"

	doc, err := s.repo.Read(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Portfolio{Assets: []models.Asset{}}, nil
		}
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, storageError(err))
	}

	return portfolio.FromDocument(doc), nil
}

func (s *portfolioService) AddAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, in AddAssetInput) (models.Portfolio, error) {
	const op = "service.AddAsset"

	symbol, err := portfolio.NormalizeSymbol(in.Symbol)
	if err != nil {
		return models.Portfolio{}, err
	}

	amount, err := portfolio.ParseNewAmount(in.Amount)
	if err != nil {
		return models.Portfolio{}, err
	}

	coin, err := s.resolve(ctx, symbol, strings.TrimSpace(in.CoinID))
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	price, err := s.market.Price(ctx, coin.ID)
	if err != nil {
		if !errors.Is(err, errs.ErrPriceUnavailable) {
			err = fmt.Errorf("%w: %s", errs.ErrPriceUnavailable, err.Error())
		}
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	resolvedSymbol := strings.ToUpper(strings.TrimSpace(coin.Symbol))
	if resolvedSymbol == "" {
		resolvedSymbol = symbol
	}

	next := portfolio.Append(current, models.Asset{
		Symbol:   resolvedSymbol,
		CoinID:   coin.ID,
		Amount:   amount,
		PriceUSD: price.USD,
		PriceEUR: price.EUR,
		AddedAt:  s.now().UTC(),
	})

	if err := s.persist(ctx, userID, next); err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("asset added", "userID", userID, "symbol", resolvedSymbol, "coinID", coin.ID, "amount", amount.String())
	return next, nil
}

func (s *portfolioService) EditAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, index int, amountInput string) (models.Portfolio, error) {
	const op = "service.EditAsset"

	if index < 0 || index >= len(current.Assets) {
		return models.Portfolio{}, errs.ErrInvalidIndex
	}

	amount, err := portfolio.ParseEditAmount(amountInput)
	if err != nil {
		return models.Portfolio{}, err
	}

	next, err := portfolio.WithAmount(current, index, amount)
	if err != nil {
		return models.Portfolio{}, err
	}

	if err := s.persist(ctx, userID, next); err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("asset edited", "userID", userID, "index", index, "amount", amount.String())
	return next, nil
}

func (s *portfolioService) RemoveAsset(ctx context.Context, userID uuid.UUID, current models.Portfolio, index int) (models.Portfolio, error) {
	const op = "service.RemoveAsset"

	next, err := portfolio.Without(current, index)
	if err != nil {
		return models.Portfolio{}, err
	}

	if err := s.persist(ctx, userID, next); err != nil {
		return models.Portfolio{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("asset removed", "userID", userID, "index", index)
	return next, nil
}

func (s *portfolioService) Search(ctx context.Context, query string) ([]models.Coin, error) {
	const op = "service.Search"

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.ErrEmptySymbol
	}

	coins, err := s.market.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, errs.ErrMarketDataUnavailable, err.Error())
	}
	return coins, nil
}

func (s *portfolioService) History(ctx context.Context, coinID string, days int) (models.PriceSeries, error) {
	const op = "service.History"

	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return models.PriceSeries{}, fmt.Errorf("%w: coin id is empty", errs.ErrValidation)
	}
	if days < 1 || days > maxHistoryDays {
		return models.PriceSeries{}, fmt.Errorf("%w: days must be between 1 and %d", errs.ErrValidation, maxHistoryDays)
	}

	series, err := s.market.History(ctx, coinID, days)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("%s: %w: %s", op, errs.ErrMarketDataUnavailable, err.Error())
	}
	return series, nil
}

func (s *portfolioService) resolve(ctx context.Context, symbol, coinID string) (models.Coin, error) {
	var (
		coin models.Coin
		err  error
	)
	if coinID != "" {
		coin, err = s.resolver.Lookup(ctx, coinID)
	} else {
		coin, err = s.resolver.Resolve(ctx, symbol)
	}

	if err != nil && !errors.Is(err, errs.ErrSymbolNotFound) {
		return models.Coin{}, fmt.Errorf("%w: %s", errs.ErrMarketDataUnavailable, err.Error())
	}
	return coin, err
}

// persist detaches the write from the request: a client that goes away must
// not abort a write the store may already have committed.
func (s *portfolioService) persist(ctx context.Context, userID uuid.UUID, next models.Portfolio) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.repo.Upsert(ctx, portfolio.ToDocument(userID, next, s.now().UTC())); err != nil {
		s.log.Error("failed to persist portfolio", "userID", userID, "error", err)
		return storageError(err)
	}
	return nil
}

func storageError(err error) error {
	if errors.Is(err, errs.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, err.Error())
}

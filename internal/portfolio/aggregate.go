// Package portfolio holds the bookkeeping rules of a user's portfolio: how
// assets are appended, re-amounted and removed, and how the total value is
// derived from them. Nothing here performs I/O.
package portfolio

import (
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeTotals is the only way a total value is produced. Callers must not
// keep a running total next to the assets.
func ComputeTotals(assets []models.Asset) models.Totals {
	totals := models.Totals{USD: decimal.Zero, EUR: decimal.Zero}
	for _, asset := range assets {
		totals.USD = totals.USD.Add(asset.Amount.Mul(asset.PriceUSD))
		totals.EUR = totals.EUR.Add(asset.Amount.Mul(asset.PriceEUR))
	}
	return totals
}

func NormalizeSymbol(input string) (string, error) {
	symbol := strings.TrimSpace(input)
	if symbol == "" {
		return "", errs.ErrEmptySymbol
	}
	return strings.ToUpper(symbol), nil
}

// ParseNewAmount accepts strictly positive quantities.
func ParseNewAmount(input string) (decimal.Decimal, error) {
	amount, err := parseAmount(input)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	return amount, nil
}

// ParseEditAmount accepts zero, so a position can be kept at zero quantity.
func ParseEditAmount(input string) (decimal.Decimal, error) {
	amount, err := parseAmount(input)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	return amount, nil
}

func parseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	return amount, nil
}

func Append(p models.Portfolio, asset models.Asset) models.Portfolio {
	assets := make([]models.Asset, 0, len(p.Assets)+1)
	assets = append(assets, p.Assets...)
	assets = append(assets, asset)
	return models.Portfolio{Assets: assets}
}

// WithAmount replaces the amount of the asset at index. Captured prices are
// left untouched.
func WithAmount(p models.Portfolio, index int, amount decimal.Decimal) (models.Portfolio, error) {
	if index < 0 || index >= len(p.Assets) {
		return models.Portfolio{}, errs.ErrInvalidIndex
	}
	if amount.IsNegative() {
		return models.Portfolio{}, errs.ErrInvalidAmount
	}

	assets := clone(p.Assets)
	assets[index].Amount = amount
	return models.Portfolio{Assets: assets}, nil
}

func Without(p models.Portfolio, index int) (models.Portfolio, error) {
	if index < 0 || index >= len(p.Assets) {
		return models.Portfolio{}, errs.ErrInvalidIndex
	}

	assets := make([]models.Asset, 0, len(p.Assets)-1)
	assets = append(assets, p.Assets[:index]...)
	assets = append(assets, p.Assets[index+1:]...)
	return models.Portfolio{Assets: assets}, nil
}

func View(userID string, p models.Portfolio, updatedAt time.Time) models.PortfolioView {
	return models.PortfolioView{
		UserID:     userID,
		Assets:     clone(p.Assets),
		TotalValue: ComputeTotals(p.Assets),
		UpdatedAt:  updatedAt,
	}
}

// Allocation returns the value of every line item and its share of the USD
// total in percent, rounded to two places.
func Allocation(p models.Portfolio) []models.AllocationEntry {
	totals := ComputeTotals(p.Assets)
	entries := make([]models.AllocationEntry, 0, len(p.Assets))

	for _, asset := range p.Assets {
		usd := asset.Amount.Mul(asset.PriceUSD)
		percent := decimal.Zero
		if totals.USD.IsPositive() {
			percent = usd.Mul(hundred).Div(totals.USD).Round(2)
		}
		entries = append(entries, models.AllocationEntry{
			Symbol:  asset.Symbol,
			USD:     usd,
			EUR:     asset.Amount.Mul(asset.PriceEUR),
			Percent: percent,
		})
	}
	return entries
}

func FromDocument(doc *models.PortfolioDocument) models.Portfolio {
	if doc == nil {
		return models.Portfolio{Assets: []models.Asset{}}
	}
	return models.Portfolio{Assets: clone(doc.Assets)}
}

func ToDocument(userID uuid.UUID, p models.Portfolio, updatedAt time.Time) *models.PortfolioDocument {
	totals := ComputeTotals(p.Assets)
	return &models.PortfolioDocument{
		UserID:    userID,
		Assets:    clone(p.Assets),
		TotalUSD:  totals.USD,
		TotalEUR:  totals.EUR,
		UpdatedAt: updatedAt,
	}
}

func clone(assets []models.Asset) []models.Asset {
	out := make([]models.Asset, len(assets))
	copy(out, assets)
	return out
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the part of a user that is shared with the rest of the service
// once the user is authenticated.
type Identity struct {
	UID         uuid.UUID `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
}

type Asset struct {
	Symbol   string          `json:"symbol"`
	CoinID   string          `json:"coinId"`
	Amount   decimal.Decimal `json:"amount"`
	PriceUSD decimal.Decimal `json:"priceUSD"`
	PriceEUR decimal.Decimal `json:"priceEUR"`
	AddedAt  time.Time       `json:"addedAt"`
}

type Totals struct {
	USD decimal.Decimal `json:"usd"`
	EUR decimal.Decimal `json:"eur"`
}

// Portfolio holds the authoritative asset list of one user. Its total value is
// never stored here, see portfolio.ComputeTotals.
type Portfolio struct {
	Assets []Asset
}

type PortfolioView struct {
	UserID     string    `json:"userID"`
	Assets     []Asset   `json:"assets"`
	TotalValue Totals    `json:"totalValue"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type PortfolioDocument struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey;"`
	Assets    []Asset         `gorm:"type:text;serializer:json;not null"`
	TotalUSD  decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	TotalEUR  decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	UpdatedAt time.Time
}

type AllocationEntry struct {
	Symbol  string          `json:"symbol"`
	USD     decimal.Decimal `json:"usd"`
	EUR     decimal.Decimal `json:"eur"`
	Percent decimal.Decimal `json:"percent"`
}

type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type Price struct {
	USD decimal.Decimal `json:"usd"`
	EUR decimal.Decimal `json:"eur"`
}

type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

type PriceSeries struct {
	USD []PricePoint `json:"usd"`
	EUR []PricePoint `json:"eur"`
}

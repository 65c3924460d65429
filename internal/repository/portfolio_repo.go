package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PortfolioRepository interface {
	Read(ctx context.Context, userID uuid.UUID) (*models.PortfolioDocument, error)
	Upsert(ctx context.Context, doc *models.PortfolioDocument) error
}

type portfolioRepository struct {
	db *gorm.DB
}

func NewPortfolioRepository(db *gorm.DB) PortfolioRepository {
	return &portfolioRepository{
		db: db,
	}
}

func (db *portfolioRepository) Read(ctx context.Context, userID uuid.UUID) (*models.PortfolioDocument, error) {
	var doc models.PortfolioDocument

	if err := db.db.WithContext(ctx).Where("user_id = ?", userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, err.Error())
	}

	if doc.Assets == nil {
		doc.Assets = []models.Asset{}
	}

	return &doc, nil
}

// Upsert overwrites the whole document. Fields are never merged with what is
// already stored.
func (db *portfolioRepository) Upsert(ctx context.Context, doc *models.PortfolioDocument) error {
	if doc.Assets == nil {
		doc.Assets = []models.Asset{}
	}

	result := db.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(doc)

	if result.Error != nil {
		return fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, result.Error.Error())
	}

	return nil
}

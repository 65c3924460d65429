package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsersRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type usersRepository struct {
	db *gorm.DB
}

func NewUsersRepository(db *gorm.DB) UsersRepository {
	return &usersRepository{db: db}
}

func (db *usersRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := db.db.WithContext(ctx).Create(user).Error; err != nil {
		errorString := err.Error()
		if strings.Contains(errorString, "UNIQUE constraint failed") || strings.Contains(errorString, "duplicate key value violates unique constraint") {
			return errs.ErrAlreadyExists
		}

		return fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, errorString)
	}

	return nil
}

func (db *usersRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, err.Error())
	}
	return &user, nil
}

func (db *usersRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := db.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, fmt.Errorf("%w: %s", errs.ErrStorageUnavailable, err.Error())
	}
	return &user, nil
}

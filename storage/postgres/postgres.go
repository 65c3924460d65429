package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

type Storage struct {
	DB *gorm.DB
}

func DSN(cfg config.DBConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port)
}

func New(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (*Storage, error) {
	const op = "storage.postgres.New"

	var (
		db  *gorm.DB
		err error
	)

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			break
		}
		log.Warn("failed to connect to postgres, retrying...", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect after %d attempts: %w", op, connectAttempts, err)
	}

	log.Info("connected to PostgreSQL", "host", cfg.Host, "db", cfg.DBName)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("database auto-migration completed")

	return &Storage{DB: db}, nil
}

// Migrate creates the users and portfolios tables. It is shared with the
// sqlite databases used in tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.PortfolioDocument{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Storage) Stop() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Package identity registers users, authenticates them, and announces session
// changes on a channel. Consumers react to those events; nothing in this
// package touches portfolio state.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/repository"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var hashCost = bcrypt.DefaultCost

type Service struct {
	users    repository.UsersRepository
	secret   []byte
	tokenTTL time.Duration
	events   chan models.SessionEvent
	log      *slog.Logger
}

func NewService(users repository.UsersRepository, secret string, tokenTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		events:   make(chan models.SessionEvent, 64),
		log:      log,
	}
}

// Events is the single subscription to session changes. A nil Identity means
// the user signed out.
func (s *Service) Events() <-chan models.SessionEvent {
	return s.events
}

func (s *Service) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	const op = "identity.Register"

	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", errs.ErrValidation, minPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hashed),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", "userID", user.ID)
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	const op = "identity.Login"

	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil, errs.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, errs.ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	identity := identityOf(user)
	s.emit(models.SessionEvent{UserID: user.ID, Identity: &identity})

	return token, user, nil
}

func (s *Service) Logout(_ context.Context, userID uuid.UUID) {
	s.emit(models.SessionEvent{UserID: userID})
}

func (s *Service) ParseToken(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %s", errs.ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, errs.ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	uid, err := uuid.Parse(sub)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: bad subject", errs.ErrInvalidToken)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return models.Identity{UID: uid, Email: email, DisplayName: name}, nil
}

func (s *Service) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"name":  user.DisplayName,
		"iat":   now.Unix(),
		"exp":   now.Add(s.tokenTTL).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *Service) emit(event models.SessionEvent) {
	select {
	case s.events <- event:
	default:
		s.log.Warn("session events channel full, dropping event", "userID", event.UserID)
	}
}

func identityOf(user *models.User) models.Identity {
	return models.Identity{
		UID:         user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
}

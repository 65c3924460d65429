package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/identity"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/repository"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/service"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/websocket"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/storage/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla_ws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubMarket struct{}

func (stubMarket) Search(_ context.Context, query string) ([]models.Coin, error) {
	switch strings.ToLower(query) {
	case "btc", "bitcoin":
		return []models.Coin{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}}, nil
	case "eth":
		return []models.Coin{{ID: "ethereum", Symbol: "eth", Name: "Ethereum"}}, nil
	}
	return []models.Coin{}, nil
}

func (stubMarket) Price(_ context.Context, coinID string) (models.Price, error) {
	switch coinID {
	case "bitcoin":
		return models.Price{USD: decimal.NewFromInt(30000), EUR: decimal.NewFromInt(28000)}, nil
	case "ethereum":
		return models.Price{USD: decimal.NewFromInt(2000), EUR: decimal.NewFromInt(1800)}, nil
	}
	return models.Price{}, errs.ErrPriceUnavailable
}

func (stubMarket) History(_ context.Context, coinID string, days int) (models.PriceSeries, error) {
	point := models.PricePoint{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromInt(42000)}
	return models.PriceSeries{USD: []models.PricePoint{point}, EUR: []models.PricePoint{point}}, nil
}

type testEnv struct {
	router *gin.Engine
	ws     *websocket.Manager
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PortfolioDocument{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// the session manager reads from its own goroutine
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	mr := miniredis.RunT(t)
	redisClient, err := redis.NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	subscriber := redis.NewSubscriber(redisClient, log)
	t.Cleanup(subscriber.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	idService := identity.NewService(repository.NewUsersRepository(db), "test-secret", time.Hour, log)
	portfolios := service.NewPortfolioService(repository.NewPortfolioRepository(db), stubMarket{}, log)
	sessions := session.NewManager(portfolios, redis.NewPublisher(redisClient), log)
	wsManager := websocket.NewManager(log, subscriber)

	go sessions.Run(ctx, idService.Events())
	go wsManager.Run(ctx)

	router := gin.New()
	NewHandler(idService, sessions, portfolios, wsManager, log).RegisterRoutes(router)

	return &testEnv{router: router, ws: wsManager}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signIn(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": email, "password": "secret123", "displayName": "Tester"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken, created.ID
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap), w.Body.String())
	return snap
}

func TestAuthEndpoints(t *testing.T) {
	env := setupEnv(t)
	token, _ := env.signIn(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "alice@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "bob@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing_header", header: ""},
		{name: "wrong_scheme", header: "Basic abc"},
		{name: "empty_token", header: "Bearer "},
		{name: "garbage_token", header: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/portfolio", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestPortfolioEndpoints(t *testing.T) {
	env := setupEnv(t)
	token, _ := env.signIn(t, "carol@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/portfolio", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeView(t, w)
	assert.Empty(t, snap.Assets)
	assert.True(t, snap.TotalValue.USD.IsZero())
	assert.Empty(t, snap.Warning)

	w = env.do(t, http.MethodPost, "/api/v1/portfolio/assets", token, gin.H{"symbol": "btc", "amount": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/portfolio/assets", token, gin.H{"symbol": "doge", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/portfolio/assets", token, gin.H{"symbol": "btc", "amount": "1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap = decodeView(t, w)
	require.Len(t, snap.Assets, 1)
	assert.Equal(t, "BTC", snap.Assets[0].Symbol)
	assert.True(t, snap.TotalValue.USD.Equal(decimal.NewFromInt(30000)))

	w = env.do(t, http.MethodPost, "/api/v1/portfolio/assets", token, gin.H{"symbol": "ETH", "amount": "10"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/portfolio/assets/1", token, gin.H{"amount": "5"})
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeView(t, w)
	assert.True(t, snap.TotalValue.USD.Equal(decimal.NewFromInt(40000)))
	assert.True(t, snap.TotalValue.EUR.Equal(decimal.NewFromInt(37000)))

	w = env.do(t, http.MethodPatch, "/api/v1/portfolio/assets/x", token, gin.H{"amount": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/portfolio/assets/9", token, gin.H{"amount": "5"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/portfolio/allocation", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alloc struct {
		Allocation []models.AllocationEntry `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alloc))
	require.Len(t, alloc.Allocation, 2)
	assert.True(t, alloc.Allocation[0].Percent.Equal(decimal.NewFromInt(75)))

	w = env.do(t, http.MethodDelete, "/api/v1/portfolio/assets/0", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeView(t, w)
	require.Len(t, snap.Assets, 1)
	assert.Equal(t, "ETH", snap.Assets[0].Symbol)
	assert.True(t, snap.TotalValue.USD.Equal(decimal.NewFromInt(10000)))

	w = env.do(t, http.MethodGet, "/api/v1/portfolio", token, nil)
	snap = decodeView(t, w)
	assert.True(t, snap.TotalValue.USD.Equal(decimal.NewFromInt(10000)))
}

func TestCoinEndpoints(t *testing.T) {
	env := setupEnv(t)
	token, _ := env.signIn(t, "dave@example.com")

	w := env.do(t, http.MethodGet, "/api/v1/coins/search?q=btc", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var coins []models.Coin
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coins))
	require.Len(t, coins, 1)
	assert.Equal(t, "bitcoin", coins[0].ID)

	w = env.do(t, http.MethodGet, "/api/v1/coins/search?q=", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/coins/bitcoin/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"usd":[[1704067200000,42000]],"eur":[[1704067200000,42000]]}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/coins/bitcoin/history?days=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/coins/bitcoin/history?days=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebsocketStreamsPortfolio(t *testing.T) {
	env := setupEnv(t)
	token, userID := env.signIn(t, "erin@example.com")

	server := httptest.NewServer(env.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?access_token=" + token
	conn, _, err := gorilla_ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	readMessage := func() websocket.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := readMessage()
	assert.Equal(t, websocket.MessageSnapshot, msg.Type)
	assert.Empty(t, msg.Portfolio.Assets)

	require.Eventually(t, func() bool { return env.ws.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	w := env.do(t, http.MethodPost, "/api/v1/portfolio/assets", token, gin.H{"symbol": "eth", "amount": "2"})
	require.Equal(t, http.StatusCreated, w.Code)

	msg = readMessage()
	assert.Equal(t, websocket.MessageUpdate, msg.Type)
	assert.Equal(t, models.OpAssetAdded, msg.Op)
	assert.True(t, msg.Portfolio.TotalValue.USD.Equal(decimal.NewFromInt(4000)))
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		err    error
		status int
	}{
		{errs.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("service.AddAsset: %w", errs.ErrEmptySymbol), http.StatusBadRequest},
		{errs.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("marketdata.Resolve: %w: %q", errs.ErrSymbolNotFound, "X"), http.StatusNotFound},
		{errs.ErrAlreadyExists, http.StatusConflict},
		{fmt.Errorf("%w: timeout", errs.ErrPriceUnavailable), http.StatusBadGateway},
		{errs.ErrMarketDataUnavailable, http.StatusBadGateway},
		{fmt.Errorf("service.Load: %w", errs.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.writeError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, errs.ErrInternal.Error(), body["error"], "internal details must not leak")
			}
		})
	}
}

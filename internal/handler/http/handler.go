package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/handler/middleware"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/service"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/websocket"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/lib/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla_ws "github.com/gorilla/websocket"
)

type IdentityService interface {
	middleware.TokenParser
	Register(ctx context.Context, email, password, displayName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	Logout(ctx context.Context, userID uuid.UUID)
}

type Sessions interface {
	Get(ctx context.Context, userID uuid.UUID) session.Snapshot
	Allocation(ctx context.Context, userID uuid.UUID) ([]models.AllocationEntry, string)
	AddAsset(ctx context.Context, userID uuid.UUID, in service.AddAssetInput) (models.PortfolioView, error)
	EditAsset(ctx context.Context, userID uuid.UUID, index int, amount string) (models.PortfolioView, error)
	RemoveAsset(ctx context.Context, userID uuid.UUID, index int) (models.PortfolioView, error)
}

type Handler struct {
	identity   IdentityService
	sessions   Sessions
	portfolios service.PortfolioService
	wsManager  *websocket.Manager
	log        *slog.Logger
	upgrader   gorilla_ws.Upgrader
}

func NewHandler(identity IdentityService, sessions Sessions, portfolios service.PortfolioService, wsManager *websocket.Manager, log *slog.Logger) *Handler {
	return &Handler{
		identity:   identity,
		sessions:   sessions,
		portfolios: portfolios,
		wsManager:  wsManager,
		log:        log,
		upgrader: gorilla_ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(gin.Recovery(), middleware.RequestLogger(h.log))
	router.GET("/healthz", h.health)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.register)
			auth.POST("/login", h.login)
			auth.POST("/logout", middleware.AuthMiddleware(h.identity, h.log), h.logout)
		}

		portfolio := api.Group("/portfolio", middleware.AuthMiddleware(h.identity, h.log))
		{
			portfolio.GET("", h.getPortfolio)
			portfolio.GET("/allocation", h.getAllocation)
			portfolio.POST("/assets", h.addAsset)
			portfolio.PATCH("/assets/:index", h.editAsset)
			portfolio.DELETE("/assets/:index", h.removeAsset)
		}

		coins := api.Group("/coins", middleware.AuthMiddleware(h.identity, h.log))
		{
			coins.GET("/search", h.searchCoins)
			coins.GET("/:id/history", h.coinHistory)
		}

		ws := api.Group("/ws", middleware.AuthMiddleware(h.identity, h.log))
		{
			ws.GET("", h.wsConnect)
		}
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.identity.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, user, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token, "user": user})
}

func (h *Handler) logout(c *gin.Context) {
	h.identity.Logout(c.Request.Context(), userIDFrom(c))
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

func (h *Handler) getPortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Get(c.Request.Context(), userIDFrom(c)))
}

func (h *Handler) getAllocation(c *gin.Context) {
	entries, warning := h.sessions.Allocation(c.Request.Context(), userIDFrom(c))

	body := gin.H{"allocation": entries}
	if warning != "" {
		body["warning"] = warning
	}
	c.JSON(http.StatusOK, body)
}

type addAssetRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	CoinID string `json:"coinId"`
}

func (h *Handler) addAsset(c *gin.Context) {
	var req addAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.sessions.AddAsset(c.Request.Context(), userIDFrom(c), service.AddAssetInput{
		Symbol: req.Symbol,
		Amount: req.Amount,
		CoinID: req.CoinID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

type editAssetRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) editAsset(c *gin.Context) {
	index, ok := assetIndex(c)
	if !ok {
		return
	}

	var req editAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.sessions.EditAsset(c.Request.Context(), userIDFrom(c), index, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeAsset(c *gin.Context) {
	index, ok := assetIndex(c)
	if !ok {
		return
	}

	view, err := h.sessions.RemoveAsset(c.Request.Context(), userIDFrom(c), index)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) searchCoins(c *gin.Context) {
	coins, err := h.portfolios.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, coins)
}

func (h *Handler) coinHistory(c *gin.Context) {
	days := service.DefaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a number"})
			return
		}
		days = parsed
	}

	series, err := h.portfolios.History(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, series)
}

func (h *Handler) wsConnect(c *gin.Context) {
	userID := userIDFrom(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := websocket.NewClient(h.wsManager, conn, userID)
	// subscribe before reading the snapshot so no update falls in between
	client.Manager.Register(client)

	snap := h.sessions.Get(c.Request.Context(), userID)
	if err := h.wsManager.SendSnapshot(client, snap.PortfolioView, snap.Warning); err != nil {
		h.log.Error("ws: failed to send initial portfolio", "error", err, "userID", userID)
	}

	go client.Writer()
	go client.Reader()
}

var errorStatuses = []struct {
	target error
	status int
}{
	{errs.ErrValidation, http.StatusBadRequest},
	{errs.ErrInvalidCredentials, http.StatusUnauthorized},
	{errs.ErrInvalidToken, http.StatusUnauthorized},
	{errs.ErrSymbolNotFound, http.StatusNotFound},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrAlreadyExists, http.StatusConflict},
	{errs.ErrPriceUnavailable, http.StatusBadGateway},
	{errs.ErrMarketDataUnavailable, http.StatusBadGateway},
	{errs.ErrStorageUnavailable, http.StatusServiceUnavailable},
}

func (h *Handler) writeError(c *gin.Context, err error) {
	for _, e := range errorStatuses {
		if !errors.Is(err, e.target) {
			continue
		}
		if e.status >= http.StatusInternalServerError {
			h.log.Error("request failed", "path", c.FullPath(), "error", err)
		}
		message := e.target.Error()
		if e.target == errs.ErrValidation {
			message = err.Error()
		}
		c.JSON(e.status, gin.H{"error": message})
		return
	}

	h.log.Error("unexpected error", "path", c.FullPath(), slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": errs.ErrInternal.Error()})
}

func assetIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrInvalidIndex.Error()})
		return 0, false
	}
	return index, true
}

func userIDFrom(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.UserIDKey).(uuid.UUID)
}

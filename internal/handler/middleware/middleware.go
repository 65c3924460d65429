package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"

	UserIDKey    = "userID"
	UserEmailKey = "userEmail"
	UserNameKey  = "userName"
)

type TokenParser interface {
	ParseToken(token string) (models.Identity, error)
}

func AuthMiddleware(tokens TokenParser, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			return
		}

		identity, err := tokens.ParseToken(tokenString)
		if err != nil {
			log.Warn("auth middleware: failed to parse token", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(UserIDKey, identity.UID)
		c.Set(UserEmailKey, identity.Email)
		c.Set(UserNameKey, identity.DisplayName)
		c.Next()
	}
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on a websocket handshake, so the access_token query parameter
// is accepted as well.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(authorizationHeader)
	if header == "" {
		if token := c.Query("access_token"); token != "" {
			return token, true
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "auth header is empty",
		})
		return "", false
	}

	headerParts := strings.Split(header, " ")
	if len(headerParts) != 2 || headerParts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid auth header format",
		})
		return "", false
	}

	if len(headerParts[1]) == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "token is empty",
		})
		return "", false
	}

	return headerParts[1], true
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if userID, ok := c.Get(UserIDKey); ok {
			attrs = append(attrs, slog.Any("userID", userID))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request completed", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	}
}

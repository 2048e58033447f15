package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/xiaoyuanzhu-com/buildchat/apiclient"
	"github.com/xiaoyuanzhu-com/buildchat/log"
)

// contextKeyUser is the gin context key holding the authenticated username
const contextKeyUser = "username"

var errInvalidToken = errors.New("invalid token")

// signToken issues an HS256 token for username
func signToken(secret, username string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// verifyToken returns the username a valid token was issued for
func verifyToken(secret, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// IssueToken handles POST /api/auth/token
func (h *Handlers) IssueToken(c *gin.Context) {
	var req apiclient.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		RespondBadRequest(c, "username is required")
		return
	}

	cfg := h.server.Config()
	token, expiresAt, err := signToken(cfg.JWTSecret, username, time.Now(), cfg.TokenTTL)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign token")
		RespondInternalError(c, "Failed to issue token")
		return
	}

	if _, err := h.server.DB().GetAccount(username); err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to create account")
		RespondInternalError(c, "Failed to create account")
		return
	}

	log.Info().Str("username", username).Msg("token issued")
	c.JSON(http.StatusOK, apiclient.TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// AuthMiddleware enforces a valid bearer token
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			RespondUnauthorized(c, "Missing bearer token")
			return
		}

		username, err := verifyToken(h.server.Config().JWTSecret, token)
		if err != nil {
			log.Debug().Err(err).Msg("bearer token rejected")
			RespondUnauthorized(c, "Invalid token")
			return
		}

		c.Set(contextKeyUser, username)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(contextKeyUser)
}

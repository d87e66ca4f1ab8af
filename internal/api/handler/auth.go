package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "roomrelay"
	tokenTTL    = 72 * time.Hour
)

// generateJWT wraps an identity token in a signed HS256 JWT.
func generateJWT(secret, userToken string) (string, error) {
	claims := jwt.MapClaims{
		"user_token": userToken,
		"exp":        time.Now().Add(tokenTTL).Unix(),
		"iss":        tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parseJWT returns the identity token carried by a JWT from generateJWT.
func parseJWT(secret, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims")
	}
	userToken, _ := claims["user_token"].(string)
	if _, err := uuid.Parse(userToken); err != nil {
		return "", errors.New("invalid user token claim")
	}
	return userToken, nil
}

// GetUserToken issues an identity token and a JWT wrapping it. A valid JWT
// in the Authorization header is renewed with the same identity token.
func (h *Handler) GetUserToken(c *gin.Context) {
	userToken := ""
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		existing, err := parseJWT(h.Config.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			logrus.WithError(err).Debug("ignoring invalid user token")
		}
		userToken = existing
	}
	if userToken == "" {
		userToken = uuid.NewString()
	}

	token, err := generateJWT(h.Config.JWTSecret, userToken)
	if err != nil {
		logrus.WithError(err).Error("failed to sign user token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userToken": userToken})
}

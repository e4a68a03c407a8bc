package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "codehub/pkg/errors"
	"codehub/pkg/utils/contextkey"
	"codehub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDHeader     = "X-User-Id"
	userIDContextKey = "user_id"
	accessTokenType  = "access"
)

// AuthConfig controls how the caller identity is established.
// With an empty Secret the X-User-Id header is trusted, which is meant for deployments behind a gateway.
type AuthConfig struct {
	Secret string `yaml:"jwtSecret"`
	Issuer string `yaml:"jwtIssuer"`
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 access tokens whose subject is the numeric user id.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
}

// Enabled reports whether tokens are checked at all.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Authenticate returns the user id carried by raw.
func (a *Authenticator) Authenticate(raw string) (int64, error) {
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.Unauthorized)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != accessTokenType {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return parseUserID(claims.Subject)
}

// IssueToken signs an access token for userID. Used by the CLI and tests.
func (a *Authenticator) IssueToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// AuthMiddleware resolves the caller's user id and rejects anonymous requests.
func AuthMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			userID int64
			err    error
		)
		if auth.Enabled() {
			userID, err = auth.Authenticate(extractBearerToken(c.GetHeader("Authorization")))
		} else {
			userID, err = parseUserID(strings.TrimSpace(c.GetHeader(userIDHeader)))
			if err != nil {
				err = pkgerrors.New(pkgerrors.Unauthorized).WithMessage("missing or invalid X-User-Id header")
			}
		}
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(userIDContextKey, userID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.UserID, userID))
		c.Next()
	}
}

// UserID returns the id stored by AuthMiddleware.
func UserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

func parseUserID(subject string) (int64, error) {
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return userID, nil
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/requestctx"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	accessTokenParam    = "access_token"
)

// Claims is the token payload issued by the identity provider in front of this service.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 tokens signed with a shared secret.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) (*TokenValidator, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &TokenValidator{secret: []byte(secret)}, nil
}

func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}
	return claims, nil
}

// RequestContext stores the request details the audit trail records. It runs for every
// route, authenticated or not, and echoes the correlation id back to the caller.
func RequestContext(webOrigins []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			correlationID := req.Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderCorrelationID, correlationID)

			info := requestctx.RequestInfo{
				SourceAddress: c.RealIP(),
				ClientAgent:   req.UserAgent(),
				Origin:        requestctx.ClassifyOrigin(req.Header.Get(echo.HeaderOrigin), webOrigins),
				CorrelationID: correlationID,
			}
			c.SetRequest(req.WithContext(requestctx.WithRequestInfo(req.Context(), info)))
			return next(c)
		}
	}
}

// Authenticate resolves the bearer token (or the access_token query parameter, which
// browsers need for websocket upgrades) into the request's actor. Requests without a
// valid token are rejected.
func Authenticate(validator *TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": domain.ErrUnauthenticated.Error(),
				})
			}

			claims, err := validator.Validate(token)
			if err != nil {
				log.WithError(err).WithField("path", c.Path()).Debug("Rejected token")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
			}

			req := c.Request()
			ctx := requestctx.WithActor(req.Context(), requestctx.Actor{
				ID:    claims.Subject,
				Name:  claims.Name,
				Email: claims.Email,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.QueryParam(accessTokenParam)
}

package server

import (
	"context"
	"errors"
	"net/http"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/requestctx"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type SessionService interface {
	Login(ctx context.Context) (requestctx.Actor, error)
	Logout(ctx context.Context) error
}

type authServer struct {
	sessionService SessionService
}

func NewAuthServer(sessionService SessionService) *authServer {
	return &authServer{
		sessionService: sessionService,
	}
}

func handleAuthError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// Login records the sign-in of the token holder and returns who they are.
func (s *authServer) Login(c echo.Context) error {
	actor, err := s.sessionService.Login(c.Request().Context())
	if err != nil {
		log.WithError(err).Warn("Failed to record login")
		statusCode, errorMsg := handleAuthError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"id":       actor.ID,
		"username": actor.Name,
		"email":    actor.Email,
	})
}

func (s *authServer) Logout(c echo.Context) error {
	if err := s.sessionService.Logout(c.Request().Context()); err != nil {
		log.WithError(err).Warn("Failed to record logout")
		statusCode, errorMsg := handleAuthError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.NoContent(http.StatusNoContent)
}

package server

import (
	"context"
	"net/http"
	"time"

	"inventory-audit/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type websocketServer struct {
	ctx       context.Context
	hub       *realtime.Hub
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

// NewWebsocketServer streams audit events from hub; open connections are closed when
// ctx ends.
func NewWebsocketServer(ctx context.Context, hub *realtime.Hub, keepAlive time.Duration) *websocketServer {
	return &websocketServer{
		ctx:       ctx,
		hub:       hub,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *websocketServer) StreamAuditLogs(c echo.Context) error {
	if s.hub == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "realtime service unavailable",
		})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the failure response
		log.WithError(err).Debug("Websocket upgrade failed")
		return nil
	}

	realtime.Serve(s.ctx, s.hub, conn, s.keepAlive)
	return nil
}

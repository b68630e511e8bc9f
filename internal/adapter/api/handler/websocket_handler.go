package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"prbal/internal/infrastructure/firebase"
	ws "prbal/internal/infrastructure/websocket"
	"prbal/pkg/config"
	"prbal/pkg/errors"
	"prbal/pkg/logger"
)

type WebSocketHandler struct {
	gateway      *ws.Gateway
	firebaseAuth *firebase.FirebaseAuthClient
	cfg          *config.Config
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(gateway *ws.Gateway, firebaseAuth *firebase.FirebaseAuthClient, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		gateway:      gateway,
		firebaseAuth: firebaseAuth,
		cfg:          cfg,
	}
}

// HandleThreadSocket upgrades the connection and attaches the client to the
// thread's channel. Auth uses a token query param because browsers cannot set
// headers on websocket requests. A client that fails auth or membership never
// reaches the open state.
func (h *WebSocketHandler) HandleThreadSocket(c echo.Context) error {
	threadID := c.Param("id")

	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication token required", nil)
	}

	userID, err := h.firebaseAuth.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid authentication token", err)
	}

	if err := h.gateway.Authorize(c.Request().Context(), userID, threadID); err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := ws.NewClient(userID, threadID, conn, h.cfg.WSSendBuffer, h.cfg.WSIdleTimeout)
	h.gateway.Hub().Register(client)

	logger.Debug("WebSocket connected: user %s thread %s", userID, threadID)

	go client.WritePump()
	go client.ReadPump(h.gateway)

	return nil
}

package router

import (
	"github.com/labstack/echo/v4"

	"prbal/internal/adapter/api/handler"
	"prbal/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up the realtime endpoint. Auth happens inside the
// handler via the token query param, not the Bearer middleware.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, limiter *middleware.IPRateLimiter) {
	e.GET("/ws/messaging/threads/:id/", wsHandler.HandleThreadSocket, limiter.Limit)
}

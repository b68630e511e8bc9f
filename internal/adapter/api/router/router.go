package router

import (
	"github.com/labstack/echo/v4"

	"prbal/internal/adapter/api/handler"
	"prbal/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	threadHandler *handler.ThreadHandler,
	messageHandler *handler.MessageHandler,
	wsHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
	apiLimiter *middleware.IPRateLimiter,
	wsLimiter *middleware.IPRateLimiter,
) {
	SetupMessagingRouter(e, threadHandler, messageHandler, authMiddleware, apiLimiter)
	SetupWebSocketRouter(e, wsHandler, wsLimiter)
	SetupHealthRouter(e, healthHandler)
}

package router

import (
	"github.com/labstack/echo/v4"

	"prbal/internal/adapter/api/handler"
	"prbal/internal/adapter/api/middleware"
)

// SetupMessagingRouter sets up the REST surface of the messaging service.
func SetupMessagingRouter(e *echo.Echo, threadHandler *handler.ThreadHandler, messageHandler *handler.MessageHandler, authMiddleware *middleware.AuthMiddleware, limiter *middleware.IPRateLimiter) {
	messaging := e.Group("/api/v1/messaging")
	messaging.Use(limiter.Limit)
	messaging.Use(authMiddleware.Authenticate)

	// Thread management
	messaging.POST("/threads/", threadHandler.CreateThread)
	messaging.GET("/threads/", threadHandler.ListThreads)
	messaging.GET("/threads/:id/", threadHandler.GetThread)
	messaging.PUT("/threads/:id/", threadHandler.UpdateThread)
	messaging.PATCH("/threads/:id/", threadHandler.UpdateThread)
	messaging.DELETE("/threads/:id/", threadHandler.DeleteThread)
	messaging.GET("/threads/:id/messages/", threadHandler.ListThreadMessages)

	// Message management
	messaging.POST("/messages/", messageHandler.SendMessage)
	messaging.GET("/messages/:id/", messageHandler.GetMessage)
	messaging.PUT("/messages/:id/", messageHandler.UpdateMessage)
	messaging.PATCH("/messages/:id/", messageHandler.UpdateMessage)
	messaging.DELETE("/messages/:id/", messageHandler.DeleteMessage)
	messaging.GET("/messages/:id/receipts/", messageHandler.ListReceipts)

	// Read state
	messaging.POST("/messages/mark_as_read/", messageHandler.MarkAsRead)
	messaging.GET("/messages/unread_count/", messageHandler.UnreadCount)
}

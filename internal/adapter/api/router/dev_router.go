package router

import (
	"github.com/labstack/echo/v4"

	"prbal/internal/adapter/api/handler"
)

// SetupDevRouter mounts development-only helpers. Never call this in
// production.
func SetupDevRouter(e *echo.Echo, devTokenHandler *handler.DevTokenHandler) {
	e.POST("/dev/token", devTokenHandler.GenerateToken)
}
